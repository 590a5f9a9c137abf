package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/fulldump/biff"
)

func Environment(f func(filename string)) {
	dir, err := os.MkdirTemp("", "realmdb-storage-")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)
	f(filepath.Join(dir, "test.realm"))
}

func readAll(s Storage) ([]*Command, error) {
	cmds, errs := s.Load()
	result := []*Command{}
	for lc := range cmds {
		result = append(result, lc.Cmd)
	}
	return result, <-errs
}

func testKey() []byte {
	return bytes.Repeat([]byte{7}, KeySize)
}

func TestBackends(t *testing.T) {

	for _, backend := range []string{BackendJSONL, BackendSQLite, BackendMemory} {
		for _, key := range [][]byte{nil, testKey()} {
			name := backend
			if key != nil {
				name += "-encrypted"
			}
			t.Run(name, func(t *testing.T) {
				Environment(func(filename string) {

					s, err := Open(Options{Backend: backend, Path: filename, Key: key})
					AssertNil(err)
					defer s.Close()

					n := 500
					for i := 0; i < n; i++ {
						cmd, _ := NewCommand("commit", map[string]any{"version": i})
						AssertNil(s.Persist(cmd))
					}

					cmds, err := readAll(s)
					AssertNil(err)
					AssertEqual(len(cmds), n)
					for i, cmd := range cmds {
						expected, _ := NewCommand("commit", map[string]any{"version": i})
						if string(cmd.Payload) != string(expected.Payload) {
							t.Fatalf("command %d is out of order: %s", i, cmd.Payload)
						}
					}

					size, err := s.Size()
					AssertNil(err)
					AssertTrue(size > 0)

					snapshot, _ := NewCommand("snapshot", map[string]any{"version": n})
					AssertNil(s.Rewrite([]*Command{snapshot}))

					cmds, err = readAll(s)
					AssertNil(err)
					AssertEqual(len(cmds), 1)
					AssertEqual(cmds[0].Name, "snapshot")
					AssertEqual(cmds[0].Uuid, snapshot.Uuid)

					after, _ := NewCommand("commit", map[string]any{"version": n + 1})
					AssertNil(s.Persist(after))
					cmds, err = readAll(s)
					AssertNil(err)
					AssertEqual(len(cmds), 2)
				})
			})
		}
	}
}

func TestJSONL_Reopen(t *testing.T) {
	Environment(func(filename string) {

		s, err := NewJSONLStorage(filename, nil)
		AssertNil(err)
		cmd, _ := NewCommand("commit", map[string]any{"hello": "world"})
		AssertNil(s.Persist(cmd))
		AssertNil(s.Close())

		content, _ := os.ReadFile(filename)
		AssertTrue(strings.Contains(string(content), `"payload":{"hello":"world"}`))

		s, err = NewJSONLStorage(filename, nil)
		AssertNil(err)
		defer s.Close()
		cmds, err := readAll(s)
		AssertNil(err)
		AssertEqual(len(cmds), 1)
		AssertEqual(string(cmds[0].Payload), `{"hello":"world"}`)
	})
}

func TestJSONL_WrongKey(t *testing.T) {
	Environment(func(filename string) {

		s, err := Open(Options{Path: filename, Key: testKey()})
		AssertNil(err)
		cmd, _ := NewCommand("commit", map[string]any{"secret": "value"})
		AssertNil(s.Persist(cmd))
		s.Close()

		content, _ := os.ReadFile(filename)
		AssertFalse(strings.Contains(string(content), "secret"))

		other := bytes.Repeat([]byte{8}, KeySize)
		s, err = Open(Options{Path: filename, Key: other})
		AssertNil(err)
		defer s.Close()
		_, err = readAll(s)
		AssertEqual(err, ErrDecryptFailed)
	})
}

func TestOpen_InvalidOptions(t *testing.T) {

	_, err := Open(Options{Backend: "tape"})
	AssertNotNil(err)

	_, err = Open(Options{Backend: BackendMemory, Key: []byte("short")})
	AssertEqual(err, ErrInvalidKey)
}

func TestMemory_Close(t *testing.T) {

	s := NewMemoryStorage(nil)
	cmd, _ := NewCommand("commit", map[string]any{})
	AssertNil(s.Persist(cmd))
	AssertNil(s.Close())

	AssertNotNil(s.Persist(cmd))
}
