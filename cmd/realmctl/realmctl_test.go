package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulldump/realmdb/realm"
	"github.com/fulldump/realmdb/schema"
)

func createRealm(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "people.realm")
	r, err := realm.Open(context.Background(), realm.Config{
		Path: path,
		Schema: schema.Schema{
			{
				Name:       "Person",
				PrimaryKey: "id",
				Properties: []schema.Property{
					{Name: "id", Type: schema.TypeInt, Indexed: true},
					{Name: "name", Type: schema.TypeString},
				},
			},
			{
				Name: "Dog",
				Properties: []schema.Property{
					{Name: "name", Type: schema.TypeString},
				},
			},
		},
		SchemaVersion: 3,
	})
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.BeginTransaction(context.Background()))
	_, _, err = r.CreateObjectUnique("Person", int64(1), false, map[string]any{"name": "Fulanez"})
	require.NoError(t, err)
	_, _, err = r.CreateObjectUnique("Person", int64(2), false, map[string]any{"name": "Menganez"})
	require.NoError(t, err)
	require.NoError(t, r.CommitTransaction())

	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := &bytes.Buffer{}
	cmd := newRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()

	for _, name := range []string{"info", "schema", "compact", "copy", "dump"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	key := cmd.PersistentFlags().Lookup("key")
	require.NotNil(t, key)
	assert.Equal(t, "", key.DefValue)

	backend := cmd.PersistentFlags().Lookup("backend")
	require.NotNil(t, backend)
	assert.Equal(t, "jsonl", backend.DefValue)
}

func TestInfo(t *testing.T) {
	path := createRealm(t)

	out, err := run(t, "info", path)
	require.NoError(t, err)

	assert.Contains(t, out, "schema version: 3\n")
	assert.Contains(t, out, "object types:   2\n")
	assert.Contains(t, out, "  Dog\t0\n  Person\t2\n")
}

func TestInfoMissingFile(t *testing.T) {
	_, err := run(t, "info", filepath.Join(t.TempDir(), "missing.realm"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.realm")
}

func TestSchema(t *testing.T) {
	path := createRealm(t)

	out, err := run(t, "schema", path)
	require.NoError(t, err)

	s, version, err := schema.ReadYAML(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), version)
	require.Len(t, s, 2)
}

func TestDump(t *testing.T) {
	path := createRealm(t)

	out, err := run(t, "dump", path, "Person")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	names := []string{}
	for _, line := range lines {
		item := struct {
			Values map[string]any `json:"values"`
		}{}
		require.NoError(t, json.Unmarshal([]byte(line), &item))
		names = append(names, item.Values["name"].(string))
	}
	assert.ElementsMatch(t, []string{"Fulanez", "Menganez"}, names)

	_, err = run(t, "dump", path, "Cat")
	require.Error(t, err)
}

func TestCompact(t *testing.T) {
	path := createRealm(t)

	out, err := run(t, "compact", path)
	require.NoError(t, err)
	assert.Contains(t, out, "compacted "+path)

	out, err = run(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "  Person\t2\n")
}

func TestCopyWithKey(t *testing.T) {
	path := createRealm(t)
	dst := filepath.Join(t.TempDir(), "encrypted.realm")
	key := strings.Repeat("ab", 64)

	_, err := run(t, "copy", path, dst, "--new-key", key)
	require.NoError(t, err)

	out, err := run(t, "info", dst, "--key", key)
	require.NoError(t, err)
	assert.Contains(t, out, "  Person\t2\n")

	_, err = run(t, "info", dst)
	require.Error(t, err)

	_, err = run(t, "copy", path, dst)
	require.Error(t, err, "destination already exists")

	_, err = run(t, "copy", path, dst+".2", "--new-key", "zz")
	require.Error(t, err)
}
