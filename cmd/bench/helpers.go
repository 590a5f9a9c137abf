package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fulldump/realmdb/realm"
	"github.com/fulldump/realmdb/schema"
)

func Parallel(workers int, f func(worker int)) {
	wg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(i)
		}()
	}
	wg.Wait()
}

func TempDir() (string, func()) {
	dir, err := os.MkdirTemp("", "realmdb_bench_*")
	if err != nil {
		panic("Could not create temp directory: " + err.Error())
	}

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

var itemSchema = schema.Schema{
	{
		Name:       "Item",
		PrimaryKey: "id",
		Properties: []schema.Property{
			{Name: "id", Type: schema.TypeInt, Indexed: true},
			{Name: "n", Type: schema.TypeString},
		},
	},
}

// OpenRealm opens a new instance of the bench file confined to its own
// scheduler, so every caller gets a distinct instance over the same store.
func OpenRealm(c Config, name string) *realm.Realm {
	r, err := realm.Open(context.Background(), realm.Config{
		Path:          filepath.Join(c.Dir, name),
		InMemory:      c.Backend == "memory",
		Backend:       c.Backend,
		Schema:        itemSchema,
		SchemaVersion: 1,
		Scheduler:     realm.NewScheduler(),
	})
	if err != nil {
		panic(err)
	}
	return r
}

func RealmName(prefix string) string {
	return prefix + "-" + strconv.FormatInt(time.Now().UnixNano(), 10) + ".realm"
}
