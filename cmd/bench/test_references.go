package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fulldump/realmdb/realm"
)

// TestReferences hands objects from a producer instance to consumer
// instances through thread-safe references.
func TestReferences(c Config) {

	name := RealmName("references")
	producer := OpenRealm(c, name)
	defer producer.Close()

	err := producer.BeginTransaction(context.Background())
	if err != nil {
		fmt.Println("ERROR: begin:", err.Error())
		return
	}
	for n := int64(0); n < c.Batch; n++ {
		producer.CreateObjectUnique("Item", n, false, map[string]any{"n": "item"})
	}
	if err := producer.CommitTransaction(); err != nil {
		fmt.Println("ERROR: commit:", err.Error())
		return
	}

	table, _ := producer.Table("Item")
	refs := make(chan *realm.ThreadSafeReference[*realm.Object], c.Workers)

	go func() {
		defer close(refs)
		for n := int64(0); n < c.N; n++ {
			o, err := table.FindByPrimaryKey(n % c.Batch)
			if err != nil || o == nil {
				fmt.Println("ERROR: find:", err)
				return
			}
			ref, err := realm.Capture(o)
			if err != nil {
				fmt.Println("ERROR: capture:", err.Error())
				return
			}
			refs <- ref
		}
	}()

	resolved := int64(0)
	t0 := time.Now()
	Parallel(c.Workers, func(worker int) {
		r := OpenRealm(c, name)
		defer r.Close()
		for ref := range refs {
			o, err := realm.Resolve(r, ref)
			if err != nil {
				fmt.Println("ERROR: resolve:", err.Error())
				continue
			}
			if o.IsValid() {
				atomic.AddInt64(&resolved, 1)
			}
		}
	})
	took := time.Since(t0)

	fmt.Println("resolved:", resolved)
	fmt.Println("took:", took)
	fmt.Printf("Throughput: %.2f references/sec\n", float64(resolved)/took.Seconds())
}
