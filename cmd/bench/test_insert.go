package main

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

// TestInsert makes every worker open its own instance and insert batches,
// so all of them contend for the single write lock.
func TestInsert(c Config) {

	name := RealmName("insert")
	owner := OpenRealm(c, name)
	defer owner.Close()

	items := c.N

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(time.Second):
				fmt.Println("items:", atomic.LoadInt64(&items))
			}
		}
	}()

	t0 := time.Now()
	Parallel(c.Workers, func(worker int) {

		r := OpenRealm(c, name)
		defer r.Close()

		for {
			err := r.BeginTransaction(context.Background())
			if err != nil {
				fmt.Println("ERROR: begin:", err.Error())
				return
			}
			last := atomic.AddInt64(&items, -c.Batch)
			first := last + c.Batch - 1
			if first < 0 {
				r.CancelTransaction()
				return
			}
			for n := first; n >= last && n >= 0; n-- {
				_, _, err := r.CreateObjectUnique("Item", n, false, map[string]any{"n": strconv.FormatInt(n, 10)})
				if err != nil {
					fmt.Println("ERROR: create:", err.Error())
					r.CancelTransaction()
					return
				}
			}
			err = r.CommitTransaction()
			if err != nil {
				fmt.Println("ERROR: commit:", err.Error())
				return
			}
		}
	})

	took := time.Since(t0)

	owner.Refresh()
	table, err := owner.Table("Item")
	if err != nil {
		fmt.Println("ERROR:", err.Error())
		return
	}
	total, _ := table.Count()

	fmt.Println("inserted:", total)
	fmt.Println("took:", took)
	fmt.Printf("Throughput: %.2f rows/sec\n", float64(total)/took.Seconds())
}
