package storage

import (
	"runtime"
	"sync"
)

type record struct {
	seq  int
	data []byte
}

// loadRecords decodes records in parallel and re-assembles them in order.
// feed must call emit once per record and return when there are no more.
func loadRecords(feed func(emit func(data []byte)) error, c *codec) (<-chan LoadedCommand, <-chan error) {

	out := make(chan LoadedCommand, 100)
	errChan := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errChan)

		concurrency := runtime.NumCPU()

		lines := make(chan record, 100)
		results := make(chan LoadedCommand, 100)

		// Workers
		var wg sync.WaitGroup
		for i := 0; i < concurrency; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for item := range lines {
					cmd, err := c.decode(item.data)
					results <- LoadedCommand{
						Seq: item.seq,
						Cmd: cmd,
						Err: err,
					}
				}
			}()
		}

		// Feeder
		go func() {
			seq := 0
			err := feed(func(data []byte) {
				lines <- record{seq, data}
				seq++
			})
			close(lines)
			if err != nil {
				results <- LoadedCommand{Seq: -1, Err: err}
			}
			wg.Wait()
			close(results)
		}()

		// Re-assembler
		buffer := map[int]LoadedCommand{}
		nextSeq := 0
		failed := false

		for res := range results {
			if failed {
				continue // drain so the feeder and workers can finish
			}
			if res.Err != nil {
				errChan <- res.Err
				failed = true
				continue
			}

			if res.Seq != nextSeq {
				buffer[res.Seq] = res
				continue
			}

			out <- res
			nextSeq++

			for {
				cmd, ok := buffer[nextSeq]
				if !ok {
					break
				}
				delete(buffer, nextSeq)
				out <- cmd
				nextSeq++
			}
		}
	}()

	return out, errChan
}
