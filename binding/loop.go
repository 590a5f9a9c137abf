package binding

import (
	"sync"

	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/realm"
)

var errLoopClosed = failure.New(failure.InstanceClosed, "cannot access realm that has been closed")

// loop is the confinement context of one or more realm handles: a single
// goroutine running their operations one at a time.
type loop struct {
	scheduler *realm.Scheduler
	tasks     chan func()
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	refs      int // guarded by Runtime.mutex
}

func newLoop() *loop {
	l := &loop{
		scheduler: realm.NewScheduler(),
		tasks:     make(chan func()),
		closed:    make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *loop) run() {
	defer l.wg.Done()
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-l.closed:
			return
		}
	}
}

// do runs f on the loop and waits for it.
func (l *loop) do(f func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		f()
	}
	select {
	case l.tasks <- task:
	case <-l.closed:
		return errLoopClosed
	}
	<-done
	return nil
}

func (l *loop) stop() {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
	l.wg.Wait()
}
