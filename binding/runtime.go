package binding

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fulldump/realmdb/engine"
	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/realm"
)

// Handle identifies an object owned by a Runtime. Zero is never a valid
// handle.
type Handle uint64

// Result is the outcome of every boundary operation.
type Result struct {
	Ok      bool         `json:"ok"`
	Kind    failure.Kind `json:"kind,omitzero"`
	Message string       `json:"message,omitempty"`
}

func (r Result) Err() error {
	if r.Ok {
		return nil
	}
	return failure.New(r.Kind, "%s", r.Message)
}

var success = Result{Ok: true}

func resultOf(err error) Result {
	if err == nil {
		return success
	}
	return Result{Kind: failure.KindOf(err), Message: err.Error()}
}

// Notifier receives change notifications of every realm handle together
// with the state attached with SetManagedState. It is called on the loop
// of the committing realm and must not block.
type Notifier func(h Handle, managedState any)

type instance struct {
	realm *realm.Realm
	loop  *loop
	state any
}

type entry struct {
	loop  *loop // nil runs inline
	value any
}

// Runtime owns the handles given to a host. Every realm is confined to a
// loop goroutine that runs its operations in order, so hosts can call any
// operation from any goroutine.
type Runtime struct {
	mutex    sync.Mutex
	handles  map[Handle]*entry
	next     Handle
	closed   bool
	notifier Notifier

	Logger   *slog.Logger
	Registry *engine.Registry
}

func New(notifier Notifier, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		handles:  map[Handle]*entry{},
		notifier: notifier,
		Logger:   logger,
		Registry: engine.NewRegistry(),
	}
}

var (
	globalMutex sync.Mutex
	global      *Runtime
)

// Init registers the process wide notifier and creates the default runtime.
// It must be paired with Shutdown.
func Init(notifier Notifier, logger *slog.Logger) (*Runtime, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	if global != nil {
		return nil, failure.New(failure.InvalidArgument, "notifier is already registered")
	}
	global = New(notifier, logger)
	return global, nil
}

// Default is the runtime created by Init, nil before Init or after Shutdown.
func Default() *Runtime {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	return global
}

// Shutdown closes every handle of the default runtime and unregisters the
// notifier.
func Shutdown() {
	globalMutex.Lock()
	rt := global
	global = nil
	globalMutex.Unlock()

	if rt != nil {
		rt.Stop()
	}
}

// Stop destroys every realm handle and drops all the others.
func (rt *Runtime) Stop() {
	rt.mutex.Lock()
	rt.closed = true
	instances := []Handle{}
	for h, e := range rt.handles {
		if _, ok := e.value.(*instance); ok {
			instances = append(instances, h)
		}
	}
	rt.mutex.Unlock()

	for _, h := range instances {
		rt.Destroy(h)
	}

	rt.mutex.Lock()
	for h, e := range rt.handles {
		if d, ok := e.value.(disposer); ok {
			d.Dispose()
		}
		delete(rt.handles, h)
	}
	rt.notifier = nil
	rt.mutex.Unlock()
}

// Len is the number of live handles.
func (rt *Runtime) Len() int {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	return len(rt.handles)
}

func (rt *Runtime) register(l *loop, value any) Handle {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	rt.next++
	rt.handles[rt.next] = &entry{loop: l, value: value}
	return rt.next
}

func (rt *Runtime) lookup(h Handle) (*entry, error) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	e, ok := rt.handles[h]
	if !ok {
		return nil, failure.New(failure.InvalidArgument, "invalid handle %d", h)
	}
	return e, nil
}

func (rt *Runtime) drop(h Handle) (*entry, bool) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	e, ok := rt.handles[h]
	delete(rt.handles, h)
	return e, ok
}

// Release drops a handle that is not a realm. Unresolved references are
// disposed.
func (rt *Runtime) Release(h Handle) Result {
	e, err := rt.lookup(h)
	if err != nil {
		return resultOf(err)
	}
	if _, ok := e.value.(*instance); ok {
		return resultOf(failure.New(failure.InvalidArgument, "handle %d is a realm, use Destroy", h))
	}
	rt.drop(h)
	if d, ok := e.value.(disposer); ok {
		d.Dispose()
	}
	return success
}

// run executes f on the loop that owns h, converting panics into results.
func (rt *Runtime) run(h Handle, f func(e *entry) error) Result {
	e, err := rt.lookup(h)
	if err != nil {
		return resultOf(err)
	}
	return resultOf(e.exec(func() error { return f(e) }))
}

func (e *entry) exec(f func() error) error {
	var err error
	call := func() {
		err = protect(f)
	}
	if e.loop == nil {
		call()
		return err
	}
	if loopErr := e.loop.do(call); loopErr != nil {
		return loopErr
	}
	return err
}

func protect(f func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = failure.New(failure.Unknown, "panic: %v", p)
		}
	}()
	return f()
}

func (rt *Runtime) notify(h Handle) {
	rt.mutex.Lock()
	n := rt.notifier
	var state any
	if e, ok := rt.handles[h]; ok {
		if inst, ok := e.value.(*instance); ok {
			state = inst.state
		}
	}
	rt.mutex.Unlock()

	if n == nil {
		return
	}
	rt.Logger.Debug("notify", "handle", h)
	n(h, state)
}

type observer struct {
	rt     *Runtime
	handle Handle
}

func (o *observer) DidChange() {
	o.rt.notify(o.handle)
}

func typeError(h Handle, value any, expected string) error {
	return failure.New(failure.InvalidArgument, "handle %d is a %s, expected %s", h, kindName(value), expected)
}

func kindName(value any) string {
	switch value.(type) {
	case *instance:
		return "realm"
	case *realm.Table:
		return "table"
	case *realm.Object:
		return "object"
	case *realm.List:
		return "list"
	case *realm.Results:
		return "results"
	case disposer:
		return "reference"
	}
	return fmt.Sprintf("%T", value)
}
