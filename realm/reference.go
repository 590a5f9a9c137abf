package realm

import (
	"sync/atomic"

	"github.com/maruel/ksid"

	"github.com/fulldump/realmdb/engine"
	"github.com/fulldump/realmdb/failure"
)

// Referenceable are the accessors that can be handed to another context.
type Referenceable interface {
	*Object | *List | *Results
}

// ThreadSafeReference carries an accessor from one realm to another realm
// over the same file, usually in another goroutine. The version it was
// captured at stays pinned until the reference is resolved or disposed.
// It is safe for concurrent use.
type ThreadSafeReference[T Referenceable] struct {
	storeID ksid.ID
	pin     *engine.Pin

	table    string
	key      int64
	property string
	filter   map[string]any

	consumed atomic.Bool
}

// Capture creates a reference to value at the version its realm is reading.
func Capture[T Referenceable](value T) (*ThreadSafeReference[T], error) {

	ref := &ThreadSafeReference[T]{}

	var r *Realm
	var frozen engine.View
	needsRow := true

	switch x := any(value).(type) {
	case *Object:
		if x == nil {
			return nil, failure.New(failure.InvalidArgument, "cannot capture a nil object")
		}
		r, frozen = x.realm, x.frozen
		ref.table, ref.key = x.table, x.key
	case *List:
		if x == nil {
			return nil, failure.New(failure.InvalidArgument, "cannot capture a nil list")
		}
		r, frozen = x.parent.realm, x.parent.frozen
		ref.table, ref.key, ref.property = x.parent.table, x.parent.key, x.property
	case *Results:
		if x == nil {
			return nil, failure.New(failure.InvalidArgument, "cannot capture nil results")
		}
		r, frozen = x.realm, x.frozen
		ref.table, ref.filter = x.table, x.filter
		needsRow = false
	}

	if err := r.verifyOpen(); err != nil {
		return nil, err
	}
	if r.view {
		return nil, failure.New(failure.InvalidTransactionState, "cannot capture references during a migration")
	}

	v := r.read
	if fv, ok := frozen.(*engine.Version); ok {
		v = fv
	}

	if needsRow {
		t, ok := v.Table(ref.table)
		if !ok || !t.Has(ref.key) {
			return nil, failure.New(failure.InvalidArgument, "cannot capture an object that is not committed")
		}
	}

	ref.storeID = r.store.ID
	ref.pin = r.store.Pin(v)
	return ref, nil
}

// Version is the version the reference was captured at.
func (ref *ThreadSafeReference[T]) Version() uint64 {
	return ref.pin.Version.Number
}

func (ref *ThreadSafeReference[T]) Consumed() bool {
	return ref.consumed.Load()
}

// Dispose releases the pinned version without resolving. Disposing a
// consumed reference does nothing.
func (ref *ThreadSafeReference[T]) Dispose() {
	if ref.consumed.CompareAndSwap(false, true) {
		ref.pin.Release()
	}
}

// Resolve materializes ref in r. A realm behind the captured version is
// advanced to it. A realm ahead of it gets a frozen accessor showing the
// captured state, which can be thawed to follow the realm.
func Resolve[T Referenceable](r *Realm, ref *ThreadSafeReference[T]) (T, error) {

	var zero T

	if err := r.verifyOpen(); err != nil {
		return zero, err
	}
	if r.view {
		return zero, failure.New(failure.InvalidTransactionState, "cannot resolve references during a migration")
	}
	if ref.storeID != r.store.ID {
		return zero, failure.New(failure.ReferenceMismatch, "cannot resolve thread safe reference in realm at '%s' of a different file", r.config.Path)
	}
	if !ref.consumed.CompareAndSwap(false, true) {
		return zero, failure.New(failure.ReferenceAlreadyConsumed, "thread safe reference can only be resolved once")
	}
	defer ref.pin.Release()

	pinned := ref.pin.Version

	var frozen engine.View
	switch {
	case r.state == Reading && r.read.Number < pinned.Number:
		r.read = pinned
		r.markSeen(pinned.Number)
	case r.state == Writing || r.read.Number > pinned.Number:
		frozen = pinned
	}

	view := engine.View(pinned)
	if frozen == nil {
		view = r.current()
	}

	var result any
	switch any(zero).(type) {
	case *Object, *List:
		t, ok := view.Table(ref.table)
		if !ok || !t.Has(ref.key) {
			return zero, errInvalidated
		}
		o := &Object{realm: r, table: ref.table, key: ref.key, frozen: frozen}
		if ref.property == "" {
			result = o
			break
		}
		l, err := o.List(ref.property)
		if err != nil {
			return zero, err
		}
		result = l
	case *Results:
		result = &Results{realm: r, table: ref.table, filter: ref.filter, frozen: frozen}
	}

	return result.(T), nil
}
