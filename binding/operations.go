package binding

import (
	"context"
	"time"

	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/realm"
	"github.com/fulldump/realmdb/schema"
)

// MigrationFunc receives handles to the old and new realms, valid only
// during the call, and the serialized old schema.
type MigrationFunc func(oldRealm, newRealm Handle, oldSchema []byte, oldVersion uint64) bool

type OpenSpec struct {
	Path          string
	InMemory      bool
	EncryptionKey []byte
	SchemaMode    realm.SchemaMode
	Schema        schema.Schema
	SchemaVersion uint64
	Backend       string
	WriteTimeout  time.Duration

	Migration             MigrationFunc
	ShouldCompactOnLaunch realm.CompactFunc

	// Context opens the realm on the loop of another realm handle, where
	// the same path yields the same instance.
	Context Handle
}

type disposer interface {
	Dispose()
}

// Record is the plain form of an object.
type Record struct {
	Key    int64          `json:"key"`
	Values map[string]any `json:"values"`
}

func (rt *Runtime) Open(spec OpenSpec) (Handle, Result) {

	rt.mutex.Lock()
	if rt.closed {
		rt.mutex.Unlock()
		return 0, resultOf(failure.New(failure.InstanceClosed, "runtime is closed"))
	}
	var l *loop
	if spec.Context != 0 {
		var inst *instance
		e, ok := rt.handles[spec.Context]
		if ok {
			inst, ok = e.value.(*instance)
		}
		if !ok || e.loop == nil {
			rt.mutex.Unlock()
			return 0, resultOf(failure.New(failure.InvalidArgument, "handle %d is not a realm", spec.Context))
		}
		l = inst.loop
		l.refs++
	}
	rt.mutex.Unlock()

	if l == nil {
		l = newLoop()
		l.refs = 1
	}

	inst := &instance{loop: l}
	h := rt.register(l, inst)

	config := realm.Config{
		Path:                  spec.Path,
		InMemory:              spec.InMemory,
		EncryptionKey:         spec.EncryptionKey,
		SchemaMode:            spec.SchemaMode,
		Schema:                spec.Schema,
		SchemaVersion:         spec.SchemaVersion,
		Backend:               spec.Backend,
		WriteTimeout:          spec.WriteTimeout,
		ShouldCompactOnLaunch: spec.ShouldCompactOnLaunch,
		Scheduler:             l.scheduler,
		BindingContext:        &observer{rt: rt, handle: h},
		Logger:                rt.Logger,
		Registry:              rt.Registry,
	}
	if spec.Migration != nil {
		config.MigrationFunc = rt.migration(spec.Migration)
	}

	result := rt.run(h, func(e *entry) error {
		r, err := realm.Open(context.Background(), config)
		if err != nil {
			return err
		}
		inst.realm = r
		return nil
	})

	if !result.Ok {
		rt.drop(h)
		rt.unref(l)
		return 0, result
	}
	return h, result
}

func (rt *Runtime) migration(f MigrationFunc) realm.MigrationFunc {
	return func(oldRealm, newRealm *realm.Realm, target schema.Schema, oldVersion uint64) bool {
		oldHandle := rt.register(nil, &instance{realm: oldRealm})
		newHandle := rt.register(nil, &instance{realm: newRealm})
		defer rt.drop(oldHandle)
		defer rt.drop(newHandle)

		old, err := oldRealm.Schema()
		if err != nil {
			return false
		}
		data, err := schema.Marshal(old)
		if err != nil {
			return false
		}
		return f(oldHandle, newHandle, data, oldVersion)
	}
}

func (rt *Runtime) unref(l *loop) {
	rt.mutex.Lock()
	l.refs--
	last := l.refs <= 0
	rt.mutex.Unlock()
	if last {
		l.stop()
	}
}

func (rt *Runtime) withRealm(h Handle, f func(inst *instance) error) Result {
	return rt.run(h, func(e *entry) error {
		inst, ok := e.value.(*instance)
		if !ok {
			return typeError(h, e.value, "realm")
		}
		return f(inst)
	})
}

// Close closes the realm. The handle stays valid and reports InstanceClosed.
func (rt *Runtime) Close(h Handle) Result {
	return rt.withRealm(h, func(inst *instance) error {
		return inst.realm.Close()
	})
}

// Destroy closes the realm and frees the handle.
func (rt *Runtime) Destroy(h Handle) Result {
	result := rt.Close(h)
	e, ok := rt.drop(h)
	if ok && e.loop != nil {
		rt.unref(e.loop)
	}
	if result.Kind == failure.InstanceClosed {
		return success
	}
	return result
}

func (rt *Runtime) SetManagedState(h Handle, state any) Result {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	e, ok := rt.handles[h]
	if !ok {
		return resultOf(failure.New(failure.InvalidArgument, "invalid handle %d", h))
	}
	inst, ok := e.value.(*instance)
	if !ok {
		return resultOf(typeError(h, e.value, "realm"))
	}
	inst.state = state
	return success
}

func (rt *Runtime) GetManagedState(h Handle) (any, Result) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	e, ok := rt.handles[h]
	if !ok {
		return nil, resultOf(failure.New(failure.InvalidArgument, "invalid handle %d", h))
	}
	inst, ok := e.value.(*instance)
	if !ok {
		return nil, resultOf(typeError(h, e.value, "realm"))
	}
	return inst.state, success
}

func (rt *Runtime) GetTable(h Handle, name string) (Handle, Result) {
	var table Handle
	result := rt.run(h, func(e *entry) error {
		inst, ok := e.value.(*instance)
		if !ok {
			return typeError(h, e.value, "realm")
		}
		t, err := inst.realm.Table(name)
		if err != nil {
			return err
		}
		table = rt.register(e.loop, t)
		return nil
	})
	return table, result
}

func (rt *Runtime) SchemaVersion(h Handle) (uint64, Result) {
	var version uint64
	result := rt.withRealm(h, func(inst *instance) (err error) {
		version, err = inst.realm.SchemaVersion()
		return
	})
	return version, result
}

func (rt *Runtime) Schema(h Handle) (schema.Schema, Result) {
	var s schema.Schema
	result := rt.withRealm(h, func(inst *instance) (err error) {
		s, err = inst.realm.Schema()
		return
	})
	return s, result
}

func (rt *Runtime) Version(h Handle) (uint64, Result) {
	var version uint64
	result := rt.withRealm(h, func(inst *instance) (err error) {
		version, err = inst.realm.Version()
		return
	})
	return version, result
}

func (rt *Runtime) BeginTransaction(h Handle) Result {
	return rt.withRealm(h, func(inst *instance) error {
		return inst.realm.BeginTransaction(context.Background())
	})
}

func (rt *Runtime) TryBeginTransaction(h Handle) Result {
	return rt.withRealm(h, func(inst *instance) error {
		return inst.realm.TryBeginTransaction()
	})
}

func (rt *Runtime) CommitTransaction(h Handle) Result {
	return rt.withRealm(h, func(inst *instance) error {
		return inst.realm.CommitTransaction()
	})
}

func (rt *Runtime) CancelTransaction(h Handle) Result {
	return rt.withRealm(h, func(inst *instance) error {
		return inst.realm.CancelTransaction()
	})
}

func (rt *Runtime) IsInTransaction(h Handle) (bool, Result) {
	var writing bool
	result := rt.withRealm(h, func(inst *instance) error {
		writing = inst.realm.IsInTransaction()
		return nil
	})
	return writing, result
}

func (rt *Runtime) IsClosed(h Handle) (bool, Result) {
	var closed bool
	result := rt.withRealm(h, func(inst *instance) error {
		closed = inst.realm.IsClosed()
		return nil
	})
	return closed, result
}

func (rt *Runtime) IsSameInstance(a, b Handle) (bool, Result) {
	var ra, rb *realm.Realm
	result := rt.withRealm(a, func(inst *instance) error {
		ra = inst.realm
		return nil
	})
	if !result.Ok {
		return false, result
	}
	result = rt.withRealm(b, func(inst *instance) error {
		rb = inst.realm
		return nil
	})
	if !result.Ok {
		return false, result
	}
	return ra.IsSameInstance(rb), success
}

func (rt *Runtime) Refresh(h Handle) (bool, Result) {
	var advanced bool
	result := rt.withRealm(h, func(inst *instance) (err error) {
		advanced, err = inst.realm.Refresh()
		return
	})
	return advanced, result
}

func (rt *Runtime) Compact(h Handle) (bool, Result) {
	var compacted bool
	result := rt.withRealm(h, func(inst *instance) (err error) {
		compacted, err = inst.realm.Compact(context.Background())
		return
	})
	return compacted, result
}

func (rt *Runtime) WriteCopy(h Handle, path string, key []byte) Result {
	return rt.withRealm(h, func(inst *instance) error {
		return inst.realm.WriteCopy(path, key)
	})
}

func (rt *Runtime) withTable(h Handle, f func(e *entry, t *realm.Table) error) Result {
	return rt.run(h, func(e *entry) error {
		t, ok := e.value.(*realm.Table)
		if !ok {
			return typeError(h, e.value, "table")
		}
		return f(e, t)
	})
}

func (rt *Runtime) TableCount(h Handle) (int, Result) {
	var n int
	result := rt.withTable(h, func(e *entry, t *realm.Table) (err error) {
		n, err = t.Count()
		return
	})
	return n, result
}

func (rt *Runtime) CreateObject(table Handle, values map[string]any) (Handle, Result) {
	var object Handle
	result := rt.withTable(table, func(e *entry, t *realm.Table) error {
		o, err := t.Realm().CreateObject(t.Name(), values)
		if err != nil {
			return err
		}
		object = rt.register(e.loop, o)
		return nil
	})
	return object, result
}

func (rt *Runtime) createUnique(table Handle, key any, tryUpdate bool, values map[string]any) (Handle, bool, Result) {
	var object Handle
	var isNew bool
	result := rt.withTable(table, func(e *entry, t *realm.Table) error {
		o, created, err := t.Realm().CreateObjectUnique(t.Name(), key, tryUpdate, values)
		if err != nil {
			return err
		}
		isNew = created
		object = rt.register(e.loop, o)
		return nil
	})
	return object, isNew, result
}

func (rt *Runtime) CreateObjectIntUnique(table Handle, key int64, tryUpdate bool, values map[string]any) (Handle, bool, Result) {
	return rt.createUnique(table, key, tryUpdate, values)
}

func (rt *Runtime) CreateObjectStringUnique(table Handle, key string, tryUpdate bool, values map[string]any) (Handle, bool, Result) {
	return rt.createUnique(table, key, tryUpdate, values)
}

func (rt *Runtime) CreateObjectNullUnique(table Handle, tryUpdate bool, values map[string]any) (Handle, bool, Result) {
	return rt.createUnique(table, nil, tryUpdate, values)
}

// FindByPrimaryKey returns 0 when there is no such object.
func (rt *Runtime) FindByPrimaryKey(table Handle, key any) (Handle, Result) {
	var object Handle
	result := rt.withTable(table, func(e *entry, t *realm.Table) error {
		o, err := t.FindByPrimaryKey(key)
		if err != nil || o == nil {
			return err
		}
		object = rt.register(e.loop, o)
		return nil
	})
	return object, result
}

func (rt *Runtime) Where(table Handle, filter map[string]any) (Handle, Result) {
	var results Handle
	result := rt.withTable(table, func(e *entry, t *realm.Table) error {
		r, err := t.Where(filter)
		if err != nil {
			return err
		}
		results = rt.register(e.loop, r)
		return nil
	})
	return results, result
}

// Query reads every object of the table matching filter.
func (rt *Runtime) Query(table Handle, filter map[string]any) ([]Record, Result) {
	records := []Record{}
	result := rt.withTable(table, func(e *entry, t *realm.Table) error {
		r, err := t.Where(filter)
		if err != nil {
			return err
		}
		objects, err := r.Objects()
		if err != nil {
			return err
		}
		for _, o := range objects {
			values, err := o.Values()
			if err != nil {
				return err
			}
			records = append(records, Record{Key: o.Key(), Values: values})
		}
		return nil
	})
	return records, result
}

func (rt *Runtime) ResultsCount(h Handle) (int, Result) {
	var n int
	result := rt.run(h, func(e *entry) (err error) {
		r, ok := e.value.(*realm.Results)
		if !ok {
			return typeError(h, e.value, "results")
		}
		n, err = r.Len()
		return
	})
	return n, result
}

func (rt *Runtime) withObject(h Handle, f func(o *realm.Object) error) Result {
	return rt.run(h, func(e *entry) error {
		o, ok := e.value.(*realm.Object)
		if !ok {
			return typeError(h, e.value, "object")
		}
		return f(o)
	})
}

func (rt *Runtime) ObjectValues(h Handle) (Record, Result) {
	record := Record{}
	result := rt.withObject(h, func(o *realm.Object) (err error) {
		record.Key = o.Key()
		record.Values, err = o.Values()
		return
	})
	return record, result
}

func (rt *Runtime) SetValues(h Handle, values map[string]any) Result {
	return rt.withObject(h, func(o *realm.Object) error {
		return o.Set(values)
	})
}

func (rt *Runtime) DeleteObject(h Handle) Result {
	return rt.withObject(h, func(o *realm.Object) error {
		return o.Delete()
	})
}

func (rt *Runtime) GetList(h Handle, property string) (Handle, Result) {
	var list Handle
	result := rt.run(h, func(e *entry) error {
		o, ok := e.value.(*realm.Object)
		if !ok {
			return typeError(h, e.value, "object")
		}
		l, err := o.List(property)
		if err != nil {
			return err
		}
		list = rt.register(e.loop, l)
		return nil
	})
	return list, result
}

func (rt *Runtime) ListLen(h Handle) (int, Result) {
	var n int
	result := rt.run(h, func(e *entry) (err error) {
		l, ok := e.value.(*realm.List)
		if !ok {
			return typeError(h, e.value, "list")
		}
		n, err = l.Len()
		return
	})
	return n, result
}

func capture[T realm.Referenceable](rt *Runtime, h Handle) (Handle, Result) {
	var ref Handle
	result := rt.run(h, func(e *entry) error {
		value, ok := e.value.(T)
		if !ok {
			var zero T
			return typeError(h, e.value, kindName(any(zero)))
		}
		r, err := realm.Capture(value)
		if err != nil {
			return err
		}
		ref = rt.register(nil, r)
		return nil
	})
	return ref, result
}

func resolve[T realm.Referenceable](rt *Runtime, h Handle, ref Handle) (Handle, Result) {

	e, err := rt.lookup(ref)
	if err != nil {
		return 0, resultOf(err)
	}
	r, ok := e.value.(*realm.ThreadSafeReference[T])
	if !ok {
		return 0, resultOf(typeError(ref, e.value, "reference"))
	}

	var resolved Handle
	result := rt.run(h, func(re *entry) error {
		inst, ok := re.value.(*instance)
		if !ok {
			return typeError(h, re.value, "realm")
		}
		value, err := realm.Resolve(inst.realm, r)
		if err != nil {
			return err
		}
		resolved = rt.register(re.loop, value)
		return nil
	})
	return resolved, result
}

func (rt *Runtime) CaptureObject(h Handle) (Handle, Result) {
	return capture[*realm.Object](rt, h)
}

func (rt *Runtime) CaptureList(h Handle) (Handle, Result) {
	return capture[*realm.List](rt, h)
}

func (rt *Runtime) CaptureResults(h Handle) (Handle, Result) {
	return capture[*realm.Results](rt, h)
}

func (rt *Runtime) ResolveObject(h Handle, ref Handle) (Handle, Result) {
	return resolve[*realm.Object](rt, h, ref)
}

func (rt *Runtime) ResolveList(h Handle, ref Handle) (Handle, Result) {
	return resolve[*realm.List](rt, h, ref)
}

func (rt *Runtime) ResolveResults(h Handle, ref Handle) (Handle, Result) {
	return resolve[*realm.Results](rt, h, ref)
}

// DisposeReference releases a reference handle. Resolving does not release
// it, so a consumed reference keeps reporting ReferenceAlreadyConsumed until
// it is disposed. It can be called from any goroutine.
func (rt *Runtime) DisposeReference(ref Handle) Result {
	e, err := rt.lookup(ref)
	if err != nil {
		return resultOf(err)
	}
	d, ok := e.value.(disposer)
	if !ok {
		return resultOf(typeError(ref, e.value, "reference"))
	}
	rt.drop(ref)
	d.Dispose()
	return success
}
