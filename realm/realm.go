package realm

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fulldump/realmdb/engine"
	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/schema"
)

type State int

const (
	Idle State = iota
	Reading
	Writing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Writing:
		return "writing"
	}
	return "unknown"
}

// noCopy makes go vet complain about realms copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Realm is a handle over a shared store confined to one context. It always
// observes a consistent committed version, or the uncommitted state of its
// own write transaction. Realm is not safe for concurrent use.
type Realm struct {
	noCopy noCopy

	config Config
	store  *engine.Store
	logger *slog.Logger
	key    string

	state State
	read  *engine.Version
	tx    *engine.WriteTx

	// seen is the newest version this realm knows about, written by the
	// committing goroutine of other realms.
	seen        atomic.Uint64
	unsubscribe func()

	bindingMutex sync.Mutex
	binding      BindingContext
	bindingSet   bool

	// migration views
	migrating bool
	view      bool
}

// Open returns a realm over the configured file, creating, migrating and
// compacting it as configured.
func Open(ctx context.Context, config Config) (*Realm, error) {

	if err := config.validate(); err != nil {
		return nil, err
	}

	key := schedulerKey(&config)
	if config.Scheduler != nil {
		if r, ok := config.Scheduler.lookup(key); ok && r.state != Idle {
			if config.SchemaVersion != DynamicSchema && r.SchemaVersionOrZero() != config.SchemaVersion {
				return nil, failure.New(failure.SchemaMismatch, "realm at path '%s' already opened on current context with schema version %d, requested %d", config.Path, r.SchemaVersionOrZero(), config.SchemaVersion)
			}
			return r, nil
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	config.Logger = logger

	registry := config.Registry
	if registry == nil {
		registry = engine.DefaultRegistry
	}

	store, err := registry.Acquire(config.engineOptions())
	if err != nil {
		return nil, err
	}

	r := &Realm{
		config: config,
		store:  store,
		logger: logger,
		key:    key,
	}

	err = r.initialize(ctx)
	if err != nil {
		store.Release()
		return nil, err
	}

	err = r.compactOnLaunch(ctx)
	if err != nil {
		store.Release()
		return nil, err
	}

	r.read = store.Current()
	r.seen.Store(r.read.Number)
	r.state = Reading
	r.unsubscribe = store.Subscribe(r.onCommit)

	if config.BindingContext != nil {
		r.binding = config.BindingContext
		r.bindingSet = true
	}

	if config.Scheduler != nil {
		config.Scheduler.add(key, r)
	}

	logger.Debug("realm opened", "path", config.Path, "schema_version", r.read.SchemaVersion(), "version", r.read.Number)

	return r, nil
}

func (r *Realm) onCommit(v *engine.Version) {
	for {
		seen := r.seen.Load()
		if v.Number <= seen {
			return
		}
		if r.seen.CompareAndSwap(seen, v.Number) {
			break
		}
	}

	r.bindingMutex.Lock()
	b := r.binding
	r.bindingMutex.Unlock()

	if b != nil {
		b.DidChange()
	}
}

func (r *Realm) markSeen(number uint64) {
	for {
		seen := r.seen.Load()
		if number <= seen || r.seen.CompareAndSwap(seen, number) {
			return
		}
	}
}

func (r *Realm) verifyOpen() error {
	if r.state == Idle {
		return failure.New(failure.InstanceClosed, "cannot access realm that has been closed")
	}
	return nil
}

// verifyInWrite guards every mutation.
func (r *Realm) verifyInWrite() error {
	if err := r.verifyOpen(); err != nil {
		return err
	}
	if r.state != Writing {
		return failure.New(failure.InvalidTransactionState, "cannot modify managed objects outside of a write transaction")
	}
	return nil
}

// current is what the realm observes right now.
func (r *Realm) current() engine.View {
	if r.state == Writing {
		return r.tx
	}
	return r.read
}

func (r *Realm) Config() Config {
	return r.config
}

func (r *Realm) State() State {
	return r.state
}

func (r *Realm) IsClosed() bool {
	return r.state == Idle
}

func (r *Realm) IsInTransaction() bool {
	return r.state == Writing
}

// IsSameInstance is identity: two realms are the same instance only when
// they are the same handle.
func (r *Realm) IsSameInstance(other *Realm) bool {
	return r == other
}

// Version is the committed version the realm is reading.
func (r *Realm) Version() (uint64, error) {
	if err := r.verifyOpen(); err != nil {
		return 0, err
	}
	return r.read.Number, nil
}

func (r *Realm) Schema() (schema.Schema, error) {
	if err := r.verifyOpen(); err != nil {
		return nil, err
	}
	return r.current().Schema(), nil
}

func (r *Realm) SchemaVersion() (uint64, error) {
	if err := r.verifyOpen(); err != nil {
		return 0, err
	}
	return r.current().SchemaVersion(), nil
}

// SchemaVersionOrZero is SchemaVersion without error for closed realms.
func (r *Realm) SchemaVersionOrZero() uint64 {
	v, _ := r.SchemaVersion()
	return v
}

func (r *Realm) SetBindingContext(b BindingContext) error {
	if err := r.verifyOpen(); err != nil {
		return err
	}
	r.bindingMutex.Lock()
	defer r.bindingMutex.Unlock()
	if r.bindingSet {
		return failure.New(failure.InvalidArgument, "binding context is already set")
	}
	r.binding = b
	r.bindingSet = true
	return nil
}

func (r *Realm) BindingContext() BindingContext {
	r.bindingMutex.Lock()
	defer r.bindingMutex.Unlock()
	return r.binding
}

// BeginTransaction waits for the write lock, then moves the realm to the
// latest version in Writing state.
func (r *Realm) BeginTransaction(ctx context.Context) error {
	if err := r.verifyBegin(); err != nil {
		return err
	}
	tx, err := r.store.BeginWrite(ctx, r.config.WriteTimeout)
	if err != nil {
		return err
	}
	r.startWriting(tx)
	return nil
}

// TryBeginTransaction fails with Busy instead of waiting for another writer.
func (r *Realm) TryBeginTransaction() error {
	if err := r.verifyBegin(); err != nil {
		return err
	}
	tx, err := r.store.TryBeginWrite()
	if err != nil {
		return err
	}
	r.startWriting(tx)
	return nil
}

func (r *Realm) verifyBegin() error {
	if err := r.verifyOpen(); err != nil {
		return err
	}
	if r.view {
		return failure.New(failure.InvalidTransactionState, "cannot control transactions during a migration")
	}
	if r.state == Writing {
		return failure.New(failure.InvalidTransactionState, "the realm is already in a write transaction")
	}
	if r.config.SchemaMode == ReadOnly {
		return failure.New(failure.InvalidTransactionState, "cannot write to a read-only realm")
	}
	return nil
}

func (r *Realm) startWriting(tx *engine.WriteTx) {
	r.tx = tx
	r.read = tx.Base()
	r.markSeen(r.read.Number)
	r.state = Writing
}

func (r *Realm) CommitTransaction() error {
	if err := r.verifyEnd(); err != nil {
		return err
	}

	previous := r.seen.Load()
	r.markSeen(r.tx.Base().Number + 1)

	v, err := r.tx.Commit()
	if err != nil {
		r.seen.Store(previous)
		return err
	}

	r.read = v
	r.tx = nil
	r.state = Reading
	return nil
}

func (r *Realm) CancelTransaction() error {
	if err := r.verifyEnd(); err != nil {
		return err
	}
	r.tx.Cancel()
	r.read = r.tx.Base()
	r.tx = nil
	r.state = Reading
	return nil
}

func (r *Realm) verifyEnd() error {
	if err := r.verifyOpen(); err != nil {
		return err
	}
	if r.view {
		return failure.New(failure.InvalidTransactionState, "cannot control transactions during a migration")
	}
	if r.state != Writing {
		return failure.New(failure.InvalidTransactionState, "the realm is not in a write transaction")
	}
	return nil
}

// Refresh moves the realm to the latest committed version. It reports
// whether the realm advanced. It does nothing while writing.
func (r *Realm) Refresh() (bool, error) {
	if err := r.verifyOpen(); err != nil {
		return false, err
	}
	if r.state == Writing || r.view {
		return false, nil
	}
	latest := r.store.Current()
	if latest.Number == r.read.Number {
		return false, nil
	}
	r.read = latest
	r.markSeen(latest.Number)
	return true, nil
}

// Close rolls back an open write transaction, releases the binding context
// and the store. Closing twice is fine.
func (r *Realm) Close() error {
	if r.state == Idle {
		return nil
	}
	if r.view {
		r.state = Idle
		return nil
	}

	if r.tx != nil {
		r.tx.Cancel()
		r.tx = nil
	}

	if r.unsubscribe != nil {
		r.unsubscribe()
	}

	r.bindingMutex.Lock()
	b := r.binding
	r.binding = nil
	r.bindingMutex.Unlock()
	if releaser, ok := b.(Releaser); ok {
		releaser.Release()
	}

	if r.config.Scheduler != nil {
		r.config.Scheduler.remove(r.key, r)
	}

	r.state = Idle
	r.read = nil

	return r.store.Release()
}
