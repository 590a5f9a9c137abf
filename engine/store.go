package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/maruel/ksid"

	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/storage"
)

var (
	ErrWriteBusy   = failure.New(failure.Busy, "another write transaction is in progress")
	ErrStoreClosed = failure.New(failure.InstanceClosed, "the store is closed")
)

type Options struct {
	Path      string
	InMemory  bool
	Key       []byte
	Backend   string
	Allocator RowAllocator
	Logger    *slog.Logger
}

// Store is the shared connection to one database. It is safe for
// concurrent use: readers work on immutable versions and a single writer
// at a time prepares the next one.
type Store struct {
	ID      ksid.ID
	Options Options

	storage   storage.Storage
	allocator RowAllocator
	logger    *slog.Logger

	mutex     sync.Mutex
	current   *Version
	pins      map[uint64]int
	listeners map[int]func(v *Version)
	nextID    int
	refs      int
	pinned    int
	closed    bool

	writer      chan struct{}
	notifyMutex sync.Mutex

	// registry bookkeeping
	registry *Registry
	name     string
}

func Open(options Options) (*Store, error) {

	if len(options.Key) != 0 && len(options.Key) != storage.KeySize {
		return nil, failure.New(failure.InvalidArgument, "encryption key must be 0 or %d bytes long", storage.KeySize)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	allocator := options.Allocator
	if allocator == nil {
		allocator = SequentialAllocator{}
	}

	backend := options.Backend
	if options.InMemory {
		backend = storage.BackendMemory
	}

	st, err := storage.Open(storage.Options{
		Backend: backend,
		Path:    options.Path,
		Key:     options.Key,
	})
	if err != nil {
		return nil, failure.Wrap(failure.IOFailure, err, "open '%s'", options.Path)
	}

	s := &Store{
		ID:        ksid.NewID(),
		Options:   options,
		storage:   st,
		allocator: allocator,
		logger:    logger,
		current:   emptyVersion(),
		pins:      map[uint64]int{},
		listeners: map[int]func(v *Version){},
		writer:    make(chan struct{}, 1),
		refs:      1,
	}

	t0 := time.Now()
	err = s.load()
	if err != nil {
		st.Close()
		return nil, failure.Wrap(failure.IOFailure, err, "load '%s'", options.Path)
	}

	logger.Debug("store loaded",
		"path", options.Path,
		"version", s.current.Number,
		"objects", s.current.Objects(),
		"duration", time.Since(t0),
	)

	return s, nil
}

func (s *Store) load() error {

	cmds, errs := s.storage.Load()

	v := emptyVersion()
	var err error
	for loaded := range cmds {
		if err != nil {
			continue // drain
		}
		switch loaded.Cmd.Name {
		case commandSnapshot:
			v, err = decodeSnapshot(loaded.Cmd.Payload)
		case commandCommit:
			v, err = s.replay(v, loaded)
		default:
			err = fmt.Errorf("unknown command '%s'", loaded.Cmd.Name)
		}
	}

	if loadErr := <-errs; loadErr != nil {
		return loadErr
	}
	if err != nil {
		return err
	}

	s.current = v
	return nil
}

func (s *Store) replay(base *Version, loaded storage.LoadedCommand) (*Version, error) {

	payload := storedCommit{}
	err := json.Unmarshal(loaded.Cmd.Payload, &payload)
	if err != nil {
		return nil, fmt.Errorf("decode commit %d: %w", loaded.Seq, err)
	}

	tx := newWriteTx(s, base)
	tx.record = false
	for _, c := range payload.Changes {
		err := tx.apply(c)
		if err != nil {
			return nil, fmt.Errorf("replay commit %d: %w", payload.Version, err)
		}
	}

	return tx.version(payload.Version), nil
}

// Current is the latest committed version.
func (s *Store) Current() *Version {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.current
}

func (s *Store) Closed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}

// BeginWrite waits for the writer lock. A zero timeout waits until the lock
// is acquired or ctx is done.
func (s *Store) BeginWrite(ctx context.Context, timeout time.Duration) (*WriteTx, error) {

	if s.Closed() {
		return nil, ErrStoreClosed
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrWriteBusy
		}
		return nil, ctx.Err()
	}

	return s.startWrite()
}

// TryBeginWrite fails with ErrWriteBusy instead of waiting.
func (s *Store) TryBeginWrite() (*WriteTx, error) {

	if s.Closed() {
		return nil, ErrStoreClosed
	}

	select {
	case s.writer <- struct{}{}:
	default:
		return nil, ErrWriteBusy
	}

	return s.startWrite()
}

func (s *Store) startWrite() (*WriteTx, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		<-s.writer
		return nil, ErrStoreClosed
	}
	return newWriteTx(s, s.current), nil
}

func (s *Store) releaseWriter() {
	<-s.writer
}

func (s *Store) commit(tx *WriteTx) (*Version, error) {

	v := tx.version(tx.base.Number + 1)

	cmd, err := storage.NewCommand(commandCommit, commitPayload{
		Version: v.Number,
		Changes: tx.changes,
	})
	if err != nil {
		return nil, failure.Wrap(failure.IOFailure, err, "encode commit")
	}

	err = s.storage.Persist(cmd)
	if err != nil {
		return nil, failure.Wrap(failure.IOFailure, err, "persist commit")
	}

	s.mutex.Lock()
	s.current = v
	listeners := make([]func(v *Version), 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	s.mutex.Unlock()

	s.logger.Debug("commit", "path", s.Options.Path, "version", v.Number, "changes", len(tx.changes))

	// Taken before the writer is released so the next commit is delivered
	// after this one.
	s.notifyMutex.Lock()
	defer s.notifyMutex.Unlock()
	tx.finish()

	for _, l := range listeners {
		l(v)
	}

	return v, nil
}

// Subscribe registers a function called after every commit, in commit
// order. It runs on the committing goroutine and must not commit itself.
func (s *Store) Subscribe(f func(v *Version)) (unsubscribe func()) {
	s.mutex.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = f
	s.mutex.Unlock()

	return func() {
		s.mutex.Lock()
		delete(s.listeners, id)
		s.mutex.Unlock()
	}
}

// Pin keeps a version and its store alive after the realm that took it is
// closed.
type Pin struct {
	store   *Store
	Version *Version
	once    sync.Once
}

// Pin keeps v available until the pin is released. The store is not
// closed while it has pins, even when every holder has released it.
func (s *Store) Pin(v *Version) *Pin {
	s.mutex.Lock()
	s.pins[v.Number]++
	s.pinned++
	s.mutex.Unlock()
	return &Pin{store: s, Version: v}
}

func (p *Pin) Release() {
	p.once.Do(func() {
		s := p.store
		s.drop(func() {
			s.pins[p.Version.Number]--
			if s.pins[p.Version.Number] <= 0 {
				delete(s.pins, p.Version.Number)
			}
			s.pinned--
		})
	})
}

// PinnedVersions returns how many pins hold each version.
func (s *Store) PinnedVersions() map[uint64]int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	result := make(map[uint64]int, len(s.pins))
	for k, v := range s.pins {
		result[k] = v
	}
	return result
}

// Stats returns the bytes used by the storage and the bytes the current
// version would take once compacted.
func (s *Store) Stats() (total, used int64, err error) {
	total, err = s.storage.Size()
	if err != nil {
		return 0, 0, failure.Wrap(failure.IOFailure, err, "storage size")
	}
	cmd, err := snapshotCommand(s.Current())
	if err != nil {
		return 0, 0, failure.Wrap(failure.IOFailure, err, "encode snapshot")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return 0, 0, failure.Wrap(failure.IOFailure, err, "encode snapshot")
	}
	return total, int64(len(data)) + 1, nil
}

// Compact rewrites the storage with a single snapshot of the current
// version. It waits for the writer lock.
func (s *Store) Compact(ctx context.Context) error {

	tx, err := s.BeginWrite(ctx, 0)
	if err != nil {
		return err
	}
	defer tx.Cancel()

	before, _ := s.storage.Size()

	cmd, err := snapshotCommand(tx.base)
	if err != nil {
		return failure.Wrap(failure.IOFailure, err, "encode snapshot")
	}
	err = s.storage.Rewrite([]*storage.Command{cmd})
	if err != nil {
		return failure.Wrap(failure.IOFailure, err, "rewrite storage")
	}

	after, _ := s.storage.Size()
	s.logger.Info("store compacted", "path", s.Options.Path, "before", before, "after", after)
	return nil
}

// WriteCopy writes the current version to a new database at path,
// encrypted with key when it is not empty.
func (s *Store) WriteCopy(path string, key []byte) error {

	if len(key) != 0 && len(key) != storage.KeySize {
		return failure.New(failure.InvalidArgument, "encryption key must be 0 or %d bytes long", storage.KeySize)
	}

	_, err := os.Stat(path)
	if err == nil {
		return failure.New(failure.IOFailure, "file '%s' already exists", path)
	}
	if !os.IsNotExist(err) {
		return failure.Wrap(failure.IOFailure, err, "write copy")
	}

	backend := s.Options.Backend
	if s.Options.InMemory {
		backend = storage.BackendJSONL
	}

	dst, err := storage.Open(storage.Options{Backend: backend, Path: path, Key: key})
	if err != nil {
		return failure.Wrap(failure.IOFailure, err, "write copy")
	}
	defer dst.Close()

	cmd, err := snapshotCommand(s.Current())
	if err != nil {
		return failure.Wrap(failure.IOFailure, err, "encode snapshot")
	}
	err = dst.Persist(cmd)
	if err != nil {
		return failure.Wrap(failure.IOFailure, err, "write copy")
	}
	return nil
}

// Reset discards all the data. The caller must hold the only reference.
func (s *Store) Reset(ctx context.Context) error {

	tx, err := s.BeginWrite(ctx, 0)
	if err != nil {
		return err
	}
	defer tx.Cancel()

	err = s.storage.Rewrite(nil)
	if err != nil {
		return failure.Wrap(failure.IOFailure, err, "reset")
	}

	s.mutex.Lock()
	v := emptyVersion()
	v.Number = s.current.Number + 1
	s.current = v
	s.mutex.Unlock()

	s.logger.Warn("store reset", "path", s.Options.Path)
	return nil
}

func (s *Store) close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	s.mutex.Unlock()

	return s.storage.Close()
}
