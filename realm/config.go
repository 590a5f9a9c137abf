package realm

import (
	"log/slog"
	"time"

	"github.com/fulldump/realmdb/engine"
	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/schema"
	"github.com/fulldump/realmdb/storage"
)

type SchemaMode int

const (
	// Automatic converts the data when the schema version grows and creates
	// new object types in place.
	Automatic SchemaMode = iota
	// ReadOnly never writes the schema, any difference is a mismatch.
	ReadOnly
	// ResetOnMigrationNeeded discards all the data instead of migrating.
	ResetOnMigrationNeeded
)

func (m SchemaMode) String() string {
	switch m {
	case Automatic:
		return "automatic"
	case ReadOnly:
		return "read-only"
	case ResetOnMigrationNeeded:
		return "reset"
	}
	return "unknown"
}

// DynamicSchema opens whatever schema is stored. Config.Schema must be nil.
const DynamicSchema = engine.NotVersioned

// MigrationFunc moves the data from the old realm into the new one, which
// already has the target schema. Returning false aborts the open.
type MigrationFunc func(oldRealm, newRealm *Realm, target schema.Schema, oldVersion uint64) bool

// CompactFunc receives the bytes used by the file and the bytes the data
// would take once compacted.
type CompactFunc func(totalBytes, usedBytes uint64) bool

type Config struct {
	Path          string
	InMemory      bool
	EncryptionKey []byte

	SchemaMode    SchemaMode
	Schema        schema.Schema
	SchemaVersion uint64

	MigrationFunc         MigrationFunc
	ShouldCompactOnLaunch CompactFunc

	// Backend is the storage backend, see storage.BackendJSONL.
	Backend   string
	Allocator engine.RowAllocator

	// WriteTimeout bounds how long BeginTransaction waits for another
	// writer. Zero waits forever.
	WriteTimeout time.Duration

	// Scheduler is the context the realm is confined to. Opening the same
	// path twice on one scheduler returns the same realm.
	Scheduler *Scheduler

	BindingContext BindingContext

	Logger   *slog.Logger
	Registry *engine.Registry
}

func (c *Config) validate() error {

	if len(c.EncryptionKey) != 0 && len(c.EncryptionKey) != storage.KeySize {
		return failure.New(failure.InvalidArgument, "encryption key must be 0 or %d bytes long, got %d", storage.KeySize, len(c.EncryptionKey))
	}

	if c.Path == "" && !c.InMemory {
		return failure.New(failure.InvalidArgument, "path is required")
	}

	if c.SchemaVersion == DynamicSchema {
		if c.Schema != nil {
			return failure.New(failure.InvalidArgument, "a schema requires a schema version")
		}
		return nil
	}

	return c.Schema.Validate()
}

func (c *Config) engineOptions() engine.Options {
	return engine.Options{
		Path:      c.Path,
		InMemory:  c.InMemory,
		Key:       c.EncryptionKey,
		Backend:   c.Backend,
		Allocator: c.Allocator,
		Logger:    c.Logger,
	}
}
