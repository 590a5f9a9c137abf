package realm

import (
	"context"
	"fmt"
	"time"

	"github.com/fulldump/realmdb/engine"
	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/schema"
)

// initialize brings the stored schema to the configured one. Decisions are
// taken on the latest version and confirmed under the write lock, starting
// over when another writer got there first.
func (r *Realm) initialize(ctx context.Context) error {

	c := &r.config
	if c.SchemaVersion == DynamicSchema {
		return nil
	}

	for {
		v := r.store.Current()
		stored := v.SchemaVersion()

		switch {
		case stored == engine.NotVersioned:
			if c.SchemaMode == ReadOnly {
				return failure.New(failure.SchemaMismatch, "cannot initialize the schema of a read-only realm at '%s'", c.Path)
			}
			done, err := r.writeSchema(ctx, v, c.Schema, c.SchemaVersion)
			if done || err != nil {
				return err
			}

		case c.SchemaVersion < stored:
			return failure.New(failure.SchemaVersionDowngrade, "provided schema version %d is less than last set version %d", c.SchemaVersion, stored)

		case c.SchemaVersion == stored:
			err := schema.Satisfy(v.Schema(), c.Schema, c.SchemaMode == Automatic)
			if err != nil {
				if c.SchemaMode != ResetOnMigrationNeeded {
					return err
				}
				if err := r.reset(ctx); err != nil {
					return err
				}
				continue
			}
			if c.SchemaMode == ReadOnly || !needsWrite(v.Schema(), c.Schema) {
				return nil
			}
			done, err := r.writeSchema(ctx, v, schema.Merge(v.Schema(), c.Schema), stored)
			if done || err != nil {
				return err
			}

		default:
			if c.SchemaMode == ReadOnly {
				return failure.New(failure.SchemaMismatch, "schema version %d of read-only realm at '%s' does not match stored version %d", c.SchemaVersion, c.Path, stored)
			}
			if c.MigrationFunc == nil && c.SchemaMode == ResetOnMigrationNeeded {
				if err := r.reset(ctx); err != nil {
					return err
				}
				continue
			}
			done, err := r.migrate(ctx, v)
			if done || err != nil {
				return err
			}
		}
	}
}

// needsWrite is true when the requested schema adds object types or
// changes indexes.
func needsWrite(stored, requested schema.Schema) bool {
	for _, c := range schema.Compare(stored, requested) {
		switch c.Kind {
		case schema.AddObject, schema.AddIndex, schema.RemoveIndex:
			return true
		}
	}
	return false
}

func (r *Realm) beginAt(ctx context.Context, v *engine.Version) (*engine.WriteTx, bool, error) {
	tx, err := r.store.BeginWrite(ctx, r.config.WriteTimeout)
	if err != nil {
		return nil, false, err
	}
	if tx.Base().Number != v.Number {
		tx.Cancel()
		return nil, false, nil
	}
	return tx, true, nil
}

func (r *Realm) writeSchema(ctx context.Context, v *engine.Version, target schema.Schema, version uint64) (bool, error) {

	tx, ok, err := r.beginAt(ctx, v)
	if !ok {
		return false, err
	}
	defer tx.Cancel()

	err = tx.SetSchema(target, version)
	if err != nil {
		return false, err
	}
	_, err = tx.Commit()
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Realm) reset(ctx context.Context) error {
	if r.store.References() > 1 {
		return failure.New(failure.SchemaMismatch, "cannot reset '%s' while it is opened elsewhere", r.config.Path)
	}
	r.logger.Warn("schema changed, discarding all data", "path", r.config.Path)
	return r.store.Reset(ctx)
}

func (r *Realm) migrate(ctx context.Context, v *engine.Version) (bool, error) {

	c := &r.config

	tx, ok, err := r.beginAt(ctx, v)
	if !ok {
		return false, err
	}
	defer tx.Cancel()

	oldVersion := v.SchemaVersion()
	target := schema.Merge(v.Schema(), c.Schema)

	r.logger.Info("migration started", "path", c.Path, "from", oldVersion, "to", c.SchemaVersion)
	t0 := time.Now()

	err = tx.SetSchema(target, c.SchemaVersion)
	if err != nil {
		return false, err
	}

	if c.MigrationFunc != nil {
		oldRealm := r.migrationView(Reading, tx.Base(), nil)
		newRealm := r.migrationView(Writing, tx.Base(), tx)
		newRealm.migrating = true

		ok, err := runMigration(c.MigrationFunc, oldRealm, newRealm, target, oldVersion)

		oldRealm.state = Idle
		newRealm.state = Idle

		if err != nil {
			r.logger.Error("migration failed", "path", c.Path, "error", err)
			return false, failure.Wrap(failure.MigrationFailed, err, "migration from version %d to %d failed", oldVersion, c.SchemaVersion)
		}
		if !ok {
			r.logger.Error("migration declined", "path", c.Path)
			return false, failure.New(failure.MigrationFailed, "migration from version %d to %d failed", oldVersion, c.SchemaVersion)
		}
	}

	err = tx.CheckPrimaryKeys()
	if err != nil {
		return false, failure.Wrap(failure.MigrationFailed, err, "migration from version %d to %d failed", oldVersion, c.SchemaVersion)
	}

	_, err = tx.Commit()
	if err != nil {
		return false, err
	}

	r.logger.Info("migration finished", "path", c.Path, "version", c.SchemaVersion, "duration", time.Since(t0))
	return true, nil
}

func runMigration(f MigrationFunc, oldRealm, newRealm *Realm, target schema.Schema, oldVersion uint64) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, isErr := p.(error); isErr {
				err = e
			} else {
				err = fmt.Errorf("panic: %v", p)
			}
		}
	}()
	return f(oldRealm, newRealm, target.Clone(), oldVersion), nil
}

func (r *Realm) migrationView(state State, read *engine.Version, tx *engine.WriteTx) *Realm {
	return &Realm{
		config: r.config,
		store:  r.store,
		logger: r.logger,
		state:  state,
		read:   read,
		tx:     tx,
		view:   true,
	}
}
