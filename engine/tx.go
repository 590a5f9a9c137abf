package engine

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/schema"
)

// WriteTx is the single write transaction of a store. It owns the writer
// lock until it is committed or cancelled.
type WriteTx struct {
	store *Store
	base  *Version

	schemaVersion uint64
	schema        schema.Schema
	tables        map[string]*Table
	owned         map[string]bool

	changes []Change
	record  bool

	done     bool
	doneOnce sync.Once
}

func newWriteTx(s *Store, base *Version) *WriteTx {
	tables := make(map[string]*Table, len(base.tables))
	for name, t := range base.tables {
		tables[name] = t
	}
	return &WriteTx{
		store:         s,
		base:          base,
		schemaVersion: base.schemaVersion,
		schema:        base.schema,
		tables:        tables,
		owned:         map[string]bool{},
		record:        true,
	}
}

// Base is the version the transaction started from.
func (tx *WriteTx) Base() *Version {
	return tx.base
}

func (tx *WriteTx) Table(name string) (*Table, bool) {
	t, ok := tx.tables[name]
	return t, ok
}

func (tx *WriteTx) Schema() schema.Schema {
	return tx.schema
}

func (tx *WriteTx) SchemaVersion() uint64 {
	return tx.schemaVersion
}

func (tx *WriteTx) Changes() int {
	return len(tx.changes)
}

func (tx *WriteTx) Done() bool {
	return tx.done
}

func (tx *WriteTx) mutable(name string) (*Table, *schema.ObjectSchema, error) {
	o, ok := tx.schema.Find(name)
	if !ok {
		return nil, nil, failure.New(failure.InvalidArgument, "table '%s' was not found", name)
	}
	t, ok := tx.tables[name]
	if !ok {
		t = newTable(o.Name, o.PrimaryKey)
		tx.tables[name] = t
		tx.owned[name] = true
	}
	if !tx.owned[name] {
		t = t.clone()
		tx.tables[name] = t
		tx.owned[name] = true
	}
	return t, o, nil
}

func (tx *WriteTx) check() error {
	if tx.done {
		return failure.New(failure.InvalidTransactionState, "the write transaction is already finished")
	}
	return nil
}

// SetSchema changes the schema of the transaction state, converting every
// existing object. Properties that keep their shape keep their values,
// new or changed properties get their default value and removed properties
// are dropped. Object types not present in target are dropped.
func (tx *WriteTx) SetSchema(target schema.Schema, version uint64) error {
	if err := tx.check(); err != nil {
		return err
	}
	if err := target.Validate(); err != nil {
		return err
	}
	target = target.Clone()
	tx.applySchema(target, version)
	if tx.record {
		tx.changes = append(tx.changes, Change{Op: opSchema, Schema: target, SchemaVersion: version})
	}
	return nil
}

func (tx *WriteTx) applySchema(target schema.Schema, version uint64) {

	previous := tx.schema
	tables := make(map[string]*Table, len(target))

	for i := range target {
		o := &target[i]
		old, existed := previous.Find(o.Name)
		t, ok := tx.tables[o.Name]
		if !existed || !ok {
			tables[o.Name] = newTable(o.Name, o.PrimaryKey)
			tx.owned[o.Name] = true
			continue
		}
		if sameLayout(old, o) {
			tables[o.Name] = t
			continue
		}

		converted := newTable(o.Name, o.PrimaryKey)
		converted.nextKey = t.nextKey
		t.Ascend(func(row *Row) bool {
			converted.put(&Row{Key: row.Key, Values: convertValues(old, o, row.Values)})
			return true
		})
		tables[o.Name] = converted
		tx.owned[o.Name] = true
	}

	for name := range tx.owned {
		if _, ok := tables[name]; !ok {
			delete(tx.owned, name)
		}
	}

	tx.tables = tables
	tx.schema = target
	tx.schemaVersion = version
}

func sameLayout(a, b *schema.ObjectSchema) bool {
	if a.PrimaryKey != b.PrimaryKey || len(a.Properties) != len(b.Properties) {
		return false
	}
	for i := range a.Properties {
		if a.Properties[i].Name != b.Properties[i].Name || !a.Properties[i].SameShape(&b.Properties[i]) {
			return false
		}
	}
	return true
}

func convertValues(from, to *schema.ObjectSchema, values map[string]any) map[string]any {
	result := make(map[string]any, len(to.Properties))
	for i := range to.Properties {
		p := &to.Properties[i]
		q, ok := from.Property(p.Name)
		if !ok || q.Type != p.Type || q.ObjectType != p.ObjectType {
			result[p.Name] = p.Default()
			continue
		}
		v := values[p.Name]
		if v == nil && !p.Nullable {
			v = p.Default()
		}
		result[p.Name] = v
	}
	return result
}

// Insert adds a new object. Missing properties take their default value.
func (tx *WriteTx) Insert(table string, values map[string]any) (*Row, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	t, o, err := tx.mutable(table)
	if err != nil {
		return nil, err
	}

	full, err := completeValues(o, values)
	if err != nil {
		return nil, err
	}

	pk := any(nil)
	if o.PrimaryKey != "" {
		pk = full[o.PrimaryKey]
	}
	key := tx.store.allocator.Allocate(t, pk, o.PrimaryKey != "")

	row := &Row{Key: key, Values: full}
	t.put(row)

	if tx.record {
		tx.changes = append(tx.changes, Change{Op: opInsert, Table: table, Key: key, Values: full})
	}
	return row, nil
}

func (tx *WriteTx) insertWithKey(table string, key int64, values map[string]any) error {
	t, o, err := tx.mutable(table)
	if err != nil {
		return err
	}
	full, err := completeValues(o, values)
	if err != nil {
		return err
	}
	t.put(&Row{Key: key, Values: full})
	return nil
}

func completeValues(o *schema.ObjectSchema, values map[string]any) (map[string]any, error) {
	full := make(map[string]any, len(o.Properties))
	for i := range o.Properties {
		p := &o.Properties[i]
		v, ok := values[p.Name]
		if !ok {
			full[p.Name] = p.Default()
			continue
		}
		c, err := Coerce(p, v)
		if err != nil {
			return nil, err
		}
		full[p.Name] = c
	}
	for name := range values {
		if _, ok := o.Property(name); !ok {
			return nil, failure.New(failure.InvalidArgument, "property '%s.%s' does not exist", o.Name, name)
		}
	}
	return full, nil
}

// Set updates some properties of an existing object.
func (tx *WriteTx) Set(table string, key int64, values map[string]any) (*Row, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	t, o, err := tx.mutable(table)
	if err != nil {
		return nil, err
	}
	row, ok := t.Get(key)
	if !ok {
		return nil, failure.New(failure.InvalidArgument, "object '%s' with key %d does not exist", table, key)
	}

	coerced := make(map[string]any, len(values))
	for name, v := range values {
		p, ok := o.Property(name)
		if !ok {
			return nil, failure.New(failure.InvalidArgument, "property '%s.%s' does not exist", table, name)
		}
		c, err := Coerce(p, v)
		if err != nil {
			return nil, err
		}
		coerced[name] = c
	}

	updated := row.with(coerced)
	t.put(updated)

	if tx.record {
		tx.changes = append(tx.changes, Change{Op: opSet, Table: table, Key: key, Values: coerced})
	}
	return updated, nil
}

// Delete removes an object. Links pointing to it become null and it is
// removed from every list that contains it.
func (tx *WriteTx) Delete(table string, key int64) error {
	if err := tx.check(); err != nil {
		return err
	}
	t, _, err := tx.mutable(table)
	if err != nil {
		return err
	}
	row, ok := t.Get(key)
	if !ok {
		return failure.New(failure.InvalidArgument, "object '%s' with key %d does not exist", table, key)
	}
	t.remove(row)

	if tx.record {
		tx.changes = append(tx.changes, Change{Op: opDelete, Table: table, Key: key})
	}

	return tx.unlink(table, key)
}

func (tx *WriteTx) unlink(target string, key int64) error {
	for _, o := range tx.schema {
		for _, p := range o.Properties {
			if !p.Type.IsLink() || p.ObjectType != target {
				continue
			}
			t, ok := tx.tables[o.Name]
			if !ok {
				continue
			}

			updates := []*Row{}
			t.Ascend(func(row *Row) bool {
				switch v := row.Values[p.Name].(type) {
				case int64:
					if v == key {
						updates = append(updates, row.with(map[string]any{p.Name: nil}))
					}
				case []int64:
					kept := make([]int64, 0, len(v))
					for _, k := range v {
						if k != key {
							kept = append(kept, k)
						}
					}
					if len(kept) != len(v) {
						updates = append(updates, row.with(map[string]any{p.Name: kept}))
					}
				}
				return true
			})

			if len(updates) == 0 {
				continue
			}
			mt, _, err := tx.mutable(o.Name)
			if err != nil {
				return err
			}
			for _, row := range updates {
				mt.put(row)
			}
		}
	}
	return nil
}

// CheckPrimaryKeys fails if two objects of a type share a primary key.
func (tx *WriteTx) CheckPrimaryKeys() error {
	for _, o := range tx.schema {
		if o.PrimaryKey == "" || !tx.owned[o.Name] {
			continue
		}
		t := tx.tables[o.Name]
		if value, found := t.DuplicatePrimaryKey(); found {
			return &failure.DuplicateKeyError{
				Table:  o.Name,
				Column: o.PrimaryKey,
				Key:    FormatPrimaryKey(value),
			}
		}
	}
	return nil
}

// FormatPrimaryKey renders a key for diagnostics.
func FormatPrimaryKey(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return v
	}
	return fmt.Sprint(value)
}

func (tx *WriteTx) apply(c storedChange) error {
	switch c.Op {
	case opSchema:
		tx.applySchema(c.Schema, c.SchemaVersion)
		return nil
	case opInsert, opSet:
		o, ok := tx.schema.Find(c.Table)
		if !ok {
			return fmt.Errorf("table '%s' was not found", c.Table)
		}
		values, err := decodeValues(o, c.Values)
		if err != nil {
			return err
		}
		if c.Op == opInsert {
			return tx.insertWithKey(c.Table, c.Key, values)
		}
		_, err = tx.Set(c.Table, c.Key, values)
		return err
	case opDelete:
		return tx.Delete(c.Table, c.Key)
	}
	return fmt.Errorf("unknown change '%s'", c.Op)
}

func (tx *WriteTx) version(number uint64) *Version {
	return &Version{
		Number:        number,
		schemaVersion: tx.schemaVersion,
		schema:        tx.schema,
		tables:        tx.tables,
	}
}

// Commit persists the changes and publishes a new version. On failure the
// transaction stays open so it can be cancelled.
func (tx *WriteTx) Commit() (*Version, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	if err := tx.CheckPrimaryKeys(); err != nil {
		return nil, err
	}
	return tx.store.commit(tx)
}

// Cancel discards every change and releases the writer lock.
func (tx *WriteTx) Cancel() {
	tx.finish()
}

func (tx *WriteTx) finish() {
	tx.doneOnce.Do(func() {
		tx.done = true
		tx.store.releaseWriter()
	})
}
