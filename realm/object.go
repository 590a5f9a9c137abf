package realm

import (
	"fmt"

	"github.com/SierraSoftworks/connor"

	"github.com/fulldump/realmdb/engine"
	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/schema"
	"github.com/fulldump/realmdb/utils"
)

// Table gives access to the objects of one type.
type Table struct {
	realm *Realm
	name  string
}

func (r *Realm) Table(name string) (*Table, error) {
	if err := r.verifyOpen(); err != nil {
		return nil, err
	}
	if _, ok := r.current().Schema().Find(name); !ok {
		return nil, failure.New(failure.InvalidArgument, "table '%s' was not found", name)
	}
	return &Table{realm: r, name: name}, nil
}

func (t *Table) Name() string {
	return t.name
}

func (t *Table) Realm() *Realm {
	return t.realm
}

func (t *Table) objectSchema() (*schema.ObjectSchema, error) {
	if err := t.realm.verifyOpen(); err != nil {
		return nil, err
	}
	o, ok := t.realm.current().Schema().Find(t.name)
	if !ok {
		return nil, failure.New(failure.InvalidArgument, "table '%s' was not found", t.name)
	}
	return o, nil
}

func (t *Table) Schema() (schema.ObjectSchema, error) {
	o, err := t.objectSchema()
	if err != nil {
		return schema.ObjectSchema{}, err
	}
	return *o, nil
}

func (t *Table) Count() (int, error) {
	if _, err := t.objectSchema(); err != nil {
		return 0, err
	}
	rows, ok := t.realm.current().Table(t.name)
	if !ok {
		return 0, nil
	}
	return rows.Len(), nil
}

func (t *Table) All() (*Results, error) {
	return t.Where(nil)
}

// Where selects the objects matching filter, a connor expression over the
// JSON form of the object.
func (t *Table) Where(filter map[string]any) (*Results, error) {
	if _, err := t.objectSchema(); err != nil {
		return nil, err
	}
	return &Results{realm: t.realm, table: t.name, filter: filter}, nil
}

// Find returns the object with the given row key, or nil.
func (t *Table) Find(key int64) (*Object, error) {
	if _, err := t.objectSchema(); err != nil {
		return nil, err
	}
	rows, ok := t.realm.current().Table(t.name)
	if !ok || !rows.Has(key) {
		return nil, nil
	}
	return &Object{realm: t.realm, table: t.name, key: key}, nil
}

// FindByPrimaryKey returns the object with the given primary key, or nil.
func (t *Table) FindByPrimaryKey(value any) (*Object, error) {
	o, err := t.objectSchema()
	if err != nil {
		return nil, err
	}
	p := o.PrimaryKeyProperty()
	if p == nil {
		return nil, failure.New(failure.InvalidArgument, "'%s' does not have a primary key defined", t.name)
	}
	value, err = primaryKeyValue(p, value)
	if err != nil {
		return nil, err
	}
	rows, ok := t.realm.current().Table(t.name)
	if !ok {
		return nil, nil
	}
	row, found := rows.FindPrimaryKey(value)
	if !found {
		return nil, nil
	}
	return &Object{realm: t.realm, table: t.name, key: row.Key}, nil
}

// Object is an accessor to one stored object. A frozen object reads a fixed
// version and cannot be modified.
type Object struct {
	realm  *Realm
	table  string
	key    int64
	frozen engine.View
}

func (o *Object) Key() int64 {
	return o.key
}

func (o *Object) Table() string {
	return o.table
}

func (o *Object) Realm() *Realm {
	return o.realm
}

func (o *Object) Frozen() bool {
	return o.frozen != nil
}

// Thaw returns the same object as seen by the realm now.
func (o *Object) Thaw() *Object {
	return &Object{realm: o.realm, table: o.table, key: o.key}
}

func (o *Object) view() engine.View {
	if o.frozen != nil {
		return o.frozen
	}
	return o.realm.current()
}

func (o *Object) row() (*engine.Row, *schema.ObjectSchema, error) {
	if err := o.realm.verifyOpen(); err != nil {
		return nil, nil, err
	}
	v := o.view()
	s, ok := v.Schema().Find(o.table)
	if !ok {
		return nil, nil, failure.New(failure.InvalidArgument, "table '%s' was not found", o.table)
	}
	t, ok := v.Table(o.table)
	if !ok {
		return nil, nil, errInvalidated
	}
	row, ok := t.Get(o.key)
	if !ok {
		return nil, nil, errInvalidated
	}
	return row, s, nil
}

var errInvalidated = failure.New(failure.InvalidArgument, "accessing object which has been invalidated or deleted")

func (o *Object) IsValid() bool {
	_, _, err := o.row()
	return err == nil
}

func (o *Object) Get(name string) (any, error) {
	row, s, err := o.row()
	if err != nil {
		return nil, err
	}
	if _, ok := s.Property(name); !ok {
		return nil, failure.New(failure.InvalidArgument, "property '%s.%s' does not exist", o.table, name)
	}
	return row.Get(name), nil
}

// Values returns a copy of every property.
func (o *Object) Values() (map[string]any, error) {
	row, _, err := o.row()
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(row.Values))
	for k, v := range row.Values {
		values[k] = v
	}
	return values, nil
}

func (o *Object) PrimaryKey() (any, error) {
	row, s, err := o.row()
	if err != nil {
		return nil, err
	}
	if s.PrimaryKey == "" {
		return nil, failure.New(failure.InvalidArgument, "'%s' does not have a primary key defined", o.table)
	}
	return row.Get(s.PrimaryKey), nil
}

func (o *Object) verifyWritable() error {
	if err := o.realm.verifyInWrite(); err != nil {
		return err
	}
	if o.frozen != nil {
		return failure.New(failure.InvalidTransactionState, "cannot modify a frozen object")
	}
	return nil
}

// Set updates properties. The primary key can only be changed during a
// migration.
func (o *Object) Set(values map[string]any) error {
	if err := o.verifyWritable(); err != nil {
		return err
	}
	_, s, err := o.row()
	if err != nil {
		return err
	}
	if _, ok := values[s.PrimaryKey]; ok && s.PrimaryKey != "" && !o.realm.migrating {
		return failure.New(failure.InvalidArgument, "primary key property '%s.%s' cannot be changed after an object is created", o.table, s.PrimaryKey)
	}
	for name, v := range values {
		p, ok := s.Property(name)
		if !ok {
			return failure.New(failure.InvalidArgument, "property '%s.%s' does not exist", o.table, name)
		}
		if p.Type.IsLink() {
			if err := o.realm.verifyLinks(p, v); err != nil {
				return err
			}
		}
	}
	_, err = o.realm.tx.Set(o.table, o.key, values)
	return err
}

// GetObject follows a link property. It returns nil for a null link.
func (o *Object) GetObject(name string) (*Object, error) {
	row, s, err := o.row()
	if err != nil {
		return nil, err
	}
	p, ok := s.Property(name)
	if !ok || p.Type != schema.TypeObject {
		return nil, failure.New(failure.InvalidArgument, "property '%s.%s' is not a link", o.table, name)
	}
	key, ok := row.Get(name).(int64)
	if !ok {
		return nil, nil
	}
	return &Object{realm: o.realm, table: p.ObjectType, key: key, frozen: o.frozen}, nil
}

func (o *Object) SetObject(name string, target *Object) error {
	if target == nil {
		return o.Set(map[string]any{name: nil})
	}
	if target.realm != o.realm {
		return failure.New(failure.InvalidArgument, "cannot link objects from different realms")
	}
	return o.Set(map[string]any{name: target.key})
}

func (o *Object) List(name string) (*List, error) {
	_, s, err := o.row()
	if err != nil {
		return nil, err
	}
	p, ok := s.Property(name)
	if !ok || p.Type != schema.TypeList {
		return nil, failure.New(failure.InvalidArgument, "property '%s.%s' is not a list", o.table, name)
	}
	return &List{parent: o, property: name, target: p.ObjectType}, nil
}

func (o *Object) Delete() error {
	if err := o.verifyWritable(); err != nil {
		return err
	}
	return o.realm.tx.Delete(o.table, o.key)
}

func (o *Object) String() string {
	return fmt.Sprintf("%s[%d]", o.table, o.key)
}

// verifyLinks checks that link values point to existing objects.
func (r *Realm) verifyLinks(p *schema.Property, v any) error {
	c, err := engine.Coerce(p, v)
	if err != nil {
		return err
	}
	t, _ := r.tx.Table(p.ObjectType)
	exists := func(key int64) bool {
		return t != nil && t.Has(key)
	}
	switch x := c.(type) {
	case int64:
		if !exists(x) {
			return failure.New(failure.InvalidArgument, "object '%s' with key %d does not exist", p.ObjectType, x)
		}
	case []int64:
		for _, key := range x {
			if !exists(key) {
				return failure.New(failure.InvalidArgument, "object '%s' with key %d does not exist", p.ObjectType, key)
			}
		}
	}
	return nil
}

// List is an ordered collection of links held by an object property.
type List struct {
	parent   *Object
	property string
	target   string
}

func (l *List) Keys() ([]int64, error) {
	row, _, err := l.parent.row()
	if err != nil {
		return nil, err
	}
	keys, _ := row.Get(l.property).([]int64)
	return append([]int64{}, keys...), nil
}

func (l *List) Len() (int, error) {
	keys, err := l.Keys()
	return len(keys), err
}

func (l *List) Get(i int) (*Object, error) {
	keys, err := l.Keys()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(keys) {
		return nil, failure.New(failure.InvalidArgument, "index %d out of bounds, list has %d items", i, len(keys))
	}
	return &Object{realm: l.parent.realm, table: l.target, key: keys[i], frozen: l.parent.frozen}, nil
}

func (l *List) Parent() *Object {
	return l.parent
}

func (l *List) update(f func(keys []int64) ([]int64, error)) error {
	if err := l.parent.verifyWritable(); err != nil {
		return err
	}
	keys, err := l.Keys()
	if err != nil {
		return err
	}
	keys, err = f(keys)
	if err != nil {
		return err
	}
	return l.parent.Set(map[string]any{l.property: keys})
}

func (l *List) Add(o *Object) error {
	return l.Insert(-1, o)
}

// Insert puts o at index i. A negative index appends.
func (l *List) Insert(i int, o *Object) error {
	if o == nil || o.realm != l.parent.realm || o.table != l.target {
		return failure.New(failure.InvalidArgument, "list '%s.%s' only holds '%s' objects of the same realm", l.parent.table, l.property, l.target)
	}
	return l.update(func(keys []int64) ([]int64, error) {
		if i < 0 {
			i = len(keys)
		}
		if i > len(keys) {
			return nil, failure.New(failure.InvalidArgument, "index %d out of bounds, list has %d items", i, len(keys))
		}
		keys = append(keys[:i], append([]int64{o.key}, keys[i:]...)...)
		return keys, nil
	})
}

func (l *List) Remove(i int) error {
	return l.update(func(keys []int64) ([]int64, error) {
		if i < 0 || i >= len(keys) {
			return nil, failure.New(failure.InvalidArgument, "index %d out of bounds, list has %d items", i, len(keys))
		}
		return append(keys[:i], keys[i+1:]...), nil
	})
}

func (l *List) Clear() error {
	return l.update(func(keys []int64) ([]int64, error) {
		return []int64{}, nil
	})
}

// Results is a live query over a table. It is evaluated every time it is
// read, unless it is frozen.
type Results struct {
	realm  *Realm
	table  string
	filter map[string]any
	frozen engine.View
}

func (r *Results) Table() string {
	return r.table
}

func (r *Results) Frozen() bool {
	return r.frozen != nil
}

// Filter narrows the results. Conditions on the same field replace the
// previous ones.
func (r *Results) Filter(filter map[string]any) *Results {
	merged := make(map[string]any, len(r.filter)+len(filter))
	for k, v := range r.filter {
		merged[k] = v
	}
	for k, v := range filter {
		merged[k] = v
	}
	return &Results{realm: r.realm, table: r.table, filter: merged, frozen: r.frozen}
}

func (r *Results) Keys() ([]int64, error) {
	if err := r.realm.verifyOpen(); err != nil {
		return nil, err
	}

	v := r.frozen
	if v == nil {
		v = r.realm.current()
	}
	if _, ok := v.Schema().Find(r.table); !ok {
		return nil, failure.New(failure.InvalidArgument, "table '%s' was not found", r.table)
	}
	t, ok := v.Table(r.table)
	if !ok {
		return []int64{}, nil
	}
	if len(r.filter) == 0 {
		return t.Keys(), nil
	}

	keys := []int64{}
	var matchErr error
	t.Ascend(func(row *engine.Row) bool {
		data := map[string]any{}
		err := utils.Remarshal(row.Values, &data)
		if err != nil {
			matchErr = err
			return false
		}
		match, err := connor.Match(r.filter, data)
		if err != nil {
			matchErr = failure.Wrap(failure.InvalidArgument, err, "filter")
			return false
		}
		if match {
			keys = append(keys, row.Key)
		}
		return true
	})
	if matchErr != nil {
		return nil, matchErr
	}
	return keys, nil
}

func (r *Results) Len() (int, error) {
	keys, err := r.Keys()
	return len(keys), err
}

func (r *Results) Get(i int) (*Object, error) {
	keys, err := r.Keys()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(keys) {
		return nil, failure.New(failure.InvalidArgument, "index %d out of bounds, results have %d items", i, len(keys))
	}
	return &Object{realm: r.realm, table: r.table, key: keys[i], frozen: r.frozen}, nil
}

// Objects materializes the results.
func (r *Results) Objects() ([]*Object, error) {
	keys, err := r.Keys()
	if err != nil {
		return nil, err
	}
	objects := make([]*Object, len(keys))
	for i, key := range keys {
		objects[i] = &Object{realm: r.realm, table: r.table, key: key, frozen: r.frozen}
	}
	return objects, nil
}
