package realm

import (
	"github.com/fulldump/realmdb/engine"
	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/schema"
)

// CreateObject appends a new object. On a type with a primary key the
// object gets the default key, which must not exist yet.
func (r *Realm) CreateObject(table string, values map[string]any) (*Object, error) {
	if err := r.verifyInWrite(); err != nil {
		return nil, err
	}
	o, err := r.objectSchema(table)
	if err != nil {
		return nil, err
	}

	if p := o.PrimaryKeyProperty(); p != nil {
		key, ok := values[p.Name]
		if !ok {
			key = p.Default()
		}
		rest := withoutKey(values, p.Name)
		obj, _, err := r.CreateObjectUnique(table, key, false, rest)
		return obj, err
	}

	if err := r.verifyLinkValues(o, values); err != nil {
		return nil, err
	}
	row, err := r.tx.Insert(table, values)
	if err != nil {
		return nil, err
	}
	return &Object{realm: r, table: table, key: row.Key}, nil
}

// CreateObjectUnique finds or creates the object with the given primary
// key. It reports whether the object is new. An existing object is an
// error unless tryUpdate is set, in which case values are applied to it.
func (r *Realm) CreateObjectUnique(table string, key any, tryUpdate bool, values map[string]any) (*Object, bool, error) {
	if err := r.verifyInWrite(); err != nil {
		return nil, false, err
	}
	o, err := r.objectSchema(table)
	if err != nil {
		return nil, false, err
	}
	p := o.PrimaryKeyProperty()
	if p == nil {
		return nil, false, failure.New(failure.InvalidArgument, "'%s' does not have a primary key defined", table)
	}
	if _, ok := values[p.Name]; ok {
		return nil, false, failure.New(failure.InvalidArgument, "primary key '%s.%s' must be passed as the key", table, p.Name)
	}

	key, err = primaryKeyValue(p, key)
	if err != nil {
		return nil, false, err
	}

	if t, ok := r.tx.Table(table); ok {
		if row, found := t.FindPrimaryKey(key); found {
			if !tryUpdate {
				return nil, false, &failure.DuplicateKeyError{
					Table:  table,
					Column: p.Name,
					Key:    engine.FormatPrimaryKey(key),
				}
			}
			obj := &Object{realm: r, table: table, key: row.Key}
			if len(values) > 0 {
				if err := obj.Set(values); err != nil {
					return nil, false, err
				}
			}
			return obj, false, nil
		}
	}

	if err := r.verifyLinkValues(o, values); err != nil {
		return nil, false, err
	}
	full := withoutKey(values, "")
	full[p.Name] = key
	row, err := r.tx.Insert(table, full)
	if err != nil {
		return nil, false, err
	}
	return &Object{realm: r, table: table, key: row.Key}, true, nil
}

func (r *Realm) CreateObjectIntUnique(table string, key int64, tryUpdate bool, values map[string]any) (*Object, bool, error) {
	return r.CreateObjectUnique(table, key, tryUpdate, values)
}

func (r *Realm) CreateObjectStringUnique(table string, key string, tryUpdate bool, values map[string]any) (*Object, bool, error) {
	return r.CreateObjectUnique(table, key, tryUpdate, values)
}

func (r *Realm) CreateObjectNullUnique(table string, tryUpdate bool, values map[string]any) (*Object, bool, error) {
	return r.CreateObjectUnique(table, nil, tryUpdate, values)
}

func (r *Realm) objectSchema(table string) (*schema.ObjectSchema, error) {
	o, ok := r.current().Schema().Find(table)
	if !ok {
		return nil, failure.New(failure.InvalidArgument, "table '%s' was not found", table)
	}
	return o, nil
}

func (r *Realm) verifyLinkValues(o *schema.ObjectSchema, values map[string]any) error {
	for name, v := range values {
		p, ok := o.Property(name)
		if !ok || !p.Type.IsLink() {
			continue
		}
		if err := r.verifyLinks(p, v); err != nil {
			return err
		}
	}
	return nil
}

// primaryKeyValue checks a key against the declared key property. Null is
// rejected on a non nullable key before anything is looked up.
func primaryKeyValue(p *schema.Property, key any) (any, error) {
	if key == nil {
		if !p.Nullable {
			return nil, failure.New(failure.InvalidArgument, "Column is not nullable")
		}
		return nil, nil
	}
	switch p.Type {
	case schema.TypeInt:
		switch key.(type) {
		case int, int8, int16, int32, int64, uint8, uint16, uint32, float64:
			return engine.Coerce(p, key)
		}
	case schema.TypeString:
		if s, ok := key.(string); ok {
			return s, nil
		}
	}
	return nil, failure.New(failure.InvalidArgument, "primary key '%s' expects a %s value, got %T", p.Name, p.Type, key)
}

func withoutKey(values map[string]any, name string) map[string]any {
	result := make(map[string]any, len(values)+1)
	for k, v := range values {
		if k != name {
			result[k] = v
		}
	}
	return result
}
