package schema

import (
	"time"

	"github.com/fulldump/realmdb/failure"
)

type PropertyType string

const (
	TypeInt    PropertyType = "int"
	TypeBool   PropertyType = "bool"
	TypeString PropertyType = "string"
	TypeFloat  PropertyType = "float"
	TypeDouble PropertyType = "double"
	TypeDate   PropertyType = "date"
	TypeData   PropertyType = "data"
	TypeObject PropertyType = "object"
	TypeList   PropertyType = "list"
)

func (t PropertyType) Valid() bool {
	switch t {
	case TypeInt, TypeBool, TypeString, TypeFloat, TypeDouble, TypeDate, TypeData, TypeObject, TypeList:
		return true
	}
	return false
}

// IsLink reports whether values of this type point to other objects.
func (t PropertyType) IsLink() bool {
	return t == TypeObject || t == TypeList
}

type Property struct {
	Name       string       `json:"name" yaml:"name"`
	Type       PropertyType `json:"type" yaml:"type"`
	ObjectType string       `json:"object_type,omitempty" yaml:"object_type,omitempty"`
	Nullable   bool         `json:"nullable,omitzero" yaml:"nullable,omitempty"`
	Indexed    bool         `json:"indexed,omitzero" yaml:"indexed,omitempty"`
}

// Default is the value a property takes when an object is created or when
// the property is added by a migration.
func (p *Property) Default() any {
	if p.Nullable || p.Type == TypeObject {
		return nil
	}
	switch p.Type {
	case TypeInt:
		return int64(0)
	case TypeBool:
		return false
	case TypeString:
		return ""
	case TypeFloat:
		return float32(0)
	case TypeDouble:
		return float64(0)
	case TypeDate:
		return time.Time{}
	case TypeData:
		return []byte{}
	case TypeList:
		return []int64{}
	}
	return nil
}

// SameShape is true when values of p can be kept as they are when the
// property definition changes to q.
func (p *Property) SameShape(q *Property) bool {
	return p.Type == q.Type && p.Nullable == q.Nullable && p.ObjectType == q.ObjectType
}

type ObjectSchema struct {
	Name       string     `json:"name" yaml:"name"`
	Properties []Property `json:"properties" yaml:"properties"`
	PrimaryKey string     `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
}

func (o *ObjectSchema) Property(name string) (*Property, bool) {
	for i := range o.Properties {
		if o.Properties[i].Name == name {
			return &o.Properties[i], true
		}
	}
	return nil, false
}

// PrimaryKeyProperty returns nil when the object type declares no primary key.
func (o *ObjectSchema) PrimaryKeyProperty() *Property {
	if o.PrimaryKey == "" {
		return nil
	}
	p, _ := o.Property(o.PrimaryKey)
	return p
}

// Schema is an ordered set of object types.
type Schema []ObjectSchema

func (s Schema) Find(name string) (*ObjectSchema, bool) {
	for i := range s {
		if s[i].Name == name {
			return &s[i], true
		}
	}
	return nil, false
}

func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for _, o := range s {
		names = append(names, o.Name)
	}
	return names
}

func (s Schema) Clone() Schema {
	if s == nil {
		return nil
	}
	result := make(Schema, len(s))
	for i, o := range s {
		result[i] = o
		result[i].Properties = append([]Property(nil), o.Properties...)
	}
	return result
}

func (s Schema) Validate() error {

	names := map[string]bool{}
	for _, o := range s {
		if o.Name == "" {
			return failure.New(failure.InvalidArgument, "object type name is required")
		}
		if names[o.Name] {
			return failure.New(failure.InvalidArgument, "object type '%s' is declared twice", o.Name)
		}
		names[o.Name] = true
	}

	for _, o := range s {
		properties := map[string]bool{}
		for _, p := range o.Properties {
			if p.Name == "" {
				return failure.New(failure.InvalidArgument, "property name is required in '%s'", o.Name)
			}
			if properties[p.Name] {
				return failure.New(failure.InvalidArgument, "property '%s.%s' is declared twice", o.Name, p.Name)
			}
			properties[p.Name] = true

			if !p.Type.Valid() {
				return failure.New(failure.InvalidArgument, "property '%s.%s' has unknown type '%s'", o.Name, p.Name, p.Type)
			}
			if p.Type.IsLink() {
				if !names[p.ObjectType] {
					return failure.New(failure.InvalidArgument, "property '%s.%s' links to unknown object type '%s'", o.Name, p.Name, p.ObjectType)
				}
			} else if p.ObjectType != "" {
				return failure.New(failure.InvalidArgument, "property '%s.%s' of type '%s' cannot have an object type", o.Name, p.Name, p.Type)
			}
			if p.Type == TypeObject && !p.Nullable {
				return failure.New(failure.InvalidArgument, "property '%s.%s' of type 'object' must be nullable", o.Name, p.Name)
			}
			if p.Type == TypeList && p.Nullable {
				return failure.New(failure.InvalidArgument, "property '%s.%s' of type 'list' cannot be nullable", o.Name, p.Name)
			}
		}

		if o.PrimaryKey == "" {
			continue
		}
		pk, ok := o.Property(o.PrimaryKey)
		if !ok {
			return failure.New(failure.InvalidArgument, "primary key property '%s.%s' does not exist", o.Name, o.PrimaryKey)
		}
		if pk.Type != TypeInt && pk.Type != TypeString {
			return failure.New(failure.InvalidArgument, "property '%s.%s' of type '%s' cannot be made the primary key", o.Name, pk.Name, pk.Type)
		}
	}

	return nil
}
