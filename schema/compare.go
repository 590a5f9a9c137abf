package schema

import (
	"fmt"
	"strings"

	"github.com/fulldump/realmdb/failure"
)

type ChangeKind int

const (
	AddObject ChangeKind = iota
	RemoveObject
	AddProperty
	RemoveProperty
	ChangePropertyType
	ChangePrimaryKey
	AddIndex
	RemoveIndex
)

type Change struct {
	Kind     ChangeKind
	Object   string
	Property string
}

func (c Change) String() string {
	switch c.Kind {
	case AddObject:
		return fmt.Sprintf("object type '%s' has been added", c.Object)
	case RemoveObject:
		return fmt.Sprintf("object type '%s' has been removed", c.Object)
	case AddProperty:
		return fmt.Sprintf("property '%s.%s' has been added", c.Object, c.Property)
	case RemoveProperty:
		return fmt.Sprintf("property '%s.%s' has been removed", c.Object, c.Property)
	case ChangePropertyType:
		return fmt.Sprintf("property '%s.%s' has been changed", c.Object, c.Property)
	case ChangePrimaryKey:
		return fmt.Sprintf("primary key of '%s' has been changed", c.Object)
	case AddIndex:
		return fmt.Sprintf("property '%s.%s' has been made indexed", c.Object, c.Property)
	case RemoveIndex:
		return fmt.Sprintf("property '%s.%s' is no longer indexed", c.Object, c.Property)
	}
	return "unknown change"
}

// Compare lists the changes needed to go from the schema `from` to the
// schema `to`.
func Compare(from, to Schema) []Change {

	changes := []Change{}

	for _, target := range to {
		current, ok := from.Find(target.Name)
		if !ok {
			changes = append(changes, Change{Kind: AddObject, Object: target.Name})
			continue
		}

		for _, p := range target.Properties {
			q, ok := current.Property(p.Name)
			if !ok {
				changes = append(changes, Change{Kind: AddProperty, Object: target.Name, Property: p.Name})
				continue
			}
			if !q.SameShape(&p) {
				changes = append(changes, Change{Kind: ChangePropertyType, Object: target.Name, Property: p.Name})
				continue
			}
			if p.Indexed && !q.Indexed {
				changes = append(changes, Change{Kind: AddIndex, Object: target.Name, Property: p.Name})
			}
			if !p.Indexed && q.Indexed {
				changes = append(changes, Change{Kind: RemoveIndex, Object: target.Name, Property: p.Name})
			}
		}

		for _, q := range current.Properties {
			if _, ok := target.Property(q.Name); !ok {
				changes = append(changes, Change{Kind: RemoveProperty, Object: target.Name, Property: q.Name})
			}
		}

		if current.PrimaryKey != target.PrimaryKey {
			changes = append(changes, Change{Kind: ChangePrimaryKey, Object: target.Name})
		}
	}

	for _, current := range from {
		if _, ok := to.Find(current.Name); !ok {
			changes = append(changes, Change{Kind: RemoveObject, Object: current.Name})
		}
	}

	return changes
}

// Satisfy checks that every object type and property requested can be served
// by the stored schema without a migration. Object types and properties only
// present on disk are ignored. When allowNewObjects is set, object types
// missing on disk are accepted since they can be created in place.
func Satisfy(stored, requested Schema, allowNewObjects bool) error {

	problems := []string{}
	for _, c := range Compare(stored, requested) {
		switch c.Kind {
		case RemoveObject, RemoveProperty, AddIndex, RemoveIndex:
			continue
		case AddObject:
			if allowNewObjects {
				continue
			}
		}
		problems = append(problems, "- "+c.String())
	}

	if len(problems) == 0 {
		return nil
	}

	return failure.New(failure.SchemaMismatch, "migration is required due to the following errors:\n%s", strings.Join(problems, "\n"))
}

// Merge returns the requested schema followed by the stored object types the
// request does not mention.
func Merge(stored, requested Schema) Schema {
	result := requested.Clone()
	for _, o := range stored {
		if _, ok := requested.Find(o.Name); !ok {
			o.Properties = append([]Property(nil), o.Properties...)
			result = append(result, o)
		}
	}
	return result
}
