package engine

import (
	"math"

	"github.com/fulldump/realmdb/schema"
)

// NotVersioned is the schema version of a store that has never been
// initialized with a schema.
const NotVersioned uint64 = math.MaxUint64

// View is a readable state of the store: a published version or the
// uncommitted state of a write transaction.
type View interface {
	Table(name string) (*Table, bool)
	Schema() schema.Schema
	SchemaVersion() uint64
}

// Version is an immutable committed snapshot.
type Version struct {
	Number uint64

	schemaVersion uint64
	schema        schema.Schema
	tables        map[string]*Table
}

func emptyVersion() *Version {
	return &Version{
		schemaVersion: NotVersioned,
		tables:        map[string]*Table{},
	}
}

func (v *Version) Table(name string) (*Table, bool) {
	t, ok := v.tables[name]
	return t, ok
}

func (v *Version) Schema() schema.Schema {
	return v.schema
}

func (v *Version) SchemaVersion() uint64 {
	return v.schemaVersion
}

// Objects counts the rows of every table.
func (v *Version) Objects() int {
	n := 0
	for _, t := range v.tables {
		n += t.Len()
	}
	return n
}
