package engine

import (
	"math"

	"github.com/google/btree"
)

const minKey int64 = math.MinInt64

// Row is immutable once it is reachable from a published version. Updates
// replace the row with a new one under the same key.
type Row struct {
	Key    int64
	Values map[string]any
}

func (r *Row) Get(name string) any {
	return r.Values[name]
}

func (r *Row) with(values map[string]any) *Row {
	merged := make(map[string]any, len(r.Values)+len(values))
	for k, v := range r.Values {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}
	return &Row{Key: r.Key, Values: merged}
}

type primaryEntry struct {
	Value any
	Key   int64
}

func lessRow(a, b *Row) bool {
	return a.Key < b.Key
}

func lessPrimary(a, b primaryEntry) bool {
	c := ComparePrimaryKeys(a.Value, b.Value)
	if c != 0 {
		return c < 0
	}
	return a.Key < b.Key
}

type Table struct {
	Name       string
	PrimaryKey string

	rows    *btree.BTreeG[*Row]
	primary *btree.BTreeG[primaryEntry]
	nextKey int64
}

func newTable(name, primaryKey string) *Table {
	t := &Table{
		Name:       name,
		PrimaryKey: primaryKey,
		rows:       btree.NewG(32, lessRow),
	}
	if primaryKey != "" {
		t.primary = btree.NewG(32, lessPrimary)
	}
	return t
}

// clone is cheap, both trees are copied on write.
func (t *Table) clone() *Table {
	c := *t
	c.rows = t.rows.Clone()
	if t.primary != nil {
		c.primary = t.primary.Clone()
	}
	return &c
}

func (t *Table) Len() int {
	return t.rows.Len()
}

func (t *Table) Get(key int64) (*Row, bool) {
	return t.rows.Get(&Row{Key: key})
}

func (t *Table) Has(key int64) bool {
	return t.rows.Has(&Row{Key: key})
}

func (t *Table) Ascend(f func(row *Row) bool) {
	t.rows.Ascend(f)
}

func (t *Table) Keys() []int64 {
	keys := make([]int64, 0, t.rows.Len())
	t.rows.Ascend(func(row *Row) bool {
		keys = append(keys, row.Key)
		return true
	})
	return keys
}

func (t *Table) FindPrimaryKey(value any) (*Row, bool) {
	if t.primary == nil {
		return nil, false
	}
	var found *Row
	t.primary.AscendGreaterOrEqual(primaryEntry{Value: value, Key: minKey}, func(e primaryEntry) bool {
		if ComparePrimaryKeys(e.Value, value) == 0 {
			found, _ = t.Get(e.Key)
		}
		return false
	})
	return found, found != nil
}

// DuplicatePrimaryKey returns the first primary key value shared by two rows.
func (t *Table) DuplicatePrimaryKey() (any, bool) {
	if t.primary == nil {
		return nil, false
	}
	var previous *primaryEntry
	var duplicate any
	found := false
	t.primary.Ascend(func(e primaryEntry) bool {
		if previous != nil && ComparePrimaryKeys(previous.Value, e.Value) == 0 {
			duplicate, found = e.Value, true
			return false
		}
		previous = &e
		return true
	})
	return duplicate, found
}

func (t *Table) put(row *Row) {
	old, replaced := t.rows.ReplaceOrInsert(row)
	if t.primary != nil {
		if replaced {
			t.primary.Delete(primaryEntry{Value: old.Values[t.PrimaryKey], Key: old.Key})
		}
		t.primary.ReplaceOrInsert(primaryEntry{Value: row.Values[t.PrimaryKey], Key: row.Key})
	}
	if row.Key >= t.nextKey && row.Key < math.MaxInt64 {
		t.nextKey = row.Key + 1
	}
}

func (t *Table) remove(row *Row) {
	t.rows.Delete(row)
	if t.primary != nil {
		t.primary.Delete(primaryEntry{Value: row.Values[t.PrimaryKey], Key: row.Key})
	}
}
