package engine

import (
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/realmdb/schema"
	"github.com/fulldump/realmdb/storage"
)

const (
	commandCommit   = "commit"
	commandSnapshot = "snapshot"
)

const (
	opSchema = "schema"
	opInsert = "insert"
	opSet    = "set"
	opDelete = "delete"
)

// Change is one recorded mutation of a write transaction. Replaying the
// changes of a commit in order over its base version yields the same state.
type Change struct {
	Op            string         `json:"op"`
	Table         string         `json:"table,omitempty"`
	Key           int64          `json:"key,omitzero"`
	Values        map[string]any `json:"values,omitempty"`
	Schema        schema.Schema  `json:"schema,omitempty"`
	SchemaVersion uint64         `json:"schema_version,omitzero"`
}

type storedChange struct {
	Op            string                    `json:"op"`
	Table         string                    `json:"table"`
	Key           int64                     `json:"key"`
	Values        map[string]jsontext.Value `json:"values"`
	Schema        schema.Schema             `json:"schema"`
	SchemaVersion uint64                    `json:"schema_version"`
}

type commitPayload struct {
	Version uint64   `json:"version"`
	Changes []Change `json:"changes"`
}

type storedCommit struct {
	Version uint64         `json:"version"`
	Changes []storedChange `json:"changes"`
}

type snapshotRow struct {
	Key    int64          `json:"key"`
	Values map[string]any `json:"values"`
}

type snapshotTable struct {
	Name    string        `json:"name"`
	NextKey int64         `json:"next_key"`
	Rows    []snapshotRow `json:"rows"`
}

type snapshotPayload struct {
	Version       uint64          `json:"version"`
	SchemaVersion uint64          `json:"schema_version"`
	Schema        schema.Schema   `json:"schema"`
	Tables        []snapshotTable `json:"tables"`
}

type storedSnapshot struct {
	Version       uint64        `json:"version"`
	SchemaVersion uint64        `json:"schema_version"`
	Schema        schema.Schema `json:"schema"`
	Tables        []struct {
		Name    string `json:"name"`
		NextKey int64  `json:"next_key"`
		Rows    []struct {
			Key    int64                     `json:"key"`
			Values map[string]jsontext.Value `json:"values"`
		} `json:"rows"`
	} `json:"tables"`
}

func snapshotCommand(v *Version) (*storage.Command, error) {

	payload := snapshotPayload{
		Version:       v.Number,
		SchemaVersion: v.schemaVersion,
		Schema:        v.schema,
		Tables:        []snapshotTable{},
	}

	for _, o := range v.schema {
		t, ok := v.tables[o.Name]
		if !ok {
			continue
		}
		st := snapshotTable{
			Name:    t.Name,
			NextKey: t.nextKey,
			Rows:    make([]snapshotRow, 0, t.Len()),
		}
		t.Ascend(func(row *Row) bool {
			st.Rows = append(st.Rows, snapshotRow{Key: row.Key, Values: row.Values})
			return true
		})
		payload.Tables = append(payload.Tables, st)
	}

	return storage.NewCommand(commandSnapshot, payload)
}

func decodeSnapshot(payload jsontext.Value) (*Version, error) {

	s := storedSnapshot{}
	err := json.Unmarshal(payload, &s)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	v := &Version{
		Number:        s.Version,
		schemaVersion: s.SchemaVersion,
		schema:        s.Schema,
		tables:        map[string]*Table{},
	}

	for _, st := range s.Tables {
		o, ok := s.Schema.Find(st.Name)
		if !ok {
			return nil, fmt.Errorf("decode snapshot: table '%s' is not in the schema", st.Name)
		}
		t := newTable(o.Name, o.PrimaryKey)
		for _, r := range st.Rows {
			values, err := decodeValues(o, r.Values)
			if err != nil {
				return nil, fmt.Errorf("decode snapshot: table '%s': %w", st.Name, err)
			}
			t.put(&Row{Key: r.Key, Values: values})
		}
		if st.NextKey > t.nextKey {
			t.nextKey = st.NextKey
		}
		v.tables[o.Name] = t
	}

	// tables declared without rows
	for _, o := range s.Schema {
		if _, ok := v.tables[o.Name]; !ok {
			v.tables[o.Name] = newTable(o.Name, o.PrimaryKey)
		}
	}

	return v, nil
}
