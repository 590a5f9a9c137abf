package engine

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/google/uuid"
)

// RowAllocator chooses the key of new rows. declared tells whether the
// object type has a primary key, in which case primaryKey is its value.
type RowAllocator interface {
	Allocate(t *Table, primaryKey any, declared bool) int64
}

// SequentialAllocator hands out increasing keys. It is the default.
type SequentialAllocator struct{}

func (SequentialAllocator) Allocate(t *Table, primaryKey any, declared bool) int64 {
	return t.nextKey
}

// StableAllocator derives keys from the primary key so the same object gets
// the same key on every replica. Objects without primary key get a random
// key taken from a uuid.
type StableAllocator struct{}

func (StableAllocator) Allocate(t *Table, primaryKey any, declared bool) int64 {

	var k uint64
	if declared {
		h := fnv.New64a()
		fmt.Fprintf(h, "%s\x00%T\x00%v", t.Name, primaryKey, primaryKey)
		k = h.Sum64()
	} else {
		id := uuid.New()
		k = binary.BigEndian.Uint64(id[:8])
	}

	key := int64(k & math.MaxInt64)
	for t.Has(key) {
		key = (key + 1) & math.MaxInt64
	}
	return key
}
