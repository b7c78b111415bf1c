package execution

import (
	"unsafe"

	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/storage"
)

// ExecutionHashTable is a generic wrapper around a Go map keyed on the
// serialized bytes of a tuple. It serves single-threaded pipeline breakers
// (aggregation, join build sides).
type ExecutionHashTable[T any] struct {
	// Go maps do not take byte slices as keys, so keys are string views of
	// the tuple's raw bytes.
	table     map[string]T
	keySchema *storage.RawTupleDesc

	// scratchBuffer is reused for serializing keys during lookups to avoid
	// allocating when the key data is already in a Tuple.
	scratchBuffer []byte
}

func NewExecutionHashTable[T any](keySchema *storage.RawTupleDesc) *ExecutionHashTable[T] {
	return &ExecutionHashTable[T]{
		table:         make(map[string]T),
		keySchema:     keySchema,
		scratchBuffer: make([]byte, keySchema.BytesPerTuple()),
	}
}

// Insert adds a value, allocating a persistent copy of the key.
func (ht *ExecutionHashTable[T]) Insert(key storage.Tuple, value T) {
	key.Materialize(ht.scratchBuffer, ht.keySchema)
	// The map must own the key string; scratchBuffer will be overwritten.
	ht.table[string(ht.scratchBuffer)] = value
}

// Get returns the value stored under the key.
func (ht *ExecutionHashTable[T]) Get(key storage.Tuple) (value T, exists bool) {
	key.Materialize(ht.scratchBuffer, ht.keySchema)
	// The compiler elides the allocation for a map lookup via string(...).
	value, exists = ht.table[string(ht.scratchBuffer)]
	return
}

// Delete removes the key's entry.
func (ht *ExecutionHashTable[T]) Delete(key storage.Tuple) {
	key.Materialize(ht.scratchBuffer, ht.keySchema)
	delete(ht.table, string(ht.scratchBuffer))
}

// Len returns the number of entries.
func (ht *ExecutionHashTable[T]) Len() int {
	return len(ht.table)
}

// Iterate calls iter for every key/value pair.
func (ht *ExecutionHashTable[T]) Iterate(iter func(key storage.Tuple, value T)) {
	for key, value := range ht.table {
		// Read-only view over the map key's bytes.
		tuple := storage.FromRawTuple(unsafe.Slice(unsafe.StringData(key), len(key)),
			ht.keySchema, common.RecordID{PageID: common.InvalidPageID})
		iter(tuple, value)
	}
}
