package indexing

import (
	"bytes"

	"github.com/marbledb/marble/storage"
)

// Key is a fixed-width search key: a projected subset of tuple fields in
// physical layout, paired with the descriptor needed to interpret it.
type Key struct {
	RawTuple storage.RawTuple
	schema   *storage.RawTupleDesc
}

// NewKey wraps raw bytes already laid out per schema.
func NewKey(raw storage.RawTuple, schema *storage.RawTupleDesc) Key {
	return Key{RawTuple: raw, schema: schema}
}

// NilKey is the zero Key; IsNil reports true for it.
var NilKey = Key{}

// IsNil reports whether the key is the zero value.
func (k Key) IsNil() bool {
	return k.schema == nil
}

// Schema returns the key's layout descriptor.
func (k Key) Schema() *storage.RawTupleDesc {
	return k.schema
}

// Compare orders keys field by field.
func (k Key) Compare(other Key) int {
	for i := 0; i < k.schema.NumColumns(); i++ {
		cmp := k.schema.GetValue(k.RawTuple, i).Compare(other.schema.GetValue(other.RawTuple, i))
		if cmp != 0 {
			return cmp
		}
	}
	return 0
}

// Equals reports byte equality of the two keys.
func (k Key) Equals(other Key) bool {
	return bytes.Equal(k.RawTuple, other.RawTuple)
}

// DeepCopy detaches the key from its backing buffer.
func (k Key) DeepCopy() Key {
	raw := make([]byte, len(k.RawTuple))
	copy(raw, k.RawTuple)
	return Key{RawTuple: raw, schema: k.schema}
}
