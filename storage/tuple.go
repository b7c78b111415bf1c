package storage

import (
	"fmt"

	"github.com/marbledb/marble/common"
)

// RawTuple is the physical view of a row: a compact byte slice in the layout
// stored on a heap page. A RawTupleDesc is required to interpret it.
type RawTuple []byte

// RawTupleDesc describes the physical binary layout of a RawTuple.
type RawTupleDesc struct {
	fields      []common.Type
	offsets     []int // column index -> byte offset of the field
	bytesPerRow int
}

func (desc *RawTupleDesc) String() string {
	return fmt.Sprintf("%v", desc.fields)
}

// NumColumns returns the number of fields in the physical schema.
func (desc *RawTupleDesc) NumColumns() int {
	return len(desc.fields)
}

// BytesPerTuple returns the fixed size in bytes required to store one row.
func (desc *RawTupleDesc) BytesPerTuple() int {
	return desc.bytesPerRow
}

// GetFieldType returns the type of the field at index i.
func (desc *RawTupleDesc) GetFieldType(i int) common.Type {
	return desc.fields[i]
}

func (desc *RawTupleDesc) GetFieldTypes() []common.Type {
	return desc.fields
}

// GetFieldOffset returns the byte offset where field i begins.
func (desc *RawTupleDesc) GetFieldOffset(i int) int {
	return desc.offsets[i]
}

// GetValue deserializes the value at index i from the given physical bytes.
func (desc *RawTupleDesc) GetValue(t RawTuple, i int) common.Value {
	return common.AsValue(desc.fields[i], t[desc.offsets[i]:])
}

// SetValue serializes val into the correct position in t.
func (desc *RawTupleDesc) SetValue(t RawTuple, i int, val common.Value) {
	common.Assert(val.Type() == desc.fields[i], "type mismatch")
	val.WriteTo(t[desc.offsets[i]:])
}

// NewRawTupleDesc creates a descriptor for the given list of field types,
// computing per-field offsets and the total row size.
func NewRawTupleDesc(fields []common.Type) *RawTupleDesc {
	size := 0
	offsetOfField := make([]int, len(fields))
	for i := 0; i < len(fields); i++ {
		offsetOfField[i] = size
		switch fields[i] {
		case common.IntType:
			size += common.IntSize
		case common.StringType:
			size += common.StringLength
		default:
			common.Assert(false, "unknown field type")
		}
	}
	common.Assert(common.AlignedTo8(size), "tuple size should always be 8-byte aligned")
	common.Assert(size <= common.PageSize-32, "tuple size should never exceed page size")
	return &RawTupleDesc{fields, offsetOfField, size}
}

// Tuple is the logical view of a row, the structure exchanged between query
// operators. It bridges physically stored columns (a RawTuple plus its
// descriptor) and virtual columns produced during execution (aggregates,
// computed expressions), exposing both uniformly through GetValue.
//
// A Tuple backed by a RawTuple stays a lightweight wrapper around the byte
// slice; fields deserialize lazily on access.
type Tuple struct {
	// rawTuple holds the physical bytes if this tuple is backed by a page;
	// nil for purely virtual tuples.
	rawTuple RawTuple
	rawDesc  *RawTupleDesc

	// extraValues holds virtual columns not stored physically.
	extraValues []common.Value

	// rid is the permanent location of the tuple on disk; nil for virtual
	// or intermediate tuples.
	rid common.RecordID
}

// FromRawTuple creates a Tuple backed by physically stored bytes, without
// copying or interpreting them.
func FromRawTuple(rawTuple RawTuple, desc *RawTupleDesc, rid common.RecordID) Tuple {
	return Tuple{rawTuple: rawTuple, rawDesc: desc, rid: rid}
}

// FromValues creates a purely virtual Tuple from a list of values.
func FromValues(values ...common.Value) Tuple {
	return Tuple{
		extraValues: values,
		rid:         common.RecordID{PageID: common.InvalidPageID},
	}
}

// Extend returns a new Tuple consisting of the current tuple's fields
// followed by newValues.
func (t *Tuple) Extend(newValues []common.Value) Tuple {
	result := *t
	result.extraValues = append(t.extraValues, newValues...)
	return result
}

// IsNil checks if the tuple is uninitialized.
func (t *Tuple) IsNil() bool {
	return t.rawDesc == nil && t.extraValues == nil
}

// Materialize serializes the entire tuple (physical + virtual fields) into
// buf, yielding a purely physical Tuple. Used when a computed result must be
// written back to storage (heap or index).
func (t *Tuple) Materialize(buf []byte, desc *RawTupleDesc) Tuple {
	common.Assert(len(buf) >= desc.BytesPerTuple(), "buffer too small")
	common.Assert(t.NumColumns() == desc.NumColumns(), "tuple descriptor mismatch")

	numPhysicalColumns := 0
	if t.rawDesc != nil {
		numPhysicalColumns = t.rawDesc.NumColumns()
		copy(buf, t.rawTuple)
	}

	for i := numPhysicalColumns; i < desc.NumColumns(); i++ {
		desc.SetValue(buf, i, t.extraValues[i-numPhysicalColumns])
	}
	return FromRawTuple(buf, desc, t.rid)
}

// JoinTuples serializes left and right directly into a single output buffer
// described by desc (left fields followed by right fields).
func JoinTuples(buf []byte, desc *RawTupleDesc, left Tuple, right Tuple) Tuple {
	common.Assert(len(buf) >= desc.BytesPerTuple(), "buffer too small")
	common.Assert(left.NumColumns()+right.NumColumns() == desc.NumColumns(), "tuple descriptor mismatch")

	if left.extraValues == nil && right.extraValues == nil {
		// Fast path: stitch the two physical tuples together.
		copy(buf, left.rawTuple)
		copy(buf[len(left.rawTuple):], right.rawTuple)
	} else {
		leftNumCols := left.NumColumns()
		rightNumCols := right.NumColumns()
		for i := 0; i < leftNumCols; i++ {
			desc.SetValue(buf, i, left.GetValue(i))
		}
		for i := 0; i < rightNumCols; i++ {
			desc.SetValue(buf, leftNumCols+i, right.GetValue(i))
		}
	}
	return FromRawTuple(buf, desc, common.RecordID{PageID: common.InvalidPageID})
}

// RID returns the RecordID of the tuple, or an invalid ID if virtual.
func (t *Tuple) RID() common.RecordID {
	return t.rid
}

// NumColumns returns the total number of fields (physical + virtual).
func (t *Tuple) NumColumns() int {
	if t.rawDesc == nil {
		return len(t.extraValues)
	}
	return len(t.extraValues) + t.rawDesc.NumColumns()
}

// GetValue retrieves the value at index i, resolving physical columns first
// and virtual columns after them.
func (t *Tuple) GetValue(i int) common.Value {
	physCols := 0
	if t.rawDesc != nil {
		physCols = t.rawDesc.NumColumns()
	}
	if i < physCols {
		return t.rawDesc.GetValue(t.rawTuple, i)
	}
	return t.extraValues[i-physCols]
}

// DeepCopy creates a fully independent, physically materialized copy of the
// tuple. Allocates; use only when the original buffer might be reused.
func (t *Tuple) DeepCopy(desc *RawTupleDesc) Tuple {
	common.Assert(t.NumColumns() == desc.NumColumns(), "tuple descriptor mismatch")
	dest := make([]byte, desc.BytesPerTuple())
	t.Materialize(dest, desc)
	return FromRawTuple(dest, desc, t.rid)
}
