package storage

import (
	"encoding/binary"

	"github.com/marbledb/marble/common"
)

// HeapPage layout:
// NextPageID (4) | RowSize (2) | NumSlots (2) | NumUsed (2) | Padding (6) |
// allocation bitmap | tombstone bitmap | rows
//
// Heap pages form a singly linked chain through NextPageID; all pages of a
// table share the pool-wide page identifier space.
type HeapPage struct {
	*PageFrame

	// Computed on construction for repeated access
	allocationBitmap Bitmap
	tombstoneBitmap  Bitmap
	rowDataStart     int
}

const (
	heapPageOffsetNextPage = 0
	heapPageOffsetRowSize  = heapPageOffsetNextPage + 4
	heapPageOffsetNumSlots = heapPageOffsetRowSize + 2
	heapPageOffsetNumUsed  = heapPageOffsetNumSlots + 2
)
const heapPageHeaderSize = 16

// NextPageID returns the identifier of the next heap page in the chain.
func (hp HeapPage) NextPageID() common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(hp.Bytes[heapPageOffsetNextPage:]))
}

// SetNextPageID links the page to its successor in the chain.
func (hp HeapPage) SetNextPageID(pid common.PageID) {
	binary.LittleEndian.PutUint32(hp.Bytes[heapPageOffsetNextPage:], uint32(pid))
}

func (hp HeapPage) NumUsed() int {
	return int(binary.LittleEndian.Uint16(hp.Bytes[heapPageOffsetNumUsed:]))
}

func (hp HeapPage) setNumUsed(numUsed int) {
	binary.LittleEndian.PutUint16(hp.Bytes[heapPageOffsetNumUsed:], uint16(numUsed))
}

func (hp HeapPage) NumSlots() int {
	return int(binary.LittleEndian.Uint16(hp.Bytes[heapPageOffsetNumSlots:]))
}

func (hp HeapPage) RowSize() int {
	return int(binary.LittleEndian.Uint16(hp.Bytes[heapPageOffsetRowSize:]))
}

// InitializeHeapPage formats a fresh frame as an empty heap page for rows of
// the given descriptor.
func InitializeHeapPage(desc *RawTupleDesc, frame *PageFrame) {
	rowSize := desc.BytesPerTuple()
	common.Assert(common.AlignedTo8(rowSize), "tuple size %d should be aligned to 8", rowSize)
	// Per 64 rows the two bitmaps cost 16 bytes combined
	blockSize := (64 * rowSize) + 16
	available := common.PageSize - heapPageHeaderSize
	fullBlocks, remainder := available/blockSize, available%blockSize
	numSlots := fullBlocks * 64
	if remainder > 16 {
		numSlots += (remainder - 16) / rowSize
	}
	invalidPageID := common.InvalidPageID
	binary.LittleEndian.PutUint32(frame.Bytes[heapPageOffsetNextPage:], uint32(invalidPageID))
	binary.LittleEndian.PutUint16(frame.Bytes[heapPageOffsetRowSize:], uint16(rowSize))
	binary.LittleEndian.PutUint16(frame.Bytes[heapPageOffsetNumSlots:], uint16(numSlots))
}

// AsHeapPage interprets the frame as a heap page and builds the bitmap views.
func (frame *PageFrame) AsHeapPage() HeapPage {
	result := HeapPage{
		PageFrame: frame,
	}
	numSlots := result.NumSlots()
	common.Assert(result.RowSize() > 0 && numSlots > 0, "uninitialized heap page")

	bitmapSize := common.Align8((numSlots + 7) / 8)
	result.allocationBitmap = AsBitmap(result.Bytes[heapPageHeaderSize:], numSlots)
	result.tombstoneBitmap = AsBitmap(frame.Bytes[heapPageHeaderSize+bitmapSize:], numSlots)
	result.rowDataStart = heapPageHeaderSize + 2*bitmapSize
	return result
}

// FindFreeSlot returns the index of a free slot, or -1 if the page is full.
func (hp HeapPage) FindFreeSlot() int {
	numUsed := hp.NumUsed()
	if numUsed == hp.NumSlots() {
		return -1
	}
	return hp.allocationBitmap.FindFirstZero(numUsed)
}

// IsAllocated checks the allocation bitmap for the slot. Out-of-range slots
// report false so iteration stays safe.
func (hp HeapPage) IsAllocated(slot int) bool {
	if slot < 0 || slot >= hp.NumSlots() {
		return false
	}
	return hp.allocationBitmap.LoadBit(slot)
}

func (hp HeapPage) MarkAllocated(slot int, allocated bool) {
	common.Assert(slot >= 0 && slot < hp.NumSlots(), "slot out of bounds")
	hp.allocationBitmap.SetBit(slot, allocated)
	if allocated {
		hp.setNumUsed(hp.NumUsed() + 1)
	} else {
		hp.tombstoneBitmap.SetBit(slot, false)
		hp.setNumUsed(hp.NumUsed() - 1)
	}
}

// IsTombstoned reports whether the slot holds a deleted tuple.
func (hp HeapPage) IsTombstoned(slot int) bool {
	common.Assert(slot >= 0 && slot < hp.NumSlots(), "slot out of bounds")
	return hp.tombstoneBitmap.LoadBit(slot)
}

func (hp HeapPage) MarkTombstoned(slot int, deleted bool) {
	common.Assert(slot >= 0 && slot < hp.NumSlots(), "slot out of bounds")
	common.Assert(hp.allocationBitmap.LoadBit(slot), "slot not allocated")
	hp.tombstoneBitmap.SetBit(slot, deleted)
}

// AccessTuple returns the raw bytes of the tuple in the given slot.
func (hp HeapPage) AccessTuple(slot int) RawTuple {
	common.Assert(slot >= 0 && slot < hp.NumSlots(), "slot out of bounds")
	common.Assert(hp.allocationBitmap.LoadBit(slot), "slot not allocated")
	return hp.Bytes[hp.rowDataStart+slot*hp.RowSize() : hp.rowDataStart+(slot+1)*hp.RowSize()]
}
