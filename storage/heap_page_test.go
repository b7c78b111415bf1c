package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marbledb/marble/common"
)

func heapPageFixture(t *testing.T) (HeapPage, *RawTupleDesc) {
	t.Helper()
	desc := NewRawTupleDesc([]common.Type{common.IntType, common.StringType})
	frame := &PageFrame{}
	InitializeHeapPage(desc, frame)
	return frame.AsHeapPage(), desc
}

func TestHeapPage_Initialize(t *testing.T) {
	hp, desc := heapPageFixture(t)

	assert.Equal(t, desc.BytesPerTuple(), hp.RowSize())
	assert.Equal(t, 0, hp.NumUsed())
	assert.Greater(t, hp.NumSlots(), 0)
	assert.Equal(t, common.InvalidPageID, hp.NextPageID())

	// All slots plus bitmaps plus header must fit in the page.
	bitmapSize := common.Align8((hp.NumSlots() + 7) / 8)
	assert.LessOrEqual(t, 16+2*bitmapSize+hp.NumSlots()*hp.RowSize(), common.PageSize)
}

func TestHeapPage_AllocateAndTombstone(t *testing.T) {
	hp, desc := heapPageFixture(t)

	slot := hp.FindFreeSlot()
	require.Equal(t, 0, slot)
	hp.MarkAllocated(slot, true)
	assert.Equal(t, 1, hp.NumUsed())

	row := make([]byte, desc.BytesPerTuple())
	desc.SetValue(row, 0, common.NewIntValue(99))
	desc.SetValue(row, 1, common.NewStringValue("slot-zero"))
	copy(hp.AccessTuple(slot), row)

	got := desc.GetValue(hp.AccessTuple(slot), 1)
	assert.Equal(t, "slot-zero", got.StringValue())

	assert.False(t, hp.IsTombstoned(slot))
	hp.MarkTombstoned(slot, true)
	assert.True(t, hp.IsTombstoned(slot))

	// Deallocating clears the tombstone bit along with the slot.
	hp.MarkAllocated(slot, false)
	assert.Equal(t, 0, hp.NumUsed())
	hp.MarkAllocated(slot, true)
	assert.False(t, hp.IsTombstoned(slot))
}

func TestHeapPage_FillsAllSlots(t *testing.T) {
	hp, _ := heapPageFixture(t)

	for i := 0; i < hp.NumSlots(); i++ {
		slot := hp.FindFreeSlot()
		require.Equal(t, i, slot)
		hp.MarkAllocated(slot, true)
	}
	assert.Equal(t, -1, hp.FindFreeSlot(), "a full page has no free slot")
}

func TestHeapPage_NextPageChaining(t *testing.T) {
	hp, _ := heapPageFixture(t)

	hp.SetNextPageID(common.PageID(42))
	assert.Equal(t, common.PageID(42), hp.NextPageID())
}
