package execution

import (
	"errors"
	"sync"

	"github.com/marbledb/marble/catalog"
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/storage"
	"github.com/marbledb/marble/transaction"
)

// ErrTupleDeleted reports access to a tombstoned tuple.
var ErrTupleDeleted = errors.New("tuple has been deleted")

// ErrHeapFull reports that the buffer pool could not supply a frame to
// extend the heap.
var ErrHeapFull = errors.New("no frame available to extend table heap")

// TableHeap stores a table's rows as a chain of slotted heap pages linked
// through their next-page pointers. Deletion tombstones a slot; tombstoned
// rows are invisible to readers but keep their slot, which is never freed
// for reuse.
type TableHeap struct {
	oid      common.ObjectID
	desc     *storage.RawTupleDesc
	bpm      *storage.BufferPoolManager
	cat      *catalog.Catalog
	provider catalog.PersistenceProvider

	// tailLatch guards chain extension and the page id bookkeeping.
	tailLatch   sync.Mutex
	firstPageID common.PageID
	lastPageID  common.PageID
}

// NewTableHeap opens (or creates) the heap for the given table. A table
// without pages gets its first page allocated and recorded in the catalog.
func NewTableHeap(table *catalog.Table, bpm *storage.BufferPoolManager,
	cat *catalog.Catalog, provider catalog.PersistenceProvider) (*TableHeap, error) {
	heap := &TableHeap{
		oid:         table.Oid,
		desc:        storage.NewRawTupleDesc(table.ColumnTypes()),
		bpm:         bpm,
		cat:         cat,
		provider:    provider,
		firstPageID: table.FirstPageID,
		lastPageID:  table.FirstPageID,
	}

	if !table.FirstPageID.IsValid() {
		frame := bpm.NewPage()
		if frame == nil {
			return nil, ErrHeapFull
		}
		storage.InitializeHeapPage(heap.desc, frame)
		pid := frame.PageID()
		bpm.UnpinPage(pid, true)

		heap.firstPageID = pid
		heap.lastPageID = pid
		if err := cat.SetFirstPageID(table.Oid, pid, provider); err != nil {
			return nil, err
		}
		return heap, nil
	}

	// Reopening: follow the chain to find the tail.
	pid := table.FirstPageID
	for {
		frame := bpm.FetchPage(pid, storage.AccessScan)
		if frame == nil {
			return nil, ErrHeapFull
		}
		next := frame.AsHeapPage().NextPageID()
		bpm.UnpinPage(pid, false)
		if !next.IsValid() {
			break
		}
		pid = next
	}
	heap.lastPageID = pid
	return heap, nil
}

// StorageSchema returns the physical layout descriptor of this table's rows.
func (heap *TableHeap) StorageSchema() *storage.RawTupleDesc {
	return heap.desc
}

// FirstPageID returns the head of the page chain.
func (heap *TableHeap) FirstPageID() common.PageID {
	return heap.firstPageID
}

// InsertTuple finds a free slot (extending the chain if every page is full)
// and writes the row into it.
func (heap *TableHeap) InsertTuple(txn *transaction.TransactionContext, row storage.RawTuple) (common.RecordID, error) {
	common.Assert(len(row) == heap.desc.BytesPerTuple(), "row size mismatch")

	pid := heap.lastPageID
	for {
		frame := heap.bpm.FetchPage(pid, storage.AccessLookup)
		if frame == nil {
			return common.RecordID{PageID: common.InvalidPageID}, ErrHeapFull
		}
		hp := frame.AsHeapPage()
		hp.PageLatch.Lock()

		slot := hp.FindFreeSlot()
		if slot >= 0 {
			hp.MarkAllocated(slot, true)
			copy(hp.AccessTuple(slot), row)
			hp.PageLatch.Unlock()
			heap.bpm.UnpinPage(pid, true)
			return common.RecordID{PageID: pid, Slot: int32(slot)}, nil
		}

		next := hp.NextPageID()
		hp.PageLatch.Unlock()
		heap.bpm.UnpinPage(pid, false)

		if next.IsValid() {
			pid = next
			continue
		}
		extended, err := heap.extendChain(pid)
		if err != nil {
			return common.RecordID{PageID: common.InvalidPageID}, err
		}
		pid = extended
	}
}

// extendChain appends a fresh page after fullPid, unless another inserter
// already did.
func (heap *TableHeap) extendChain(fullPid common.PageID) (common.PageID, error) {
	heap.tailLatch.Lock()
	defer heap.tailLatch.Unlock()

	// Re-check under the latch: the chain may have grown while we waited.
	frame := heap.bpm.FetchPage(fullPid, storage.AccessLookup)
	if frame == nil {
		return common.InvalidPageID, ErrHeapFull
	}
	hp := frame.AsHeapPage()
	hp.PageLatch.Lock()
	if next := hp.NextPageID(); next.IsValid() {
		hp.PageLatch.Unlock()
		heap.bpm.UnpinPage(fullPid, false)
		return next, nil
	}

	newFrame := heap.bpm.NewPage()
	if newFrame == nil {
		hp.PageLatch.Unlock()
		heap.bpm.UnpinPage(fullPid, false)
		return common.InvalidPageID, ErrHeapFull
	}
	storage.InitializeHeapPage(heap.desc, newFrame)
	newPid := newFrame.PageID()
	heap.bpm.UnpinPage(newPid, true)

	hp.SetNextPageID(newPid)
	hp.PageLatch.Unlock()
	heap.bpm.UnpinPage(fullPid, true)

	heap.lastPageID = newPid
	return newPid, nil
}

// DeleteTuple tombstones the tuple at rid. Returns ErrTupleDeleted if it was
// already tombstoned.
func (heap *TableHeap) DeleteTuple(txn *transaction.TransactionContext, rid common.RecordID) error {
	frame := heap.bpm.FetchPage(rid.PageID, storage.AccessLookup)
	if frame == nil {
		return ErrHeapFull
	}
	hp := frame.AsHeapPage()
	hp.PageLatch.Lock()
	common.Assert(hp.IsAllocated(int(rid.Slot)), "DeleteTuple on a deallocated slot")
	if hp.IsTombstoned(int(rid.Slot)) {
		hp.PageLatch.Unlock()
		heap.bpm.UnpinPage(rid.PageID, false)
		return ErrTupleDeleted
	}
	hp.MarkTombstoned(int(rid.Slot), true)
	hp.PageLatch.Unlock()
	heap.bpm.UnpinPage(rid.PageID, true)
	return nil
}

// ReadTuple copies the physical bytes of the tuple at rid into buffer.
// Returns ErrTupleDeleted for tombstoned tuples.
func (heap *TableHeap) ReadTuple(txn *transaction.TransactionContext, rid common.RecordID, buffer []byte) error {
	frame := heap.bpm.FetchPage(rid.PageID, storage.AccessLookup)
	if frame == nil {
		return ErrHeapFull
	}
	hp := frame.AsHeapPage()
	hp.PageLatch.RLock()
	common.Assert(hp.IsAllocated(int(rid.Slot)), "ReadTuple on a deallocated slot")
	deleted := hp.IsTombstoned(int(rid.Slot))
	if !deleted {
		copy(buffer, hp.AccessTuple(int(rid.Slot)))
	}
	hp.PageLatch.RUnlock()
	heap.bpm.UnpinPage(rid.PageID, false)
	if deleted {
		return ErrTupleDeleted
	}
	return nil
}

// Iterator returns a scanner over all live tuples, reading rows into the
// supplied buffer (zero-allocation scanning).
func (heap *TableHeap) Iterator(txn *transaction.TransactionContext, buffer []byte) TableHeapIterator {
	return TableHeapIterator{
		tableHeap: heap,
		buffer:    buffer,
		currRID: common.RecordID{
			PageID: heap.firstPageID,
			Slot:   -1,
		},
	}
}

// TableHeapIterator iterates over all allocated, non-tombstoned tuples,
// holding at most one page pin at a time.
type TableHeapIterator struct {
	tableHeap *TableHeap
	buffer    []byte

	currRID  common.RecordID
	currPage *storage.PageFrame

	err error
}

// IsNil returns true for the zero-value iterator.
func (it *TableHeapIterator) IsNil() bool {
	return it.tableHeap == nil
}

// Next advances to the next live tuple, following the page chain and
// managing pins automatically.
func (it *TableHeapIterator) Next() bool {
	if it.err != nil {
		return false
	}

	for it.currRID.PageID.IsValid() {
		if it.currPage == nil {
			page := it.tableHeap.bpm.FetchPage(it.currRID.PageID, storage.AccessScan)
			if page == nil {
				it.err = ErrHeapFull
				return false
			}
			it.currPage = page
		}

		hp := it.currPage.AsHeapPage()
		hp.PageLatch.RLock()

		numSlots := hp.NumSlots()
		foundSlot := -1
		for i := int(it.currRID.Slot + 1); i < numSlots; i++ {
			if hp.IsAllocated(i) && !hp.IsTombstoned(i) {
				foundSlot = i
				break
			}
		}

		if foundSlot == -1 {
			next := hp.NextPageID()
			hp.PageLatch.RUnlock()
			it.tableHeap.bpm.UnpinPage(it.currRID.PageID, false)

			it.currPage = nil
			it.currRID.PageID = next
			it.currRID.Slot = -1
			continue
		}

		it.currRID.Slot = int32(foundSlot)
		copy(it.buffer, hp.AccessTuple(foundSlot))
		hp.PageLatch.RUnlock()
		return true
	}
	return false
}

// CurrentTuple returns the raw bytes at the cursor, valid until the next
// call to Next.
func (it *TableHeapIterator) CurrentTuple() storage.RawTuple {
	return it.buffer
}

// CurrentRID returns the RecordID of the current tuple.
func (it *TableHeapIterator) CurrentRID() common.RecordID {
	return it.currRID
}

// Error returns the first error encountered during iteration, if any.
func (it *TableHeapIterator) Error() error {
	return it.err
}

// Close releases the pin held on the current page, if any.
func (it *TableHeapIterator) Close() error {
	if it.currPage != nil {
		it.tableHeap.bpm.UnpinPage(it.currRID.PageID, false)
		it.currPage = nil
	}
	return nil
}
