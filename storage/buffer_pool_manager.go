package storage

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/marbledb/marble/common"
)

// BufferPoolManager manages the movement of database pages between the disk
// and a fixed array of in-memory frames. It acts as a central cache: hot
// pages stay resident and pinned pages never leave memory; when the pool is
// saturated the LRU-K replacer selects a victim among unpinned frames.
//
// Every public method serializes on a single pool-wide mutex, including the
// disk I/O it issues. Simple, but it bounds concurrency: per-page latching
// happens one level down, in the page guards.
type BufferPoolManager struct {
	mu        sync.Mutex
	frames    []PageFrame
	pageTable *xsync.MapOf[common.PageID, common.FrameID]
	freeList  []common.FrameID
	replacer  *LRUKReplacer
	scheduler *DiskScheduler

	nextPageID common.PageID
}

// NewBufferPoolManager creates a pool of poolSize frames over the given
// scheduler, with LRU-K history bound replacerK.
func NewBufferPoolManager(poolSize int, scheduler *DiskScheduler, replacerK int) *BufferPoolManager {
	bpm := &BufferPoolManager{
		frames:    make([]PageFrame, poolSize),
		pageTable: xsync.NewMapOf[common.PageID, common.FrameID](),
		freeList:  make([]common.FrameID, 0, poolSize),
		replacer:  NewLRUKReplacer(poolSize, replacerK),
		scheduler: scheduler,
	}
	for i := range bpm.frames {
		bpm.frames[i].pageID = common.InvalidPageID
		bpm.freeList = append(bpm.freeList, common.FrameID(i))
	}
	return bpm
}

// Scheduler returns the underlying disk scheduler.
func (bpm *BufferPoolManager) Scheduler() *DiskScheduler {
	return bpm.scheduler
}

// PoolSize returns the number of frames in the pool.
func (bpm *BufferPoolManager) PoolSize() int {
	return len(bpm.frames)
}

// doIO issues one request through the scheduler and blocks on its
// completion. I/O failures are fatal in this engine.
func (bpm *BufferPoolManager) doIO(isWrite bool, frame *PageFrame, pageID common.PageID) {
	done := bpm.scheduler.CreateDone()
	bpm.scheduler.Schedule(DiskRequest{
		IsWrite: isWrite,
		Data:    frame.Bytes[:],
		PageID:  pageID,
		Done:    done,
	})
	err := <-done
	common.Assert(err == nil, "disk I/O failed on %s: %v", pageID.String(), err)
}

// acquireFrame obtains a usable frame: from the free list if possible,
// otherwise by evicting a victim (flushing it first if dirty). The returned
// frame has stale metadata; the caller installs the new identity. Caller
// holds the pool latch.
func (bpm *BufferPoolManager) acquireFrame() (common.FrameID, bool) {
	if len(bpm.freeList) > 0 {
		frameID := bpm.freeList[0]
		bpm.freeList = bpm.freeList[1:]
		return frameID, true
	}

	frameID, ok := bpm.replacer.Evict()
	if !ok {
		return 0, false
	}
	frame := &bpm.frames[frameID]
	if frame.dirty {
		bpm.doIO(true, frame, frame.pageID)
	}
	bpm.pageTable.Delete(frame.pageID)
	return frameID, true
}

// NewPage allocates a fresh page identifier and pins it into a frame. The
// frame is zeroed and clean. Returns nil when no frame is free and nothing
// is evictable.
func (bpm *BufferPoolManager) NewPage() *PageFrame {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.acquireFrame()
	if !ok {
		return nil
	}

	pageID := bpm.allocatePage()
	frame := &bpm.frames[frameID]
	frame.reset()
	frame.pageID = pageID
	frame.pinCount = 1

	bpm.pageTable.Store(pageID, frameID)
	bpm.replacer.RecordAccess(frameID, AccessLookup)
	bpm.replacer.SetEvictable(frameID, false)
	return frame
}

// FetchPage returns the frame holding pageID, pinned. A resident page is
// served from the cache; otherwise a frame is acquired as in NewPage and the
// page is read from disk. Returns nil when no frame can be obtained.
func (bpm *BufferPoolManager) FetchPage(pageID common.PageID, accessType AccessType) *PageFrame {
	common.Assert(pageID.IsValid(), "fetch of invalid page id")
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if frameID, ok := bpm.pageTable.Load(pageID); ok {
		frame := &bpm.frames[frameID]
		frame.pinCount++
		bpm.replacer.SetEvictable(frameID, false)
		bpm.replacer.RecordAccess(frameID, accessType)
		return frame
	}

	frameID, ok := bpm.acquireFrame()
	if !ok {
		return nil
	}
	frame := &bpm.frames[frameID]
	frame.reset()
	frame.pageID = pageID
	frame.pinCount = 1

	bpm.pageTable.Store(pageID, frameID)
	bpm.replacer.RecordAccess(frameID, accessType)
	bpm.replacer.SetEvictable(frameID, false)

	bpm.doIO(false, frame, pageID)
	return frame
}

// UnpinPage drops one pin on pageID, ORing in the dirty flag. When the pin
// count reaches zero the frame becomes evictable. Returns false if the page
// is not resident or not pinned.
func (bpm *BufferPoolManager) UnpinPage(pageID common.PageID, markDirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable.Load(pageID)
	if !ok {
		return false
	}
	frame := &bpm.frames[frameID]
	if frame.pinCount <= 0 {
		return false
	}
	frame.pinCount--
	if frame.pinCount == 0 {
		bpm.replacer.SetEvictable(frameID, true)
	}
	if markDirty {
		// Once dirty, stays dirty until flushed.
		frame.dirty = true
	}
	return true
}

// FlushPage synchronously writes pageID to disk and clears its dirty bit,
// regardless of pins. Returns false if the page is not resident.
func (bpm *BufferPoolManager) FlushPage(pageID common.PageID) bool {
	common.Assert(pageID.IsValid(), "flush of invalid page id")
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	return bpm.flushLocked(pageID)
}

func (bpm *BufferPoolManager) flushLocked(pageID common.PageID) bool {
	frameID, ok := bpm.pageTable.Load(pageID)
	if !ok {
		return false
	}
	frame := &bpm.frames[frameID]
	bpm.doIO(true, frame, frame.pageID)
	frame.dirty = false
	return true
}

// FlushAllPages flushes every resident page. The pool latch is held across
// all per-page writes, so at most one write per page is ever in flight.
func (bpm *BufferPoolManager) FlushAllPages() {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	bpm.pageTable.Range(func(pageID common.PageID, _ common.FrameID) bool {
		bpm.flushLocked(pageID)
		return true
	})
}

// DeletePage evicts pageID from the pool and returns its frame to the free
// list. Deleting a non-resident page is a successful no-op; deleting a
// pinned page fails.
func (bpm *BufferPoolManager) DeletePage(pageID common.PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable.Load(pageID)
	if !ok {
		return true
	}
	frame := &bpm.frames[frameID]
	if frame.pinCount > 0 {
		return false
	}

	bpm.pageTable.Delete(pageID)
	bpm.replacer.Remove(frameID)
	frame.reset()
	bpm.freeList = append(bpm.freeList, frameID)
	bpm.deallocatePage(pageID)
	return true
}

// RestoreAllocator fast-forwards the page allocator so a reopened database
// never reuses identifiers of pages already in the backing file.
func (bpm *BufferPoolManager) RestoreAllocator(next common.PageID) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	if next > bpm.nextPageID {
		bpm.nextPageID = next
	}
}

// allocatePage hands out the next page identifier. Serialized by the pool
// latch; the counter is per-pool, not process-global.
func (bpm *BufferPoolManager) allocatePage() common.PageID {
	pageID := bpm.nextPageID
	bpm.nextPageID++
	return pageID
}

// deallocatePage is a no-op: the allocator is monotonic and identifiers of
// deleted pages are not recycled.
func (bpm *BufferPoolManager) deallocatePage(common.PageID) {}

// NewPageGuarded allocates a new page and wraps it in a basic guard.
func (bpm *BufferPoolManager) NewPageGuarded() PageGuard {
	return PageGuard{bpm: bpm, frame: bpm.NewPage()}
}

// FetchPageBasic fetches a page wrapped in a basic guard (no latch held).
func (bpm *BufferPoolManager) FetchPageBasic(pageID common.PageID) PageGuard {
	return PageGuard{bpm: bpm, frame: bpm.FetchPage(pageID, AccessLookup)}
}

// FetchPageRead fetches a page and acquires its shared latch.
func (bpm *BufferPoolManager) FetchPageRead(pageID common.PageID) ReadPageGuard {
	frame := bpm.FetchPage(pageID, AccessLookup)
	if frame != nil {
		frame.PageLatch.RLock()
	}
	return ReadPageGuard{guard: PageGuard{bpm: bpm, frame: frame}}
}

// FetchPageWrite fetches a page and acquires its exclusive latch.
func (bpm *BufferPoolManager) FetchPageWrite(pageID common.PageID) WritePageGuard {
	frame := bpm.FetchPage(pageID, AccessLookup)
	if frame != nil {
		frame.PageLatch.Lock()
	}
	return WritePageGuard{guard: PageGuard{bpm: bpm, frame: frame}}
}
