package storage

import (
	"sync"

	"github.com/marbledb/marble/common"
)

// pageFrameMetadata is the bookkeeping the buffer pool keeps per frame. It
// is only read or written while the pool latch is held.
type pageFrameMetadata struct {
	pageID   common.PageID
	pinCount int
	dirty    bool
}

// PageFrame represents a physical page of data in memory.
// It holds the raw bytes of the page and acts as the container for buffer
// pool management.
type PageFrame struct {
	// Bytes holds the raw physical data of the page.
	Bytes [common.PageSize]byte
	// PageLatch protects the content of the page from concurrent access.
	// The typed page guards acquire it on behalf of callers.
	PageLatch sync.RWMutex

	pageFrameMetadata
}

// PageID returns the identifier of the page currently resident in the frame,
// or InvalidPageID for a free frame.
func (frame *PageFrame) PageID() common.PageID {
	return frame.pageID
}

// PinCount returns the number of outstanding pins on the frame.
func (frame *PageFrame) PinCount() int {
	return frame.pinCount
}

// IsDirty reports whether the frame holds modifications not yet on disk.
func (frame *PageFrame) IsDirty() bool {
	return frame.dirty
}

// reset zeroes the frame's data and clears its metadata. Caller holds the
// pool latch.
func (frame *PageFrame) reset() {
	frame.Bytes = [common.PageSize]byte{}
	frame.pageID = common.InvalidPageID
	frame.pinCount = 0
	frame.dirty = false
}
