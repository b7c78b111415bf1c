package storage

import "github.com/marbledb/marble/common"

// PageGuard is a scoped handle over a pinned frame. Dropping it unpins the
// frame with the accumulated dirty flag, on every exit path:
//
//	guard := bpm.FetchPageBasic(pid)
//	defer guard.Drop()
//
// Guards are single-owner values. Passing one along transfers ownership;
// the helpers that consume a guard (UpgradeRead, UpgradeWrite) leave the
// source empty so a later Drop is a no-op. Drop is idempotent and safe on
// the zero value.
type PageGuard struct {
	bpm   *BufferPoolManager
	frame *PageFrame
	dirty bool
}

// IsNil reports whether the guard holds no frame (failed fetch, already
// dropped, or moved-from).
func (g *PageGuard) IsNil() bool {
	return g.frame == nil
}

// PageID returns the identifier of the guarded page.
func (g *PageGuard) PageID() common.PageID {
	common.Assert(g.frame != nil, "PageID on empty guard")
	return g.frame.PageID()
}

// Data returns the page bytes for reading.
func (g *PageGuard) Data() []byte {
	common.Assert(g.frame != nil, "Data on empty guard")
	return g.frame.Bytes[:]
}

// DataMut returns the page bytes for writing and marks the guard dirty, so
// the unpin on Drop records the modification.
func (g *PageGuard) DataMut() []byte {
	common.Assert(g.frame != nil, "DataMut on empty guard")
	g.dirty = true
	return g.frame.Bytes[:]
}

// Drop unpins the frame. Idempotent.
func (g *PageGuard) Drop() {
	if g.frame != nil {
		g.bpm.UnpinPage(g.frame.PageID(), g.dirty)
	}
	g.frame = nil
	g.bpm = nil
	g.dirty = false
}

// release empties the guard without unpinning; used when ownership moves to
// a typed guard.
func (g *PageGuard) release() (bpm *BufferPoolManager, frame *PageFrame, dirty bool) {
	bpm, frame, dirty = g.bpm, g.frame, g.dirty
	g.bpm = nil
	g.frame = nil
	g.dirty = false
	return
}

// UpgradeRead consumes the basic guard and returns a read guard holding the
// frame's shared latch. No re-pin is performed; the source guard is left
// empty.
func (g *PageGuard) UpgradeRead() ReadPageGuard {
	common.Assert(g.frame != nil, "UpgradeRead on empty guard")
	bpm, frame, dirty := g.release()
	frame.PageLatch.RLock()
	return ReadPageGuard{guard: PageGuard{bpm: bpm, frame: frame, dirty: dirty}}
}

// UpgradeWrite consumes the basic guard and returns a write guard holding
// the frame's exclusive latch. No re-pin is performed; the source guard is
// left empty.
func (g *PageGuard) UpgradeWrite() WritePageGuard {
	common.Assert(g.frame != nil, "UpgradeWrite on empty guard")
	bpm, frame, dirty := g.release()
	frame.PageLatch.Lock()
	return WritePageGuard{guard: PageGuard{bpm: bpm, frame: frame, dirty: dirty}}
}

// ReadPageGuard wraps a basic guard and holds the frame's shared latch.
// Drop releases the latch before unpinning.
type ReadPageGuard struct {
	guard PageGuard
}

func (g *ReadPageGuard) IsNil() bool {
	return g.guard.IsNil()
}

func (g *ReadPageGuard) PageID() common.PageID {
	return g.guard.PageID()
}

// Data returns the page bytes for reading.
func (g *ReadPageGuard) Data() []byte {
	return g.guard.Data()
}

// Drop releases the shared latch, then unpins. Idempotent.
func (g *ReadPageGuard) Drop() {
	if g.guard.frame != nil {
		g.guard.frame.PageLatch.RUnlock()
	}
	g.guard.Drop()
}

// WritePageGuard wraps a basic guard and holds the frame's exclusive latch.
// Drop releases the latch before unpinning.
type WritePageGuard struct {
	guard PageGuard
}

func (g *WritePageGuard) IsNil() bool {
	return g.guard.IsNil()
}

func (g *WritePageGuard) PageID() common.PageID {
	return g.guard.PageID()
}

// Data returns the page bytes for reading.
func (g *WritePageGuard) Data() []byte {
	return g.guard.Data()
}

// DataMut returns the page bytes for writing and marks the guard dirty.
func (g *WritePageGuard) DataMut() []byte {
	return g.guard.DataMut()
}

// Drop releases the exclusive latch, then unpins. Idempotent.
func (g *WritePageGuard) Drop() {
	if g.guard.frame != nil {
		g.guard.frame.PageLatch.Unlock()
	}
	g.guard.Drop()
}
