// Package hashtable implements a disk-resident extendible hash table on top
// of the buffer pool. Three fixed-layout page kinds form the structure:
// a header page routing the high bits of the hash to a directory, directory
// pages routing the low bits to buckets, and bucket pages holding the
// entries themselves.
package hashtable

import (
	"encoding/binary"

	"github.com/marbledb/marble/common"
)

// HeaderPage layout:
// MaxDepth (4) | DirectoryPageIDs (4 each, 1<<MaxDepth entries)
//
// The header maps the top MaxDepth bits of a hash to a directory slot.
type HeaderPage struct {
	data []byte
}

const (
	headerOffsetMaxDepth = 0
	headerOffsetDirIDs   = headerOffsetMaxDepth + 4
)

// HeaderMaxDepthLimit bounds the header depth so the directory id array fits
// in one page.
const HeaderMaxDepthLimit = 9

// AsHeaderPage interprets page bytes as a header page.
func AsHeaderPage(data []byte) HeaderPage {
	common.Assert(len(data) == common.PageSize, "header page must span a full page")
	return HeaderPage{data: data}
}

// Init formats the page with the given depth and no directories.
func (hp HeaderPage) Init(maxDepth uint32) {
	common.Assert(maxDepth <= HeaderMaxDepthLimit, "header max depth %d out of range", maxDepth)
	binary.LittleEndian.PutUint32(hp.data[headerOffsetMaxDepth:], maxDepth)
	for i := uint32(0); i < hp.MaxSize(); i++ {
		hp.SetDirectoryPageID(i, common.InvalidPageID)
	}
}

// MaxDepth returns the number of high hash bits the header routes on.
func (hp HeaderPage) MaxDepth() uint32 {
	return binary.LittleEndian.Uint32(hp.data[headerOffsetMaxDepth:])
}

// MaxSize returns the number of directory slots.
func (hp HeaderPage) MaxSize() uint32 {
	return 1 << hp.MaxDepth()
}

// HashToDirectoryIndex routes a hash to its directory slot using the top
// MaxDepth bits. A zero-depth header has a single slot.
func (hp HeaderPage) HashToDirectoryIndex(hash uint32) uint32 {
	maxDepth := hp.MaxDepth()
	if maxDepth == 0 {
		// Shifting by >= 32 is undefined width behavior; route everything
		// to the single slot.
		return 0
	}
	return hash >> (32 - maxDepth)
}

// GetDirectoryPageID returns the directory page installed at the slot, or
// InvalidPageID.
func (hp HeaderPage) GetDirectoryPageID(directoryIdx uint32) common.PageID {
	common.Assert(directoryIdx < hp.MaxSize(), "directory index out of range")
	off := headerOffsetDirIDs + int(directoryIdx)*common.PageIDSize
	return common.PageID(binary.LittleEndian.Uint32(hp.data[off:]))
}

// SetDirectoryPageID installs a directory page at the slot.
func (hp HeaderPage) SetDirectoryPageID(directoryIdx uint32, pid common.PageID) {
	common.Assert(directoryIdx < hp.MaxSize(), "directory index out of range")
	off := headerOffsetDirIDs + int(directoryIdx)*common.PageIDSize
	binary.LittleEndian.PutUint32(hp.data[off:], uint32(pid))
}
