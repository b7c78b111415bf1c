package hashtable

import (
	"encoding/binary"

	"github.com/marbledb/marble/common"
)

// DirectoryPage layout:
// MaxDepth (4) | GlobalDepth (4) | LocalDepths (1 each, 1<<MaxDepth) |
// BucketPageIDs (4 each, 1<<MaxDepth)
//
// A directory has 2^GlobalDepth live slots; a hash routes to slot
// hash & ((1<<GlobalDepth)-1). Slots that agree on their low LocalDepth bits
// point at the same bucket and carry the same local depth.
type DirectoryPage struct {
	data []byte
}

const (
	directoryOffsetMaxDepth    = 0
	directoryOffsetGlobalDepth = directoryOffsetMaxDepth + 4
	directoryOffsetLocalDepths = directoryOffsetGlobalDepth + 4
)

// DirectoryMaxDepthLimit keeps the directory at or below 512 slots so the
// local depth and bucket id arrays fit in one page.
const DirectoryMaxDepthLimit = 9

// AsDirectoryPage interprets page bytes as a directory page.
func AsDirectoryPage(data []byte) DirectoryPage {
	common.Assert(len(data) == common.PageSize, "directory page must span a full page")
	return DirectoryPage{data: data}
}

func (dp DirectoryPage) bucketIDsOffset() int {
	return directoryOffsetLocalDepths + int(dp.MaxSize())
}

// Init formats the directory with global depth zero and no buckets.
func (dp DirectoryPage) Init(maxDepth uint32) {
	common.Assert(maxDepth <= DirectoryMaxDepthLimit, "directory max depth %d out of range", maxDepth)
	binary.LittleEndian.PutUint32(dp.data[directoryOffsetMaxDepth:], maxDepth)
	binary.LittleEndian.PutUint32(dp.data[directoryOffsetGlobalDepth:], 0)
	for i := uint32(0); i < dp.MaxSize(); i++ {
		dp.SetLocalDepth(i, 0)
		dp.SetBucketPageID(i, common.InvalidPageID)
	}
}

// MaxDepth returns the configured upper bound on the global depth.
func (dp DirectoryPage) MaxDepth() uint32 {
	return binary.LittleEndian.Uint32(dp.data[directoryOffsetMaxDepth:])
}

// GlobalDepth returns the number of low hash bits currently addressing the
// directory.
func (dp DirectoryPage) GlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(dp.data[directoryOffsetGlobalDepth:])
}

// Size returns the number of live directory slots, 2^GlobalDepth.
func (dp DirectoryPage) Size() uint32 {
	return 1 << dp.GlobalDepth()
}

// MaxSize returns the slot capacity, 2^MaxDepth.
func (dp DirectoryPage) MaxSize() uint32 {
	return 1 << dp.MaxDepth()
}

// HashToBucketIndex routes a hash to its bucket slot using the low
// GlobalDepth bits.
func (dp DirectoryPage) HashToBucketIndex(hash uint32) uint32 {
	return hash & (dp.Size() - 1)
}

// GetBucketPageID returns the bucket installed at the slot.
func (dp DirectoryPage) GetBucketPageID(bucketIdx uint32) common.PageID {
	common.Assert(bucketIdx < dp.MaxSize(), "bucket index out of range")
	off := dp.bucketIDsOffset() + int(bucketIdx)*common.PageIDSize
	return common.PageID(binary.LittleEndian.Uint32(dp.data[off:]))
}

// SetBucketPageID installs a bucket at the slot.
func (dp DirectoryPage) SetBucketPageID(bucketIdx uint32, pid common.PageID) {
	common.Assert(bucketIdx < dp.MaxSize(), "bucket index out of range")
	off := dp.bucketIDsOffset() + int(bucketIdx)*common.PageIDSize
	binary.LittleEndian.PutUint32(dp.data[off:], uint32(pid))
}

// GetLocalDepth returns the local depth recorded for the slot.
func (dp DirectoryPage) GetLocalDepth(bucketIdx uint32) uint32 {
	common.Assert(bucketIdx < dp.MaxSize(), "bucket index out of range")
	return uint32(dp.data[directoryOffsetLocalDepths+int(bucketIdx)])
}

// SetLocalDepth records the local depth for the slot.
func (dp DirectoryPage) SetLocalDepth(bucketIdx uint32, localDepth uint32) {
	common.Assert(bucketIdx < dp.MaxSize(), "bucket index out of range")
	common.Assert(localDepth <= dp.MaxDepth(), "local depth %d exceeds max depth", localDepth)
	dp.data[directoryOffsetLocalDepths+int(bucketIdx)] = byte(localDepth)
}

// IncrLocalDepth increments the local depth of the slot.
func (dp DirectoryPage) IncrLocalDepth(bucketIdx uint32) {
	dp.SetLocalDepth(bucketIdx, dp.GetLocalDepth(bucketIdx)+1)
}

// DecrLocalDepth decrements the local depth of the slot.
func (dp DirectoryPage) DecrLocalDepth(bucketIdx uint32) {
	depth := dp.GetLocalDepth(bucketIdx)
	common.Assert(depth > 0, "local depth underflow")
	dp.SetLocalDepth(bucketIdx, depth-1)
}

// GetLocalDepthMask returns the mask selecting the low LocalDepth bits of a
// hash for the given slot.
func (dp DirectoryPage) GetLocalDepthMask(bucketIdx uint32) uint32 {
	return (1 << dp.GetLocalDepth(bucketIdx)) - 1
}

// GetSplitImageIndex returns the slot that is (or would become) the sibling
// of the given slot: the canonical index with the top local-depth bit
// flipped. Only meaningful for slots with a nonzero local depth.
func (dp DirectoryPage) GetSplitImageIndex(bucketIdx uint32) uint32 {
	localDepth := dp.GetLocalDepth(bucketIdx)
	common.Assert(localDepth > 0, "split image of a depth-zero bucket")
	return (bucketIdx & dp.GetLocalDepthMask(bucketIdx)) ^ (1 << (localDepth - 1))
}

// IncrGlobalDepth doubles the directory. Every new slot inherits the bucket
// and local depth of its low-order twin.
func (dp DirectoryPage) IncrGlobalDepth() {
	common.Assert(dp.GlobalDepth() < dp.MaxDepth(), "directory growth beyond max depth")
	prevSize := dp.Size()
	binary.LittleEndian.PutUint32(dp.data[directoryOffsetGlobalDepth:], dp.GlobalDepth()+1)
	for i := prevSize; i < dp.Size(); i++ {
		dp.SetBucketPageID(i, dp.GetBucketPageID(i-prevSize))
		dp.SetLocalDepth(i, dp.GetLocalDepth(i-prevSize))
	}
}

// DecrGlobalDepth halves the directory.
func (dp DirectoryPage) DecrGlobalDepth() {
	common.Assert(dp.GlobalDepth() > 0, "directory shrink below zero")
	binary.LittleEndian.PutUint32(dp.data[directoryOffsetGlobalDepth:], dp.GlobalDepth()-1)
}

// CanShrink reports whether every slot's local depth is strictly below the
// global depth, i.e. the upper half of the directory mirrors the lower.
func (dp DirectoryPage) CanShrink() bool {
	if dp.GlobalDepth() == 0 {
		return false
	}
	for i := uint32(0); i < dp.Size(); i++ {
		if dp.GetLocalDepth(i) == dp.GlobalDepth() {
			return false
		}
	}
	return true
}

// VerifyIntegrity asserts the directory invariants: every live slot has a
// bucket, local depths never exceed the global depth, and all slots sharing
// the low local-depth bits agree on bucket and depth.
func (dp DirectoryPage) VerifyIntegrity() {
	for i := uint32(0); i < dp.Size(); i++ {
		ld := dp.GetLocalDepth(i)
		common.Assert(ld <= dp.GlobalDepth(), "slot %d: local depth %d above global depth %d", i, ld, dp.GlobalDepth())
		common.Assert(dp.GetBucketPageID(i).IsValid(), "slot %d: no bucket installed", i)

		canonical := i & dp.GetLocalDepthMask(i)
		common.Assert(dp.GetBucketPageID(canonical) == dp.GetBucketPageID(i),
			"slots %d and %d share low bits but disagree on bucket", canonical, i)
		common.Assert(dp.GetLocalDepth(canonical) == ld,
			"slots %d and %d share low bits but disagree on local depth", canonical, i)
	}
}
