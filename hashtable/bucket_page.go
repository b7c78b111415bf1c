package hashtable

import (
	"bytes"
	"encoding/binary"

	"github.com/marbledb/marble/common"
)

// BucketPage layout:
// Size (4) | MaxSize (4) | KeySize (4) | Padding (4) | Entries
//
// Each entry is a fixed-width key followed by a serialized RecordID. Entries
// are kept dense: removal shifts the tail left.
type BucketPage struct {
	data []byte
}

const (
	bucketOffsetSize    = 0
	bucketOffsetMaxSize = bucketOffsetSize + 4
	bucketOffsetKeySize = bucketOffsetMaxSize + 4
	bucketHeaderSize    = 16
)

// AsBucketPage interprets page bytes as a bucket page.
func AsBucketPage(data []byte) BucketPage {
	common.Assert(len(data) == common.PageSize, "bucket page must span a full page")
	return BucketPage{data: data}
}

// MaxBucketSize returns the largest entry count a bucket page can hold for
// the given key width.
func MaxBucketSize(keySize int) uint32 {
	return uint32((common.PageSize - bucketHeaderSize) / (keySize + common.RecordIDSize))
}

// Init formats an empty bucket for maxSize entries of keySize-byte keys.
func (bp BucketPage) Init(maxSize uint32, keySize int) {
	common.Assert(keySize > 0, "bucket key size must be positive")
	common.Assert(maxSize > 0 && maxSize <= MaxBucketSize(keySize),
		"bucket max size %d does not fit a page for %d-byte keys", maxSize, keySize)
	binary.LittleEndian.PutUint32(bp.data[bucketOffsetSize:], 0)
	binary.LittleEndian.PutUint32(bp.data[bucketOffsetMaxSize:], maxSize)
	binary.LittleEndian.PutUint32(bp.data[bucketOffsetKeySize:], uint32(keySize))
}

// Size returns the number of entries in the bucket.
func (bp BucketPage) Size() uint32 {
	return binary.LittleEndian.Uint32(bp.data[bucketOffsetSize:])
}

func (bp BucketPage) setSize(n uint32) {
	binary.LittleEndian.PutUint32(bp.data[bucketOffsetSize:], n)
}

// MaxSize returns the entry capacity of the bucket.
func (bp BucketPage) MaxSize() uint32 {
	return binary.LittleEndian.Uint32(bp.data[bucketOffsetMaxSize:])
}

// KeySize returns the fixed key width in bytes.
func (bp BucketPage) KeySize() int {
	return int(binary.LittleEndian.Uint32(bp.data[bucketOffsetKeySize:]))
}

func (bp BucketPage) entrySize() int {
	return bp.KeySize() + common.RecordIDSize
}

func (bp BucketPage) entryOffset(i uint32) int {
	return bucketHeaderSize + int(i)*bp.entrySize()
}

// IsFull reports whether the bucket is at capacity.
func (bp BucketPage) IsFull() bool {
	return bp.Size() == bp.MaxSize()
}

// IsEmpty reports whether the bucket holds no entries.
func (bp BucketPage) IsEmpty() bool {
	return bp.Size() == 0
}

// KeyAt returns the key bytes of entry i. The slice aliases the page.
func (bp BucketPage) KeyAt(i uint32) []byte {
	common.Assert(i < bp.Size(), "bucket entry index out of range")
	off := bp.entryOffset(i)
	return bp.data[off : off+bp.KeySize()]
}

// ValueAt returns the RecordID of entry i.
func (bp BucketPage) ValueAt(i uint32) common.RecordID {
	common.Assert(i < bp.Size(), "bucket entry index out of range")
	var rid common.RecordID
	rid.LoadFrom(bp.data[bp.entryOffset(i)+bp.KeySize():])
	return rid
}

// Lookup finds the value for key.
func (bp BucketPage) Lookup(key []byte) (common.RecordID, bool) {
	common.Assert(len(key) == bp.KeySize(), "key width mismatch")
	size := bp.Size()
	for i := uint32(0); i < size; i++ {
		if bytes.Equal(bp.KeyAt(i), key) {
			return bp.ValueAt(i), true
		}
	}
	return common.RecordID{PageID: common.InvalidPageID}, false
}

// Insert appends the entry. Returns false when the bucket is full or the key
// is already present.
func (bp BucketPage) Insert(key []byte, rid common.RecordID) bool {
	common.Assert(len(key) == bp.KeySize(), "key width mismatch")
	size := bp.Size()
	if size == bp.MaxSize() {
		return false
	}
	for i := uint32(0); i < size; i++ {
		if bytes.Equal(bp.KeyAt(i), key) {
			return false
		}
	}
	off := bp.entryOffset(size)
	copy(bp.data[off:], key)
	rid.WriteTo(bp.data[off+bp.KeySize():])
	bp.setSize(size + 1)
	return true
}

// Remove deletes the entry for key, compacting the tail. Returns false when
// the key is absent.
func (bp BucketPage) Remove(key []byte) bool {
	common.Assert(len(key) == bp.KeySize(), "key width mismatch")
	size := bp.Size()
	for i := uint32(0); i < size; i++ {
		if bytes.Equal(bp.KeyAt(i), key) {
			bp.RemoveAt(i)
			return true
		}
	}
	return false
}

// RemoveAt deletes entry i by shifting the tail left.
func (bp BucketPage) RemoveAt(i uint32) {
	size := bp.Size()
	common.Assert(i < size, "bucket entry index out of range")
	entrySize := bp.entrySize()
	start := bp.entryOffset(i)
	end := bp.entryOffset(size)
	copy(bp.data[start:], bp.data[start+entrySize:end])
	bp.setSize(size - 1)
}
