package hashtable

import (
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/storage"
)

// HashFunc mixes a key's bytes into the 32-bit value the table routes on.
type HashFunc func([]byte) uint32

// DefaultHash folds the engine-wide 64-bit hash to 32 bits.
func DefaultHash(key []byte) uint32 {
	return common.Hash32(key)
}

// ExtendibleHashTable is a disk-resident, unique-key hash table mapping
// fixed-width byte keys to RecordIDs. It is a pure client of the buffer
// pool: all state beyond the header page id lives in pages, accessed through
// page guards with latch crabbing.
type ExtendibleHashTable struct {
	name         string
	bpm          *storage.BufferPoolManager
	hash         HashFunc
	headerPageID common.PageID

	headerMaxDepth    uint32
	directoryMaxDepth uint32
	bucketMaxSize     uint32
	keySize           int
}

// NewExtendibleHashTable creates an empty table, allocating its header page.
// Returns nil if the buffer pool cannot supply a frame.
func NewExtendibleHashTable(name string, bpm *storage.BufferPoolManager, keySize int,
	hash HashFunc, headerMaxDepth, directoryMaxDepth, bucketMaxSize uint32) *ExtendibleHashTable {
	common.Assert(headerMaxDepth <= HeaderMaxDepthLimit, "header max depth out of range")
	common.Assert(directoryMaxDepth <= DirectoryMaxDepthLimit, "directory max depth out of range")
	common.Assert(bucketMaxSize <= MaxBucketSize(keySize), "bucket max size does not fit a page")
	if hash == nil {
		hash = DefaultHash
	}

	basic := bpm.NewPageGuarded()
	if basic.IsNil() {
		return nil
	}
	headerPageID := basic.PageID()
	headerGuard := basic.UpgradeWrite()
	defer headerGuard.Drop()
	AsHeaderPage(headerGuard.DataMut()).Init(headerMaxDepth)

	return &ExtendibleHashTable{
		name:              name,
		bpm:               bpm,
		hash:              hash,
		headerPageID:      headerPageID,
		headerMaxDepth:    headerMaxDepth,
		directoryMaxDepth: directoryMaxDepth,
		bucketMaxSize:     bucketMaxSize,
		keySize:           keySize,
	}
}

// OpenExtendibleHashTable attaches to a table whose header page already
// exists on disk (a reopened database).
func OpenExtendibleHashTable(name string, bpm *storage.BufferPoolManager, keySize int,
	hash HashFunc, headerPageID common.PageID, directoryMaxDepth, bucketMaxSize uint32) *ExtendibleHashTable {
	common.Assert(headerPageID.IsValid(), "open of a hash table without a header page")
	if hash == nil {
		hash = DefaultHash
	}

	headerGuard := bpm.FetchPageRead(headerPageID)
	if headerGuard.IsNil() {
		return nil
	}
	headerMaxDepth := AsHeaderPage(headerGuard.Data()).MaxDepth()
	headerGuard.Drop()

	return &ExtendibleHashTable{
		name:              name,
		bpm:               bpm,
		hash:              hash,
		headerPageID:      headerPageID,
		headerMaxDepth:    headerMaxDepth,
		directoryMaxDepth: directoryMaxDepth,
		bucketMaxSize:     bucketMaxSize,
		keySize:           keySize,
	}
}

// Name returns the table's name.
func (ht *ExtendibleHashTable) Name() string {
	return ht.name
}

// KeySize returns the fixed key width in bytes.
func (ht *ExtendibleHashTable) KeySize() int {
	return ht.keySize
}

// HeaderPageID returns the id of the table's header page.
func (ht *ExtendibleHashTable) HeaderPageID() common.PageID {
	return ht.headerPageID
}

// GetValue performs a point lookup. The latch chain is crabbed top-down:
// each parent's read latch is released as soon as the child is latched.
func (ht *ExtendibleHashTable) GetValue(key []byte) (common.RecordID, bool) {
	hash := ht.hash(key)

	headerGuard := ht.bpm.FetchPageRead(ht.headerPageID)
	common.Assert(!headerGuard.IsNil(), "buffer pool exhausted fetching header")
	header := AsHeaderPage(headerGuard.Data())
	directoryPageID := header.GetDirectoryPageID(header.HashToDirectoryIndex(hash))
	headerGuard.Drop()
	if !directoryPageID.IsValid() {
		return common.RecordID{PageID: common.InvalidPageID}, false
	}

	directoryGuard := ht.bpm.FetchPageRead(directoryPageID)
	common.Assert(!directoryGuard.IsNil(), "buffer pool exhausted fetching directory")
	directory := AsDirectoryPage(directoryGuard.Data())
	bucketPageID := directory.GetBucketPageID(directory.HashToBucketIndex(hash))
	if !bucketPageID.IsValid() {
		directoryGuard.Drop()
		return common.RecordID{PageID: common.InvalidPageID}, false
	}

	bucketGuard := ht.bpm.FetchPageRead(bucketPageID)
	common.Assert(!bucketGuard.IsNil(), "buffer pool exhausted fetching bucket")
	directoryGuard.Drop()
	defer bucketGuard.Drop()
	return AsBucketPage(bucketGuard.Data()).Lookup(key)
}

// Insert adds the key/value pair, splitting buckets and growing the
// directory as needed. Returns false for duplicate keys, for capacity
// exhaustion at maximum depth, and when the buffer pool cannot supply a
// frame for a new page.
func (ht *ExtendibleHashTable) Insert(key []byte, value common.RecordID) bool {
	common.Assert(len(key) == ht.keySize, "key width mismatch")
	hash := ht.hash(key)

	// Read-latch the header to locate the directory; promote to a write
	// latch only if the directory must be created.
	headerGuard := ht.bpm.FetchPageRead(ht.headerPageID)
	common.Assert(!headerGuard.IsNil(), "buffer pool exhausted fetching header")
	header := AsHeaderPage(headerGuard.Data())
	directoryIdx := header.HashToDirectoryIndex(hash)
	directoryPageID := header.GetDirectoryPageID(directoryIdx)
	headerGuard.Drop()

	if !directoryPageID.IsValid() {
		writeGuard := ht.bpm.FetchPageWrite(ht.headerPageID)
		common.Assert(!writeGuard.IsNil(), "buffer pool exhausted fetching header")
		headerMut := AsHeaderPage(writeGuard.DataMut())
		// Re-check: another inserter may have installed the directory while
		// the header was unlatched.
		directoryPageID = headerMut.GetDirectoryPageID(directoryIdx)
		if !directoryPageID.IsValid() {
			ok := ht.insertToNewDirectory(headerMut, directoryIdx, hash, key, value)
			writeGuard.Drop()
			return ok
		}
		writeGuard.Drop()
	}

	directoryGuard := ht.bpm.FetchPageWrite(directoryPageID)
	common.Assert(!directoryGuard.IsNil(), "buffer pool exhausted fetching directory")
	defer directoryGuard.Drop()
	directory := AsDirectoryPage(directoryGuard.DataMut())

	bucketIdx := directory.HashToBucketIndex(hash)
	bucketPageID := directory.GetBucketPageID(bucketIdx)
	if !bucketPageID.IsValid() {
		return ht.insertToNewBucket(directory, bucketIdx, key, value)
	}

	bucketGuard := ht.bpm.FetchPageWrite(bucketPageID)
	common.Assert(!bucketGuard.IsNil(), "buffer pool exhausted fetching bucket")
	bucket := AsBucketPage(bucketGuard.DataMut())

	if _, found := bucket.Lookup(key); found {
		bucketGuard.Drop()
		return false
	}
	if !bucket.IsFull() {
		ok := bucket.Insert(key, value)
		bucketGuard.Drop()
		return ok
	}

	// Split loop. Runs until the key lands in a non-full bucket; identical
	// hashes can force several consecutive splits.
	inserted := false
	for !inserted && bucket.IsFull() {
		if directory.GetLocalDepth(bucketIdx) == directory.GlobalDepth() {
			if directory.GlobalDepth() == directory.MaxDepth() {
				bucketGuard.Drop()
				return false
			}
			directory.IncrGlobalDepth()
		}

		newBasic := ht.bpm.NewPageGuarded()
		if newBasic.IsNil() {
			bucketGuard.Drop()
			return false
		}
		newBucketPageID := newBasic.PageID()
		newBucketGuard := newBasic.UpgradeWrite()
		newBucket := AsBucketPage(newBucketGuard.DataMut())
		newBucket.Init(ht.bucketMaxSize, ht.keySize)

		directory.IncrLocalDepth(bucketIdx)
		newLocalDepth := directory.GetLocalDepth(bucketIdx)
		newBucketIdx := updateDirectoryMapping(directory, bucketIdx, newBucketPageID, newLocalDepth)

		// Rehash: entries whose recomputed slot maps to the new bucket move;
		// the rest stay. RemoveAt compacts, so the index only advances when
		// an entry stays.
		for i := uint32(0); i < bucket.Size(); {
			k := bucket.KeyAt(i)
			rehashIdx := directory.HashToBucketIndex(ht.hash(k))
			if directory.GetBucketPageID(rehashIdx) == newBucketPageID {
				moved := newBucket.Insert(k, bucket.ValueAt(i))
				common.Assert(moved, "split bucket overflow during rehash")
				bucket.RemoveAt(i)
			} else {
				i++
			}
		}

		// Retry against whichever bucket the key now maps to.
		retryIdx := directory.HashToBucketIndex(hash)
		if directory.GetBucketPageID(retryIdx) == newBucketPageID {
			inserted = newBucket.Insert(key, value)
			if !inserted && newBucket.IsFull() {
				// Chase the key into the new bucket and keep splitting.
				bucketGuard.Drop()
				bucketGuard = newBucketGuard
				bucket = newBucket
				bucketIdx = newBucketIdx
				continue
			}
			newBucketGuard.Drop()
		} else {
			inserted = bucket.Insert(key, value)
			newBucketGuard.Drop()
		}
	}

	bucketGuard.Drop()
	return inserted
}

// insertToNewDirectory creates a directory (and its first bucket) for a
// header slot that had none. Caller holds the header write latch.
func (ht *ExtendibleHashTable) insertToNewDirectory(header HeaderPage, directoryIdx uint32,
	hash uint32, key []byte, value common.RecordID) bool {
	basic := ht.bpm.NewPageGuarded()
	if basic.IsNil() {
		return false
	}
	directoryPageID := basic.PageID()
	directoryGuard := basic.UpgradeWrite()
	defer directoryGuard.Drop()
	directory := AsDirectoryPage(directoryGuard.DataMut())
	directory.Init(ht.directoryMaxDepth)
	header.SetDirectoryPageID(directoryIdx, directoryPageID)
	return ht.insertToNewBucket(directory, directory.HashToBucketIndex(hash), key, value)
}

// insertToNewBucket creates a bucket for a directory slot that had none.
// Caller holds the directory write latch.
func (ht *ExtendibleHashTable) insertToNewBucket(directory DirectoryPage, bucketIdx uint32,
	key []byte, value common.RecordID) bool {
	basic := ht.bpm.NewPageGuarded()
	if basic.IsNil() {
		return false
	}
	bucketPageID := basic.PageID()
	bucketGuard := basic.UpgradeWrite()
	defer bucketGuard.Drop()
	bucket := AsBucketPage(bucketGuard.DataMut())
	bucket.Init(ht.bucketMaxSize, ht.keySize)
	directory.SetBucketPageID(bucketIdx, bucketPageID)
	directory.SetLocalDepth(bucketIdx, 0)
	return bucket.Insert(key, value)
}

// updateDirectoryMapping repoints the directory after a split: every slot in
// the splitting group whose bit (newLocalDepth-1) differs from the old
// canonical index moves to the new bucket; both halves take the incremented
// local depth. Returns the canonical index of the new bucket.
func updateDirectoryMapping(directory DirectoryPage, oldBucketIdx uint32,
	newBucketPageID common.PageID, newLocalDepth uint32) uint32 {
	size := directory.Size()
	step := uint32(1) << newLocalDepth
	oldCanonical := oldBucketIdx & (step - 1)
	newCanonical := oldCanonical ^ (1 << (newLocalDepth - 1))

	for i := newCanonical; i < size; i += step {
		directory.SetBucketPageID(i, newBucketPageID)
		directory.SetLocalDepth(i, newLocalDepth)
	}
	for i := oldCanonical; i < size; i += step {
		directory.SetLocalDepth(i, newLocalDepth)
	}
	return newCanonical
}

// Remove deletes the key. An emptied bucket merges with its split image
// when their local depths agree, recursively, and the directory shrinks
// while every slot sits below the global depth. Returns false when the key
// is absent.
func (ht *ExtendibleHashTable) Remove(key []byte) bool {
	common.Assert(len(key) == ht.keySize, "key width mismatch")
	hash := ht.hash(key)

	headerGuard := ht.bpm.FetchPageRead(ht.headerPageID)
	common.Assert(!headerGuard.IsNil(), "buffer pool exhausted fetching header")
	header := AsHeaderPage(headerGuard.Data())
	directoryPageID := header.GetDirectoryPageID(header.HashToDirectoryIndex(hash))
	headerGuard.Drop()
	if !directoryPageID.IsValid() {
		return false
	}

	directoryGuard := ht.bpm.FetchPageWrite(directoryPageID)
	common.Assert(!directoryGuard.IsNil(), "buffer pool exhausted fetching directory")
	defer directoryGuard.Drop()
	directory := AsDirectoryPage(directoryGuard.DataMut())

	bucketIdx := directory.HashToBucketIndex(hash)
	bucketPageID := directory.GetBucketPageID(bucketIdx)
	if !bucketPageID.IsValid() {
		return false
	}

	bucketGuard := ht.bpm.FetchPageWrite(bucketPageID)
	common.Assert(!bucketGuard.IsNil(), "buffer pool exhausted fetching bucket")
	bucket := AsBucketPage(bucketGuard.DataMut())
	if !bucket.Remove(key) {
		bucketGuard.Drop()
		return false
	}

	for bucket.IsEmpty() {
		localDepth := directory.GetLocalDepth(bucketIdx)
		if localDepth == 0 {
			break
		}
		splitIdx := directory.GetSplitImageIndex(bucketIdx)
		if directory.GetLocalDepth(splitIdx) != localDepth {
			// Buckets only merge with a split image of equal local depth.
			break
		}
		survivorPageID := directory.GetBucketPageID(splitIdx)

		// Point every slot of the merged group at the survivor and lower
		// the group's local depth.
		canonical := bucketIdx & directory.GetLocalDepthMask(bucketIdx)
		if splitIdx < canonical {
			canonical = splitIdx
		}
		step := uint32(1) << (localDepth - 1)
		for i := canonical; i < directory.Size(); i += step {
			directory.SetBucketPageID(i, survivorPageID)
			directory.SetLocalDepth(i, localDepth-1)
		}

		// Free the orphaned bucket page once its guard is gone.
		bucketGuard.Drop()
		ht.bpm.DeletePage(bucketPageID)

		for directory.CanShrink() {
			directory.DecrGlobalDepth()
		}

		// The merged bucket may itself be empty; continue from the survivor.
		bucketIdx = directory.HashToBucketIndex(hash)
		bucketPageID = directory.GetBucketPageID(bucketIdx)
		bucketGuard = ht.bpm.FetchPageWrite(bucketPageID)
		common.Assert(!bucketGuard.IsNil(), "buffer pool exhausted fetching bucket")
		bucket = AsBucketPage(bucketGuard.DataMut())
	}
	bucketGuard.Drop()

	for directory.CanShrink() {
		directory.DecrGlobalDepth()
	}
	return true
}
