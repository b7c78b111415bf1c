package hashtable

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/storage"
)

func newTestBPM(t *testing.T, poolSize int) *storage.BufferPoolManager {
	t.Helper()
	dm, err := storage.NewFileDiskManager(filepath.Join(t.TempDir(), "hash.db"))
	require.NoError(t, err)
	scheduler := storage.NewDiskScheduler(dm)
	t.Cleanup(func() {
		scheduler.Shutdown()
		_ = dm.Close()
	})
	return storage.NewBufferPoolManager(poolSize, scheduler, 2)
}

// identityHash reads the key bytes as a little-endian uint32, so tests can
// pin exact bucket indices.
func identityHash(key []byte) uint32 {
	return binary.LittleEndian.Uint32(key)
}

func key32(v uint32) []byte {
	k := make([]byte, 4)
	binary.LittleEndian.PutUint32(k, v)
	return k
}

func rid(page int32, slot int32) common.RecordID {
	return common.RecordID{PageID: common.PageID(page), Slot: slot}
}

func fetchDirectory(t *testing.T, bpm *storage.BufferPoolManager, ht *ExtendibleHashTable, hash uint32) (storage.ReadPageGuard, DirectoryPage) {
	t.Helper()
	headerGuard := bpm.FetchPageRead(ht.HeaderPageID())
	require.False(t, headerGuard.IsNil())
	header := AsHeaderPage(headerGuard.Data())
	dirPid := header.GetDirectoryPageID(header.HashToDirectoryIndex(hash))
	headerGuard.Drop()
	require.True(t, dirPid.IsValid())

	dirGuard := bpm.FetchPageRead(dirPid)
	require.False(t, dirGuard.IsNil())
	return dirGuard, AsDirectoryPage(dirGuard.Data())
}

func TestExtendibleHashTable_InsertAndLookup(t *testing.T) {
	bpm := newTestBPM(t, 16)
	ht := NewExtendibleHashTable("probe", bpm, 4, nil, 1, 9, 8)
	require.NotNil(t, ht)

	for i := uint32(0); i < 200; i++ {
		require.True(t, ht.Insert(key32(i), rid(int32(i), 0)), "insert %d", i)
	}
	for i := uint32(0); i < 200; i++ {
		got, ok := ht.GetValue(key32(i))
		require.True(t, ok, "lookup %d", i)
		assert.Equal(t, rid(int32(i), 0), got)
	}
	_, ok := ht.GetValue(key32(9999))
	assert.False(t, ok)
}

func TestExtendibleHashTable_DuplicateInsertFails(t *testing.T) {
	bpm := newTestBPM(t, 8)
	ht := NewExtendibleHashTable("uniq", bpm, 4, nil, 0, 4, 8)
	require.NotNil(t, ht)

	require.True(t, ht.Insert(key32(7), rid(7, 0)))
	assert.False(t, ht.Insert(key32(7), rid(7, 1)), "the table is unique-key")

	got, ok := ht.GetValue(key32(7))
	require.True(t, ok)
	assert.Equal(t, rid(7, 0), got, "original value survives the duplicate insert")
}

func TestExtendibleHashTable_SplitGrowsDirectory(t *testing.T) {
	bpm := newTestBPM(t, 16)
	// Two-entry buckets with a transparent hash: keys 0b000 and 0b100 agree
	// on their low two bits and 0b010 shares their low bit, so separating
	// 0b010 from them takes two splits.
	ht := NewExtendibleHashTable("split", bpm, 4, identityHash, 0, 9, 2)
	require.NotNil(t, ht)

	require.True(t, ht.Insert(key32(0b000), rid(0, 0)))
	require.True(t, ht.Insert(key32(0b100), rid(4, 0)))
	require.True(t, ht.Insert(key32(0b010), rid(2, 0)))

	dirGuard, dir := fetchDirectory(t, bpm, ht, 0)
	defer dirGuard.Drop()

	assert.Equal(t, uint32(2), dir.GlobalDepth())
	dir.VerifyIntegrity()

	// Slots 00 and 10 hold distinct buckets (the split separated the pair);
	// slots 01 and 11 still share theirs.
	assert.NotEqual(t, dir.GetBucketPageID(0b00), dir.GetBucketPageID(0b10))
	assert.Equal(t, dir.GetBucketPageID(0b01), dir.GetBucketPageID(0b11))
	assert.Equal(t, uint32(2), dir.GetLocalDepth(0b00))
	assert.Equal(t, uint32(2), dir.GetLocalDepth(0b10))
	assert.Equal(t, uint32(1), dir.GetLocalDepth(0b01))

	for _, v := range []uint32{0b000, 0b100, 0b010} {
		_, ok := ht.GetValue(key32(v))
		assert.True(t, ok, "key %b survives the splits", v)
	}
}

func TestExtendibleHashTable_RemoveMergesAndShrinks(t *testing.T) {
	bpm := newTestBPM(t, 16)
	ht := NewExtendibleHashTable("shrink", bpm, 4, identityHash, 0, 9, 2)
	require.NotNil(t, ht)

	require.True(t, ht.Insert(key32(0b000), rid(0, 0)))
	require.True(t, ht.Insert(key32(0b100), rid(4, 0)))
	require.True(t, ht.Insert(key32(0b010), rid(2, 0)))

	// Emptying the bucket behind slot 10 merges it with its split image and
	// lets the directory halve.
	require.True(t, ht.Remove(key32(0b010)))

	dirGuard, dir := fetchDirectory(t, bpm, ht, 0)
	assert.Equal(t, uint32(1), dir.GlobalDepth())
	dir.VerifyIntegrity()
	dirGuard.Drop()

	for _, v := range []uint32{0b000, 0b100} {
		_, ok := ht.GetValue(key32(v))
		assert.True(t, ok, "surviving key %b still readable", v)
	}
	_, ok := ht.GetValue(key32(0b010))
	assert.False(t, ok)

	assert.False(t, ht.Remove(key32(0b010)), "removing an absent key fails")
}

func TestExtendibleHashTable_RecursiveMergeToEmpty(t *testing.T) {
	bpm := newTestBPM(t, 16)
	ht := NewExtendibleHashTable("drain", bpm, 4, identityHash, 0, 9, 2)
	require.NotNil(t, ht)

	keys := []uint32{0b000, 0b100, 0b010, 0b001, 0b011}
	for _, v := range keys {
		require.True(t, ht.Insert(key32(v), rid(int32(v), 0)))
	}
	for _, v := range keys {
		require.True(t, ht.Remove(key32(v)), "remove %b", v)
	}

	dirGuard, dir := fetchDirectory(t, bpm, ht, 0)
	defer dirGuard.Drop()
	assert.Equal(t, uint32(0), dir.GlobalDepth(), "a drained table shrinks to a single slot")
	dir.VerifyIntegrity()

	for _, v := range keys {
		_, ok := ht.GetValue(key32(v))
		assert.False(t, ok)
	}
}

func TestExtendibleHashTable_CapacityExhaustion(t *testing.T) {
	bpm := newTestBPM(t, 16)
	// Single-entry buckets, directory capped at depth 1: two entries fit,
	// a third that collides on the low bit cannot.
	ht := NewExtendibleHashTable("full", bpm, 4, identityHash, 0, 1, 1)
	require.NotNil(t, ht)

	require.True(t, ht.Insert(key32(0b0), rid(0, 0)))
	require.True(t, ht.Insert(key32(0b1), rid(1, 0)))
	assert.False(t, ht.Insert(key32(0b10), rid(2, 0)),
		"full bucket at max depth reports capacity exhaustion")
}

func TestExtendibleHashTable_HeaderRouting(t *testing.T) {
	bpm := newTestBPM(t, 32)
	// Header depth 2: the top two hash bits pick among four directories.
	ht := NewExtendibleHashTable("routed", bpm, 4, identityHash, 2, 4, 4)
	require.NotNil(t, ht)

	high := func(d uint32) uint32 { return d << 30 }
	for d := uint32(0); d < 4; d++ {
		require.True(t, ht.Insert(key32(high(d)|5), rid(int32(d), 5)))
	}

	headerGuard := bpm.FetchPageRead(ht.HeaderPageID())
	require.False(t, headerGuard.IsNil())
	header := AsHeaderPage(headerGuard.Data())
	seen := map[common.PageID]bool{}
	for d := uint32(0); d < 4; d++ {
		pid := header.GetDirectoryPageID(d)
		require.True(t, pid.IsValid(), "directory %d was created on demand", d)
		seen[pid] = true
	}
	headerGuard.Drop()
	assert.Len(t, seen, 4, "each header slot got its own directory")

	for d := uint32(0); d < 4; d++ {
		got, ok := ht.GetValue(key32(high(d) | 5))
		require.True(t, ok)
		assert.Equal(t, rid(int32(d), 5), got)
	}
}

func TestExtendibleHashTable_MixedChurn(t *testing.T) {
	bpm := newTestBPM(t, 64)
	ht := NewExtendibleHashTable("churn", bpm, 8, nil, 1, 9, 4)
	require.NotNil(t, ht)

	key := func(i int) []byte {
		k := make([]byte, 8)
		copy(k, fmt.Sprintf("k%06d", i))
		return k
	}

	for i := 0; i < 300; i++ {
		require.True(t, ht.Insert(key(i), rid(int32(i), 0)))
	}
	// Remove the even keys, then reinsert them with new values.
	for i := 0; i < 300; i += 2 {
		require.True(t, ht.Remove(key(i)))
	}
	for i := 0; i < 300; i += 2 {
		require.True(t, ht.Insert(key(i), rid(int32(i), 1)))
	}

	for i := 0; i < 300; i++ {
		got, ok := ht.GetValue(key(i))
		require.True(t, ok, "key %d", i)
		if i%2 == 0 {
			assert.Equal(t, rid(int32(i), 1), got, "reinserted key %d has its latest value", i)
		} else {
			assert.Equal(t, rid(int32(i), 0), got)
		}
	}
}
