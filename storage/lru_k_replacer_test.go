package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marbledb/marble/common"
)

func TestLRUKReplacer_EvictionOrder(t *testing.T) {
	replacer := NewLRUKReplacer(7, 2)

	// Scenario: frames 1 and 2 accessed twice, frame 3 once. Frame 3 has
	// infinite backward k-distance and must be the victim.
	replacer.RecordAccess(1, AccessLookup)
	replacer.RecordAccess(1, AccessLookup)
	replacer.RecordAccess(2, AccessLookup)
	replacer.RecordAccess(2, AccessLookup)
	replacer.RecordAccess(3, AccessLookup)

	assert.Equal(t, 0, replacer.Size(), "no frame is evictable yet")

	replacer.SetEvictable(1, true)
	replacer.SetEvictable(2, true)
	replacer.SetEvictable(3, true)
	assert.Equal(t, 3, replacer.Size())

	victim, ok := replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, common.FrameID(3), victim, "infinite backward k-distance wins")
	assert.Equal(t, 2, replacer.Size())

	// Among full histories, the oldest k-th access goes first.
	victim, ok = replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, common.FrameID(1), victim)

	victim, ok = replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, common.FrameID(2), victim)

	_, ok = replacer.Evict()
	assert.False(t, ok, "nothing left to evict")
	assert.Equal(t, 0, replacer.Size())
}

func TestLRUKReplacer_InfiniteDistanceTieBreak(t *testing.T) {
	replacer := NewLRUKReplacer(4, 3)

	// All frames have fewer than k accesses; the least recently touched
	// one loses.
	replacer.RecordAccess(0, AccessLookup)
	replacer.RecordAccess(1, AccessLookup)
	replacer.RecordAccess(2, AccessLookup)
	replacer.RecordAccess(0, AccessLookup)

	replacer.SetEvictable(0, true)
	replacer.SetEvictable(1, true)
	replacer.SetEvictable(2, true)

	victim, ok := replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, common.FrameID(1), victim, "oldest latest-access breaks the tie")
}

func TestLRUKReplacer_ScanAccessesIgnored(t *testing.T) {
	replacer := NewLRUKReplacer(3, 2)

	replacer.RecordAccess(0, AccessLookup)
	replacer.RecordAccess(0, AccessLookup)
	// Frame 1 is touched only by scans: its history stays empty and it is
	// preferred over any frame with history.
	replacer.RecordAccess(1, AccessScan)
	replacer.RecordAccess(1, AccessScan)
	replacer.RecordAccess(1, AccessScan)

	replacer.SetEvictable(0, true)
	replacer.SetEvictable(1, true)

	victim, ok := replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, common.FrameID(1), victim)
}

func TestLRUKReplacer_HistoryBound(t *testing.T) {
	replacer := NewLRUKReplacer(2, 2)

	// Frame 0: accesses at t=0,1; frame 1: accesses at t=2,3. Then touch
	// frame 0 again (t=4): its k-th most recent access (t=1) is still older
	// than frame 1's (t=2)... but after one more access (t=5) frame 0's
	// window becomes {4,5} and frame 1 must go first.
	replacer.RecordAccess(0, AccessLookup)
	replacer.RecordAccess(0, AccessLookup)
	replacer.RecordAccess(1, AccessLookup)
	replacer.RecordAccess(1, AccessLookup)
	replacer.RecordAccess(0, AccessLookup)
	replacer.RecordAccess(0, AccessLookup)

	replacer.SetEvictable(0, true)
	replacer.SetEvictable(1, true)

	victim, ok := replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, common.FrameID(1), victim)
}

func TestLRUKReplacer_SetEvictableAccounting(t *testing.T) {
	replacer := NewLRUKReplacer(2, 2)
	replacer.RecordAccess(0, AccessLookup)

	replacer.SetEvictable(0, true)
	replacer.SetEvictable(0, true)
	assert.Equal(t, 1, replacer.Size(), "size changes only on state transitions")

	replacer.SetEvictable(0, false)
	replacer.SetEvictable(0, false)
	assert.Equal(t, 0, replacer.Size())
}

func TestLRUKReplacer_Remove(t *testing.T) {
	replacer := NewLRUKReplacer(3, 2)
	replacer.RecordAccess(0, AccessLookup)
	replacer.SetEvictable(0, true)

	replacer.Remove(0)
	assert.Equal(t, 0, replacer.Size())

	// Removing an untracked frame is a no-op.
	replacer.Remove(2)
	assert.Equal(t, 0, replacer.Size())

	// Removing a tracked non-evictable frame violates an invariant.
	replacer.RecordAccess(1, AccessLookup)
	assert.Panics(t, func() { replacer.Remove(1) })
}
