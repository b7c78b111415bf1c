package storage

import (
	"sync"

	"github.com/marbledb/marble/common"
)

// AccessType distinguishes how a frame was touched. Scan accesses are
// policy-ignored: they keep a frame tracked but never contribute history,
// so a large scan cannot flush the hot set.
type AccessType int

const (
	AccessUnknown AccessType = iota
	AccessLookup
	AccessScan
	AccessIndex
)

// lruKNode holds the bounded access history of a single frame. history is
// ordered oldest first; history[0] is the k-th most recent access once the
// bound is reached.
type lruKNode struct {
	history   []uint64
	evictable bool
}

// LRUKReplacer implements the LRU-K eviction policy.
//
// The backward k-distance of a frame is the difference between the current
// timestamp and the timestamp of its k-th previous access. A frame with
// fewer than k recorded accesses has infinite backward k-distance; among
// those, classic LRU over the latest access breaks the tie. The replacer
// evicts the evictable frame with the largest backward k-distance.
type LRUKReplacer struct {
	mu            sync.Mutex
	nodeStore     map[common.FrameID]*lruKNode
	currTimestamp uint64
	currSize      int
	numFrames     int
	k             int
}

// NewLRUKReplacer creates a replacer tracking up to numFrames frames with
// history bound k.
func NewLRUKReplacer(numFrames int, k int) *LRUKReplacer {
	common.Assert(numFrames > 0, "replacer needs at least one frame")
	common.Assert(k > 0, "replacer k must be positive")
	return &LRUKReplacer{
		nodeStore: make(map[common.FrameID]*lruKNode),
		numFrames: numFrames,
		k:         k,
	}
}

// Evict selects and removes the victim frame among all evictable frames.
// It returns false if no frame is evictable.
func (r *LRUKReplacer) Evict() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		victim          common.FrameID
		victimNode      *lruKNode
		found           bool
		sawInf          bool
		largestBackDist uint64
		largestLRUDist  uint64
	)

	for frameID, node := range r.nodeStore {
		if !node.evictable {
			continue
		}
		if len(node.history) == 0 {
			// Never meaningfully accessed: unconditionally the best victim.
			victim, victimNode, found = frameID, node, true
			break
		}
		if len(node.history) < r.k {
			// Infinite backward k-distance beats any finite one. Tie-break
			// on the oldest latest-access.
			dist := r.currTimestamp - node.history[len(node.history)-1]
			if !sawInf || dist > largestLRUDist {
				largestLRUDist = dist
				victim, victimNode, found = frameID, node, true
			}
			sawInf = true
		} else if !sawInf {
			dist := r.currTimestamp - node.history[0]
			if !found || dist > largestBackDist {
				largestBackDist = dist
				victim, victimNode, found = frameID, node, true
			}
		}
	}

	if found {
		victimNode.history = nil
		delete(r.nodeStore, victim)
		r.currSize--
	}
	return victim, found
}

// RecordAccess notes an access to the given frame at the current timestamp.
// AccessScan keeps the frame tracked but does not append to its history.
func (r *LRUKReplacer) RecordAccess(frameID common.FrameID, accessType AccessType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validFrame(frameID)

	node, ok := r.nodeStore[frameID]
	if !ok {
		node = &lruKNode{}
		r.nodeStore[frameID] = node
	}
	if accessType == AccessScan {
		return
	}
	if len(node.history) == r.k {
		copy(node.history, node.history[1:])
		node.history = node.history[:r.k-1]
	}
	node.history = append(node.history, r.currTimestamp)
	r.currTimestamp++
}

// SetEvictable toggles whether a frame may be chosen as a victim. The
// replacer's size changes only when the flag actually flips.
func (r *LRUKReplacer) SetEvictable(frameID common.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validFrame(frameID)

	node, ok := r.nodeStore[frameID]
	if !ok {
		node = &lruKNode{}
		r.nodeStore[frameID] = node
	}
	if evictable && !node.evictable {
		node.evictable = true
		r.currSize++
	}
	if !evictable && node.evictable {
		node.evictable = false
		r.currSize--
	}
}

// Remove clears a frame's history and stops tracking it, regardless of its
// position in the eviction order. Removing an untracked frame is a no-op;
// removing a tracked non-evictable frame is an invariant violation.
func (r *LRUKReplacer) Remove(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodeStore[frameID]
	if !ok {
		return
	}
	common.Assert(node.evictable, "Remove called on a non-evictable frame %d", frameID)
	node.history = nil
	delete(r.nodeStore, frameID)
	r.currSize--
}

// Size returns the number of evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}

func (r *LRUKReplacer) validFrame(frameID common.FrameID) {
	common.Assert(int(frameID) >= 0 && int(frameID) < r.numFrames, "invalid frame id %d", frameID)
}
