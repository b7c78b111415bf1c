package storage

import (
	"sync"

	"github.com/marbledb/marble/common"
)

// DiskRequest describes one page I/O. Data is borrowed for the duration of
// the request; the caller must not touch it until Done fires.
type DiskRequest struct {
	// IsWrite selects the direction: true writes Data to the page, false
	// reads the page into Data.
	IsWrite bool
	Data    []byte
	PageID  common.PageID
	// Done receives the outcome exactly once, after the I/O observably
	// completes. It must have capacity for one value.
	Done chan error
}

// DiskScheduler serializes page I/O on a background worker. Ordering between
// concurrently scheduled requests is unspecified; callers that need ordering
// must await completion before issuing the next request.
type DiskScheduler struct {
	dm       DiskManager
	requests chan DiskRequest

	closeOnce sync.Once
	done      chan struct{}
}

const requestQueueDepth = 32

// NewDiskScheduler starts a scheduler draining requests against dm.
func NewDiskScheduler(dm DiskManager) *DiskScheduler {
	s := &DiskScheduler{
		dm:       dm,
		requests: make(chan DiskRequest, requestQueueDepth),
		done:     make(chan struct{}),
	}
	go s.worker()
	return s
}

// Schedule enqueues a request. The completion signal fires on req.Done.
func (s *DiskScheduler) Schedule(req DiskRequest) {
	common.Assert(req.Done != nil, "disk request without completion channel")
	s.requests <- req
}

// CreateDone returns a completion channel suitable for a DiskRequest.
func (s *DiskScheduler) CreateDone() chan error {
	return make(chan error, 1)
}

// Shutdown stops the worker after draining already-scheduled requests.
func (s *DiskScheduler) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.requests)
		<-s.done
	})
}

func (s *DiskScheduler) worker() {
	defer close(s.done)
	for req := range s.requests {
		var err error
		if req.IsWrite {
			err = s.dm.WritePage(req.PageID, req.Data)
		} else {
			err = s.dm.ReadPage(req.PageID, req.Data)
		}
		req.Done <- err
	}
}
