package execution

import (
	"errors"

	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/indexing"
	"github.com/marbledb/marble/planner"
	"github.com/marbledb/marble/storage"
)

// IndexScanExecutor probes an index once with the plan's literal key during
// Init, caches the matching RecordIDs, and emits the live tuples they point
// at. Rows tombstoned since the index was probed are skipped.
type IndexScanExecutor struct {
	plan      *planner.IndexScanNode
	tableHeap *TableHeap
	index     indexing.Index

	// Runtime state
	matches   []common.RecordID
	pos       int
	rowBuffer []byte
	currRID   common.RecordID
	ctx       *ExecutorContext
	err       error
}

func NewIndexScanExecutor(plan *planner.IndexScanNode, tableHeap *TableHeap, index indexing.Index) *IndexScanExecutor {
	return &IndexScanExecutor{
		plan:      plan,
		tableHeap: tableHeap,
		index:     index,
	}
}

func (e *IndexScanExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *IndexScanExecutor) Init(ctx *ExecutorContext) error {
	e.ctx = ctx
	e.err = nil
	e.pos = -1
	e.matches = e.matches[:0]
	e.rowBuffer = make([]byte, e.tableHeap.StorageSchema().BytesPerTuple())

	// Single point probe, cached for the lifetime of the scan.
	md := e.index.Metadata()
	keyBuffer := make([]byte, md.KeySize())
	md.KeySchema.SetValue(keyBuffer, 0, e.plan.ProbeKey)
	matches, err := e.index.ScanKey(md.AsKey(keyBuffer), e.matches, ctx.GetTransaction())
	if err != nil {
		return err
	}
	e.matches = matches
	return nil
}

func (e *IndexScanExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	for e.pos+1 < len(e.matches) {
		e.pos++
		rid := e.matches[e.pos]
		err := e.tableHeap.ReadTuple(e.ctx.GetTransaction(), rid, e.rowBuffer)
		if errors.Is(err, ErrTupleDeleted) {
			continue
		}
		if err != nil {
			e.err = err
			return false
		}
		e.currRID = rid
		return true
	}
	return false
}

func (e *IndexScanExecutor) Current() storage.Tuple {
	return storage.FromRawTuple(e.rowBuffer, e.tableHeap.StorageSchema(), e.currRID)
}

func (e *IndexScanExecutor) Error() error {
	return e.err
}

func (e *IndexScanExecutor) Close() error {
	return nil
}
