package execution

import (
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/planner"
	"github.com/marbledb/marble/storage"
)

// SeqScanExecutor scans a table's heap front to back, skipping tombstoned
// tuples. An optional filter predicate is evaluated inline: rows for which
// it is null or false are skipped.
type SeqScanExecutor struct {
	plan      *planner.SeqScanNode
	tableHeap *TableHeap

	// Runtime state
	iterator  TableHeapIterator
	rowBuffer []byte
	ctx       *ExecutorContext
}

// NewSeqScanExecutor creates a new SeqScanExecutor.
func NewSeqScanExecutor(plan *planner.SeqScanNode, tableHeap *TableHeap) *SeqScanExecutor {
	return &SeqScanExecutor{
		plan:      plan,
		tableHeap: tableHeap,
	}
}

func (e *SeqScanExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *SeqScanExecutor) Init(ctx *ExecutorContext) error {
	e.ctx = ctx
	e.rowBuffer = make([]byte, e.tableHeap.StorageSchema().BytesPerTuple())
	e.iterator = e.tableHeap.Iterator(ctx.GetTransaction(), e.rowBuffer)
	return nil
}

func (e *SeqScanExecutor) Next() bool {
	common.Assert(!e.iterator.IsNil(), "SeqScanExecutor.Init() must be called before Next()")
	for e.iterator.Next() {
		if e.plan.FilterPredicate == nil {
			return true
		}
		if planner.ExprIsTrue(e.plan.FilterPredicate.Eval(e.Current())) {
			return true
		}
	}
	return false
}

func (e *SeqScanExecutor) Current() storage.Tuple {
	return storage.FromRawTuple(e.iterator.CurrentTuple(), e.tableHeap.StorageSchema(), e.iterator.CurrentRID())
}

func (e *SeqScanExecutor) Error() error {
	return e.iterator.Error()
}

func (e *SeqScanExecutor) Close() error {
	if !e.iterator.IsNil() {
		return e.iterator.Close()
	}
	return nil
}
