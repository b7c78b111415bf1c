package execution

import (
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/indexing"
	"github.com/marbledb/marble/planner"
	"github.com/marbledb/marble/storage"
)

// DeleteExecutor drains its child, tombstoning each row in the heap and
// removing its entries from every index, then emits a single row holding
// the deleted count.
type DeleteExecutor struct {
	plan      *planner.DeleteNode
	child     Executor
	tableHeap *TableHeap
	indexes   []indexing.Index

	// Runtime state
	keyBuffer storage.RawTuple
	executed  bool
	cnt       int
	ctx       *ExecutorContext
	err       error
}

func NewDeleteExecutor(plan *planner.DeleteNode, child Executor, tableHeap *TableHeap, indexes []indexing.Index) *DeleteExecutor {
	return &DeleteExecutor{
		plan:      plan,
		child:     child,
		tableHeap: tableHeap,
		indexes:   indexes,
	}
}

func (e *DeleteExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *DeleteExecutor) Init(ctx *ExecutorContext) error {
	e.keyBuffer = make([]byte, maxIndexKeySize(e.indexes))
	e.executed = false
	e.cnt = 0
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

func (e *DeleteExecutor) Next() bool {
	if !e.executed {
		for e.child.Next() {
			tuple := e.child.Current()
			rid := tuple.RID()
			common.Assert(!rid.IsNil(), "DeleteExecutor child must produce base-table rows")

			if err := e.tableHeap.DeleteTuple(e.ctx.GetTransaction(), rid); err != nil {
				e.err = err
				return false
			}
			for _, index := range e.indexes {
				if err := deleteFromIndex(index, tuple, rid, e.keyBuffer, e.ctx); err != nil {
					e.err = err
					return false
				}
			}
			e.cnt++
		}
		if err := e.child.Error(); err != nil {
			e.err = err
			return false
		}
		e.executed = true
		return true
	}
	return false
}

func (e *DeleteExecutor) Current() storage.Tuple {
	return storage.FromValues(common.NewIntValue(int64(e.cnt)))
}

func (e *DeleteExecutor) Error() error {
	return e.err
}

func (e *DeleteExecutor) Close() error {
	return e.child.Close()
}
