package execution

import (
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/indexing"
	"github.com/marbledb/marble/planner"
	"github.com/marbledb/marble/storage"
)

// UpdateExecutor rewrites each child row as a delete followed by an insert
// (no in-place update), re-maintaining every index on both sides, then
// emits a single row holding the updated count. The new row's columns are
// computed by the plan's target expressions over the old row.
type UpdateExecutor struct {
	plan      *planner.UpdateNode
	child     Executor
	tableHeap *TableHeap
	indexes   []indexing.Index

	// Runtime state
	rowBuffer storage.RawTuple
	keyBuffer storage.RawTuple
	values    []common.Value
	executed  bool
	cnt       int
	ctx       *ExecutorContext
	err       error
}

func NewUpdateExecutor(plan *planner.UpdateNode, child Executor, tableHeap *TableHeap, indexes []indexing.Index) *UpdateExecutor {
	return &UpdateExecutor{
		plan:      plan,
		child:     child,
		tableHeap: tableHeap,
		indexes:   indexes,
	}
}

func (e *UpdateExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *UpdateExecutor) Init(ctx *ExecutorContext) error {
	common.Assert(len(e.plan.TargetExpressions) == e.tableHeap.StorageSchema().NumColumns(),
		"update must compute every column")
	e.rowBuffer = make([]byte, e.tableHeap.StorageSchema().BytesPerTuple())
	e.keyBuffer = make([]byte, maxIndexKeySize(e.indexes))
	e.values = make([]common.Value, len(e.plan.TargetExpressions))
	e.executed = false
	e.cnt = 0
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

func (e *UpdateExecutor) updateRow(oldTuple storage.Tuple) error {
	oldRID := oldTuple.RID()
	common.Assert(!oldRID.IsNil(), "UpdateExecutor child must produce base-table rows")

	// Compute the replacement row before touching storage; the expressions
	// read the old tuple.
	for i, expr := range e.plan.TargetExpressions {
		e.values[i] = expr.Eval(oldTuple).Copy()
	}

	if err := e.tableHeap.DeleteTuple(e.ctx.GetTransaction(), oldRID); err != nil {
		return err
	}
	for _, index := range e.indexes {
		if err := deleteFromIndex(index, oldTuple, oldRID, e.keyBuffer, e.ctx); err != nil {
			return err
		}
	}

	newTuple := storage.FromValues(e.values...)
	newTuple.Materialize(e.rowBuffer, e.tableHeap.StorageSchema())
	newRID, err := e.tableHeap.InsertTuple(e.ctx.GetTransaction(), e.rowBuffer)
	if err != nil {
		return err
	}
	for _, index := range e.indexes {
		if err := insertIntoIndex(index, newTuple, newRID, e.keyBuffer, e.ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *UpdateExecutor) Next() bool {
	if !e.executed {
		// Drain the child completely before touching storage: applying the
		// delete-then-insert while the scan is open would let the scan
		// revisit freshly inserted rows.
		var oldTuples []storage.Tuple
		for e.child.Next() {
			tuple := e.child.Current()
			oldTuples = append(oldTuples, tuple.DeepCopy(e.tableHeap.StorageSchema()))
		}
		if err := e.child.Error(); err != nil {
			e.err = err
			return false
		}
		for _, oldTuple := range oldTuples {
			if err := e.updateRow(oldTuple); err != nil {
				e.err = err
				return false
			}
			e.cnt++
		}
		e.executed = true
		return true
	}
	return false
}

func (e *UpdateExecutor) Current() storage.Tuple {
	return storage.FromValues(common.NewIntValue(int64(e.cnt)))
}

func (e *UpdateExecutor) Error() error {
	return e.err
}

func (e *UpdateExecutor) Close() error {
	return e.child.Close()
}
