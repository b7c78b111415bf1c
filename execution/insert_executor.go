package execution

import (
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/indexing"
	"github.com/marbledb/marble/planner"
	"github.com/marbledb/marble/storage"
)

// InsertExecutor drains its child, inserting every row into the table heap
// and each of the table's indexes, then emits a single row holding the
// inserted count.
type InsertExecutor struct {
	plan      *planner.InsertNode
	child     Executor
	tableHeap *TableHeap
	indexes   []indexing.Index

	// Runtime state
	rowBuffer storage.RawTuple
	keyBuffer storage.RawTuple
	executed  bool
	cnt       int
	ctx       *ExecutorContext
	err       error
}

func NewInsertExecutor(plan *planner.InsertNode, child Executor, tableHeap *TableHeap, indexes []indexing.Index) *InsertExecutor {
	return &InsertExecutor{
		plan:      plan,
		child:     child,
		tableHeap: tableHeap,
		indexes:   indexes,
	}
}

func (e *InsertExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *InsertExecutor) Init(ctx *ExecutorContext) error {
	e.rowBuffer = make([]byte, e.tableHeap.StorageSchema().BytesPerTuple())
	e.keyBuffer = make([]byte, maxIndexKeySize(e.indexes))
	e.executed = false
	e.cnt = 0
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

func (e *InsertExecutor) Next() bool {
	if !e.executed {
		for e.child.Next() {
			tuple := e.child.Current()
			tuple.Materialize(e.rowBuffer, e.tableHeap.StorageSchema())

			rid, err := e.tableHeap.InsertTuple(e.ctx.GetTransaction(), e.rowBuffer)
			if err != nil {
				e.err = err
				return false
			}

			for _, index := range e.indexes {
				if err := insertIntoIndex(index, tuple, rid, e.keyBuffer, e.ctx); err != nil {
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

func (e *InsertExecutor) Current() storage.Tuple {
	return storage.FromValues(common.NewIntValue(int64(e.cnt)))
}

func (e *InsertExecutor) Error() error {
	return e.err
}

func (e *InsertExecutor) Close() error {
	return e.child.Close()
}

// maxIndexKeySize sizes a shared scratch buffer for index key construction.
func maxIndexKeySize(indexes []indexing.Index) int {
	size := 0
	for _, index := range indexes {
		if s := index.Metadata().KeySize(); s > size {
			size = s
		}
	}
	return size
}

// insertIntoIndex projects the indexed columns of t into keyBuffer and adds
// the entry.
func insertIntoIndex(index indexing.Index, t storage.Tuple, rid common.RecordID,
	keyBuffer storage.RawTuple, ctx *ExecutorContext) error {
	md := index.Metadata()
	for i, col := range md.ProjectionList {
		md.KeySchema.SetValue(keyBuffer, i, t.GetValue(col))
	}
	return index.InsertEntry(md.AsKey(keyBuffer), rid, ctx.GetTransaction())
}

// deleteFromIndex projects the indexed columns of t into keyBuffer and
// removes the entry.
func deleteFromIndex(index indexing.Index, t storage.Tuple, rid common.RecordID,
	keyBuffer storage.RawTuple, ctx *ExecutorContext) error {
	md := index.Metadata()
	for i, col := range md.ProjectionList {
		md.KeySchema.SetValue(keyBuffer, i, t.GetValue(col))
	}
	return index.DeleteEntry(md.AsKey(keyBuffer), rid, ctx.GetTransaction())
}
