package execution

import (
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/planner"
	"github.com/marbledb/marble/storage"
)

// NestedLoopJoinExecutor joins its children on an arbitrary predicate,
// supporting inner and left outer joins. The inner (right) child is a
// pipeline breaker: Init fully buffers it, then each outer row scans the
// buffered inner side. For a left join, an outer row with no match emits
// one row with the right columns null-filled.
type NestedLoopJoinExecutor struct {
	plan        *planner.NestedLoopJoinNode
	left, right Executor

	leftSchema, rightSchema, joinedSchema *storage.RawTupleDesc

	// Runtime state
	innerTuples  []storage.Tuple
	innerPos     int
	outerTuple   storage.Tuple
	outerValid   bool
	matched      bool
	nullRight    storage.Tuple
	joinedBuffer storage.RawTuple
	ctx          *ExecutorContext
	err          error
}

func NewNestedLoopJoinExecutor(plan *planner.NestedLoopJoinNode, left, right Executor) *NestedLoopJoinExecutor {
	return &NestedLoopJoinExecutor{
		plan:         plan,
		left:         left,
		right:        right,
		leftSchema:   storage.NewRawTupleDesc(plan.Left.OutputSchema()),
		rightSchema:  storage.NewRawTupleDesc(plan.Right.OutputSchema()),
		joinedSchema: storage.NewRawTupleDesc(plan.OutputSchema()),
	}
}

func (e *NestedLoopJoinExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *NestedLoopJoinExecutor) Init(ctx *ExecutorContext) error {
	e.ctx = ctx
	e.err = nil
	e.innerTuples = nil
	e.innerPos = 0
	e.outerValid = false
	e.matched = false
	e.joinedBuffer = make([]byte, e.joinedSchema.BytesPerTuple())

	// Null-filled right side for non-matching outer rows of a left join.
	nullValues := make([]common.Value, len(e.plan.Right.OutputSchema()))
	for i, t := range e.plan.Right.OutputSchema() {
		nullValues[i] = common.NewNullOfType(t)
	}
	e.nullRight = storage.FromValues(nullValues...)

	if err := e.left.Init(ctx); err != nil {
		return err
	}
	if err := e.right.Init(ctx); err != nil {
		return err
	}

	// Materialize the inner side. Each tuple is deep-copied because the
	// child reuses its scan buffer.
	for e.right.Next() {
		t := e.right.Current()
		copied := t.DeepCopy(e.rightSchema)
		e.innerTuples = append(e.innerTuples, copied)
	}
	return e.right.Error()
}

func (e *NestedLoopJoinExecutor) Next() bool {
	if e.err != nil {
		return false
	}

	for {
		if !e.outerValid {
			if !e.left.Next() {
				if err := e.left.Error(); err != nil {
					e.err = err
				}
				return false
			}
			// The outer tuple stays backed by the left child's buffer; it
			// is stable until the next left.Next() call.
			e.outerTuple = e.left.Current()
			e.outerValid = true
			e.matched = false
			e.innerPos = 0
		}

		for e.innerPos < len(e.innerTuples) {
			inner := e.innerTuples[e.innerPos]
			e.innerPos++
			joined := storage.JoinTuples(e.joinedBuffer, e.joinedSchema, e.outerTuple, inner)
			if planner.ExprIsTrue(e.plan.Predicate.Eval(joined)) {
				e.matched = true
				return true
			}
		}

		// Inner side exhausted for this outer row.
		e.outerValid = false
		if e.plan.JoinType == planner.LeftOuterJoin && !e.matched {
			storage.JoinTuples(e.joinedBuffer, e.joinedSchema, e.outerTuple, e.nullRight)
			return true
		}
	}
}

func (e *NestedLoopJoinExecutor) Current() storage.Tuple {
	return storage.FromRawTuple(e.joinedBuffer, e.joinedSchema, common.RecordID{PageID: common.InvalidPageID})
}

func (e *NestedLoopJoinExecutor) Error() error {
	return e.err
}

func (e *NestedLoopJoinExecutor) Close() error {
	if err := e.left.Close(); err != nil {
		return err
	}
	return e.right.Close()
}
