package execution

import (
	"github.com/marbledb/marble/planner"
	"github.com/marbledb/marble/storage"
)

// FilterExecutor drops child rows for which the predicate is not true
// (null and false both fail the filter).
type FilterExecutor struct {
	plan  *planner.FilterNode
	child Executor
}

func NewFilterExecutor(plan *planner.FilterNode, child Executor) *FilterExecutor {
	return &FilterExecutor{plan: plan, child: child}
}

func (e *FilterExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *FilterExecutor) Init(ctx *ExecutorContext) error {
	return e.child.Init(ctx)
}

func (e *FilterExecutor) Next() bool {
	for e.child.Next() {
		tuple := e.child.Current()
		if planner.ExprIsTrue(e.plan.Predicate.Eval(tuple)) {
			return true
		}
	}
	return false
}

func (e *FilterExecutor) Current() storage.Tuple {
	return e.child.Current()
}

func (e *FilterExecutor) Error() error {
	return e.child.Error()
}

func (e *FilterExecutor) Close() error {
	return e.child.Close()
}
