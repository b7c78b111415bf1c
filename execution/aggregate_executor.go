package execution

import (
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/planner"
	"github.com/marbledb/marble/storage"
)

// AggregateExecutor implements hash-based aggregation. It is a pipeline
// breaker: Init drains the child into a hash table from group-by
// keys to running aggregate state, then enumerates the groups.
//
// Without a group-by clause the aggregation is global and emits exactly one
// row even over empty input: COUNT is 0 and SUM/MIN/MAX are NULL.
type AggregateExecutor struct {
	plan  *planner.AggregateNode
	child Executor

	// Runtime state
	tuples       []storage.Tuple
	currentIndex int
	ctx          *ExecutorContext
	err          error
}

func NewAggregateExecutor(plan *planner.AggregateNode, child Executor) *AggregateExecutor {
	return &AggregateExecutor{
		child:        child,
		plan:         plan,
		currentIndex: -1,
	}
}

func (e *AggregateExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *AggregateExecutor) Init(ctx *ExecutorContext) error {
	e.tuples = nil
	e.currentIndex = -1
	e.ctx = ctx
	e.err = nil
	if err := e.child.Init(ctx); err != nil {
		return err
	}
	if !e.buildHashTable() {
		return e.err
	}
	return nil
}

func (e *AggregateExecutor) updateAggregateState(state []common.Value, tuple storage.Tuple) {
	for i, agg := range e.plan.AggClauses {
		val := agg.Expr.Eval(tuple)

		// Standard SQL aggregate rules: NULL inputs are ignored.
		if val.IsNull() {
			continue
		}

		switch agg.Type {
		case planner.AggCount:
			if state[i].IsNil() {
				state[i] = common.NewIntValue(1)
			} else {
				state[i] = common.NewIntValue(state[i].IntValue() + 1)
			}
		case planner.AggSum:
			if state[i].IsNil() {
				state[i] = val.Copy()
			} else {
				state[i] = common.NewIntValue(state[i].IntValue() + val.IntValue())
			}
		case planner.AggMin:
			if state[i].IsNil() || val.Compare(state[i]) < 0 {
				state[i] = val.Copy()
			}
		case planner.AggMax:
			if state[i].IsNil() || val.Compare(state[i]) > 0 {
				state[i] = val.Copy()
			}
		}
	}
}

// finalizeState converts unset running state into the output value: COUNT
// becomes 0, everything else SQL NULL of the clause's type.
func (e *AggregateExecutor) finalizeState(values []common.Value) {
	for i, v := range values {
		if !v.IsNil() {
			continue
		}
		if e.plan.AggClauses[i].Type == planner.AggCount {
			values[i] = common.NewIntValue(0)
		} else {
			values[i] = common.NewNullOfType(e.plan.AggClauses[i].Expr.OutputType())
		}
	}
}

func (e *AggregateExecutor) buildHashTable() bool {
	keyFields := make([]common.Type, len(e.plan.GroupByClause))
	for i, expr := range e.plan.GroupByClause {
		keyFields[i] = expr.OutputType()
	}

	keySchema := storage.NewRawTupleDesc(keyFields)
	hashTable := NewExecutionHashTable[[]common.Value](keySchema)

	keyTupleBuffer := make([]common.Value, len(e.plan.GroupByClause))
	for e.child.Next() {
		tuple := e.child.Current()
		for i, expr := range e.plan.GroupByClause {
			keyTupleBuffer[i] = expr.Eval(tuple).Copy()
		}
		// With an empty group-by this is the empty key: a single global
		// group producing exactly one output row.
		keyTuple := storage.FromValues(keyTupleBuffer...)
		state, found := hashTable.Get(keyTuple)
		if !found {
			state = make([]common.Value, len(e.plan.AggClauses))
			hashTable.Insert(keyTuple, state)
		}

		e.updateAggregateState(state, tuple)
	}

	if err := e.child.Error(); err != nil {
		e.err = err
		return false
	}

	hashTable.Iterate(func(t storage.Tuple, values []common.Value) {
		e.finalizeState(values)
		e.tuples = append(e.tuples, t.Extend(values))
	})

	// Global aggregation over empty input still produces one row of
	// initial values.
	if hashTable.Len() == 0 && len(e.plan.GroupByClause) == 0 {
		values := make([]common.Value, len(e.plan.AggClauses))
		e.finalizeState(values)
		empty := storage.FromValues()
		e.tuples = append(e.tuples, empty.Extend(values))
	}
	return true
}

func (e *AggregateExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	e.currentIndex++
	return e.currentIndex < len(e.tuples)
}

func (e *AggregateExecutor) Current() storage.Tuple {
	return e.tuples[e.currentIndex]
}

func (e *AggregateExecutor) Error() error {
	return e.err
}

func (e *AggregateExecutor) Close() error {
	return e.child.Close()
}
