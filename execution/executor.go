package execution

import (
	"github.com/marbledb/marble/planner"
	"github.com/marbledb/marble/storage"
)

// Executor is the interface all physical execution nodes implement. The
// pipeline is pull-based: Init resets state (and eagerly materializes any
// pipeline breaker), then each Next produces at most one row, returning
// false at end-of-stream. Errors never escape as panics; they surface
// through Error after Next returns false.
type Executor interface {
	PlanNode() planner.PlanNode

	// Init initializes the executor with a specific execution context,
	// binding it to a transaction.
	Init(ctx *ExecutorContext) error

	// Next advances to the next tuple, returning false at end-of-stream.
	Next() bool

	// Current returns the tuple most recently read by Next().
	Current() storage.Tuple

	// Error returns the last error encountered by the executor, if any.
	Error() error

	// Close cleans up any resources held by the executor.
	Close() error
}
