package execution

import (
	"github.com/marbledb/marble/transaction"
)

// ExecutorContext holds the state required for query execution. It is
// passed to every executor at Init.
type ExecutorContext struct {
	txn *transaction.TransactionContext
}

func NewExecutorContext(txn *transaction.TransactionContext) *ExecutorContext {
	return &ExecutorContext{txn: txn}
}

func (ctx *ExecutorContext) GetTransaction() *transaction.TransactionContext {
	return ctx.txn
}
