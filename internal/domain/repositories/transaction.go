package repositories

import "context"

// TxFn is a unit of work run inside a transaction
type TxFn func(ctx context.Context) error

// TransactionManager runs units of work atomically.
// Repositories called with the ctx passed to fn join the transaction.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
