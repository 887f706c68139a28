package repository

import "context"

// UnitOfWork is an atomic scope. The root unit of work reads outside any
// transaction; Begin returns a transaction-bound one whose repositories share
// the transaction until Commit or Rollback. Rollback after Commit is a no-op.
type UnitOfWork interface {
	Begin(ctx context.Context) (UnitOfWork, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	Accounts() AccountRepository
	Transactions() TransactionRepository
	Idempotency() IdempotencyRepository
}
