package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Xausdorf/vaultpay/internal/domain/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UnitOfWork struct {
	pool        *pgxpool.Pool
	tx          pgx.Tx
	lockTimeout time.Duration
}

type Option func(*UnitOfWork)

// WithLockTimeout bounds how long a transaction waits for a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(u *UnitOfWork) {
		u.lockTimeout = d
	}
}

func NewUnitOfWork(pool *pgxpool.Pool, opts ...Option) *UnitOfWork {
	u := &UnitOfWork{pool: pool}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Begin opens a READ COMMITTED transaction, so statements issued after a lock
// wait observe rows committed by the previous lock holder.
func (u *UnitOfWork) Begin(ctx context.Context) (repository.UnitOfWork, error) {
	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, mapError(err)
	}

	if u.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", u.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return nil, mapError(err)
		}
	}

	return &UnitOfWork{pool: u.pool, tx: tx, lockTimeout: u.lockTimeout}, nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	return mapError(u.tx.Commit(ctx))
}

func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return mapError(err)
}

func (u *UnitOfWork) Accounts() repository.AccountRepository {
	return &AccountRepo{q: u.querier(), inTx: u.tx != nil}
}

func (u *UnitOfWork) Transactions() repository.TransactionRepository {
	return &TransactionRepo{q: u.querier()}
}

func (u *UnitOfWork) Idempotency() repository.IdempotencyRepository {
	return &IdempotencyRepo{q: u.querier()}
}

func (u *UnitOfWork) querier() querier {
	if u.tx != nil {
		return u.tx
	}
	return u.pool
}
