package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/Xausdorf/vaultpay/internal/domain/repository"
)

var errTxClosed = errors.New("transaction already closed")

// op is a staged write. check runs for every op before any apply, both under
// the store's write lock, so a commit applies all writes or none.
type op struct {
	check func(s *Store) error
	apply func(s *Store)
}

type txState struct {
	mu     sync.Mutex
	closed bool
	rows   map[uuid.UUID]struct{}
	keys   map[idemKey]struct{}
	ops    []op
}

// UnitOfWork reads committed state. Inside a transaction, writes are staged
// and become visible to others at Commit.
type UnitOfWork struct {
	store *Store
	tx    *txState
}

func NewUnitOfWork(store *Store) *UnitOfWork {
	return &UnitOfWork{store: store}
}

func (u *UnitOfWork) Begin(_ context.Context) (repository.UnitOfWork, error) {
	return &UnitOfWork{
		store: u.store,
		tx: &txState{
			rows: make(map[uuid.UUID]struct{}),
			keys: make(map[idemKey]struct{}),
		},
	}, nil
}

func (u *UnitOfWork) Commit(_ context.Context) error {
	if u.tx == nil {
		return nil
	}

	u.tx.mu.Lock()
	defer u.tx.mu.Unlock()
	if u.tx.closed {
		return errTxClosed
	}

	s := u.store
	s.mu.Lock()
	for _, o := range u.tx.ops {
		if err := o.check(s); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	for _, o := range u.tx.ops {
		o.apply(s)
	}
	s.mu.Unlock()

	u.finish()
	return nil
}

func (u *UnitOfWork) Rollback(_ context.Context) error {
	if u.tx == nil {
		return nil
	}

	u.tx.mu.Lock()
	defer u.tx.mu.Unlock()
	if !u.tx.closed {
		u.finish()
	}
	return nil
}

// finish releases every lock held by the transaction. Callers hold tx.mu.
func (u *UnitOfWork) finish() {
	u.tx.closed = true
	u.tx.ops = nil
	for id := range u.tx.rows {
		u.store.rows.release(id)
	}
	for k := range u.tx.keys {
		u.store.keys.release(k)
	}
	u.tx.rows = nil
	u.tx.keys = nil
}

func (u *UnitOfWork) Accounts() repository.AccountRepository {
	return &AccountRepo{uow: u}
}

func (u *UnitOfWork) Transactions() repository.TransactionRepository {
	return &TransactionRepo{uow: u}
}

func (u *UnitOfWork) Idempotency() repository.IdempotencyRepository {
	return &IdempotencyRepo{uow: u}
}

// lockRow takes the row lock once per transaction.
func (u *UnitOfWork) lockRow(ctx context.Context, id uuid.UUID) error {
	u.tx.mu.Lock()
	if u.tx.closed {
		u.tx.mu.Unlock()
		return errTxClosed
	}
	_, held := u.tx.rows[id]
	u.tx.mu.Unlock()
	if held {
		return nil
	}

	if err := u.store.acquireRow(ctx, id); err != nil {
		return err
	}

	u.tx.mu.Lock()
	defer u.tx.mu.Unlock()
	if u.tx.closed {
		u.store.rows.release(id)
		return errTxClosed
	}
	u.tx.rows[id] = struct{}{}
	return nil
}

func (u *UnitOfWork) lockKey(ctx context.Context, k idemKey) error {
	u.tx.mu.Lock()
	if u.tx.closed {
		u.tx.mu.Unlock()
		return errTxClosed
	}
	_, held := u.tx.keys[k]
	u.tx.mu.Unlock()
	if held {
		return nil
	}

	if err := u.store.acquireKey(ctx, k); err != nil {
		return err
	}

	u.tx.mu.Lock()
	defer u.tx.mu.Unlock()
	if u.tx.closed {
		u.store.keys.release(k)
		return errTxClosed
	}
	u.tx.keys[k] = struct{}{}
	return nil
}

// withRowLock runs write while holding the row lock of id. Inside a
// transaction the lock is kept until it ends; otherwise only for the write.
func (u *UnitOfWork) withRowLock(ctx context.Context, id uuid.UUID, write func() error) error {
	if u.tx != nil {
		if err := u.lockRow(ctx, id); err != nil {
			return err
		}
		return write()
	}

	if err := u.store.acquireRow(ctx, id); err != nil {
		return err
	}
	defer u.store.rows.release(id)
	return write()
}

// stage records a write inside a transaction, or applies it at once for the
// root unit of work.
func (u *UnitOfWork) stage(o op) error {
	if u.tx == nil {
		s := u.store
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := o.check(s); err != nil {
			return err
		}
		o.apply(s)
		return nil
	}

	u.tx.mu.Lock()
	defer u.tx.mu.Unlock()
	if u.tx.closed {
		return errTxClosed
	}
	u.tx.ops = append(u.tx.ops, o)
	return nil
}
