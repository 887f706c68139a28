package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
	"github.com/Xausdorf/vaultpay/internal/domain/repository"
)

type AccountRepo struct {
	uow *UnitOfWork
}

func (r *AccountRepo) Get(_ context.Context, id uuid.UUID) (*entity.Account, error) {
	s := r.uow.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return account.Clone(), nil
}

func (r *AccountRepo) FindByEmail(_ context.Context, email string) (*entity.Account, error) {
	email = entity.NormalizeEmail(email)

	s := r.uow.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.Email() == email {
			return account.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *AccountRepo) LockForUpdate(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*entity.Account, error) {
	if r.uow.tx == nil {
		return nil, repository.ErrNoTransaction
	}

	locked := make(map[uuid.UUID]*entity.Account, len(ids))
	for _, id := range ids {
		if _, err := r.Get(ctx, id); err != nil {
			return nil, fmt.Errorf("lock account %s: %w", id, err)
		}
		if err := r.uow.lockRow(ctx, id); err != nil {
			return nil, fmt.Errorf("lock account %s: %w", id, err)
		}
		// Re-read under the lock: the previous holder may have committed a new balance.
		account, err := r.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lock account %s: %w", id, err)
		}
		locked[id] = account
	}
	return locked, nil
}

func (r *AccountRepo) Save(ctx context.Context, account *entity.Account) error {
	id, balance := account.ID(), account.Balance()
	return r.uow.withRowLock(ctx, id, func() error {
		return r.uow.stage(op{
			check: func(s *Store) error {
				if _, ok := s.accounts[id]; !ok {
					return repository.ErrNotFound
				}
				if balance.IsNegative() {
					return fmt.Errorf("account %s: balance would become negative", id)
				}
				return nil
			},
			apply: func(s *Store) {
				current := s.accounts[id]
				s.accounts[id] = entity.ReconstructAccount(
					id, current.Email(), balance, current.SealedIdentifier(), current.CreatedAt())
			},
		})
	})
}

func (r *AccountRepo) Create(ctx context.Context, account *entity.Account) error {
	created := account.Clone()
	return r.uow.withRowLock(ctx, created.ID(), func() error {
		return r.uow.stage(op{
			check: func(s *Store) error {
				if _, ok := s.accounts[created.ID()]; ok {
					return fmt.Errorf("%w: account id %s", repository.ErrConflict, created.ID())
				}
				for _, existing := range s.accounts {
					if existing.Email() == created.Email() {
						return fmt.Errorf("%w: email %s", repository.ErrConflict, created.Email())
					}
				}
				if created.Balance().IsNegative() {
					return fmt.Errorf("account %s: negative opening balance", created.ID())
				}
				return nil
			},
			apply: func(s *Store) {
				s.accounts[created.ID()] = created
			},
		})
	})
}

// Delete waits for the row lock, so an account cannot disappear under a
// transaction that has it locked.
func (r *AccountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.uow.withRowLock(ctx, id, func() error {
		return r.uow.stage(op{
			check: func(s *Store) error {
				if _, ok := s.accounts[id]; !ok {
					return repository.ErrNotFound
				}
				for _, t := range s.transactions {
					if t.Involves(id) {
						return fmt.Errorf("%w: account %s", repository.ErrReferenced, id)
					}
				}
				return nil
			},
			apply: func(s *Store) {
				delete(s.accounts, id)
				for k := range s.idempotency {
					if k.accountID == id {
						delete(s.idempotency, k)
					}
				}
			},
		})
	})
}

type TransactionRepo struct {
	uow *UnitOfWork
}

func (r *TransactionRepo) Append(_ context.Context, t *entity.Transaction) error {
	return r.uow.stage(op{
		check: func(s *Store) error {
			if t.FromAccount() == t.ToAccount() {
				return fmt.Errorf("transaction %s: sender equals receiver", t.ID())
			}
			if !t.Amount().IsPositive() {
				return fmt.Errorf("transaction %s: non-positive amount", t.ID())
			}
			if !t.Status().Valid() {
				return fmt.Errorf("transaction %s: invalid status %q", t.ID(), t.Status())
			}
			for _, id := range []uuid.UUID{t.FromAccount(), t.ToAccount()} {
				if _, ok := s.accounts[id]; !ok {
					return fmt.Errorf("%w: account %s", repository.ErrReferenced, id)
				}
			}
			for _, existing := range s.transactions {
				if existing.ID() == t.ID() {
					return fmt.Errorf("%w: transaction %s", repository.ErrConflict, t.ID())
				}
			}
			return nil
		},
		apply: func(s *Store) {
			s.transactions = append(s.transactions, t)
		},
	})
}

func (r *TransactionRepo) ListByAccount(_ context.Context, accountID uuid.UUID, limit int) ([]*entity.Transaction, error) {
	s := r.uow.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].Involves(accountID) {
			out = append(out, s.transactions[i])
		}
	}
	slices.SortStableFunc(out, func(a, b *entity.Transaction) int {
		return cmp.Compare(b.CreatedAt().UnixNano(), a.CreatedAt().UnixNano())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type IdempotencyRepo struct {
	uow *UnitOfWork
}

func (r *IdempotencyRepo) Find(_ context.Context, accountID uuid.UUID, key string) (*entity.IdempotencyRecord, error) {
	s := r.uow.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.idempotency[idemKey{accountID: accountID, key: key}], nil
}

// Save takes the key lock before checking for an existing record, so a
// second insert of the same key waits for the first transaction to finish
// and then fails with repository.ErrConflict if it committed.
func (r *IdempotencyRepo) Save(ctx context.Context, record *entity.IdempotencyRecord) error {
	k := idemKey{accountID: record.AccountID(), key: record.Key()}

	if r.uow.tx != nil {
		if err := r.uow.lockKey(ctx, k); err != nil {
			return err
		}
		s := r.uow.store
		s.mu.RLock()
		_, exists := s.idempotency[k]
		s.mu.RUnlock()
		if exists {
			return fmt.Errorf("%w: idempotency key %q", repository.ErrConflict, record.Key())
		}
	}

	return r.uow.stage(op{
		check: func(s *Store) error {
			if _, ok := s.idempotency[k]; ok {
				return fmt.Errorf("%w: idempotency key %q", repository.ErrConflict, record.Key())
			}
			if _, ok := s.accounts[k.accountID]; !ok {
				return fmt.Errorf("%w: account %s", repository.ErrReferenced, k.accountID)
			}
			return nil
		},
		apply: func(s *Store) {
			s.idempotency[k] = record
		},
	})
}
