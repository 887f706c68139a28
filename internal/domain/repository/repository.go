package repository

//go:generate mockgen -source=repository.go -destination=../../usecase/transfer/mocks/repository_mock.go -package=mocks
//go:generate mockgen -source=unit_of_work.go -destination=../../usecase/transfer/mocks/unit_of_work_mock.go -package=mocks

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness constraint rejects a write.
	ErrConflict = errors.New("conflict")
	// ErrReferenced is returned when a row cannot be deleted because the ledger references it.
	ErrReferenced = errors.New("referenced by ledger")
	// ErrTransient marks failures that are safe to retry: lock timeouts,
	// deadlocks, serialization failures, cancelled contexts, lost connections.
	ErrTransient = errors.New("transient storage failure")
	// ErrNoTransaction is returned by operations that need an active unit of work.
	ErrNoTransaction = errors.New("no active transaction")
)

type AccountRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Account, error)
	FindByEmail(ctx context.Context, email string) (*entity.Account, error)
	// LockForUpdate takes exclusive row locks on ids in the order given and
	// returns the lock-fresh rows. It blocks while another unit of work holds
	// any of the rows.
	LockForUpdate(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*entity.Account, error)
	Save(ctx context.Context, account *entity.Account) error
	Create(ctx context.Context, account *entity.Account) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type TransactionRepository interface {
	Append(ctx context.Context, tx *entity.Transaction) error
	// ListByAccount returns transactions sent or received by the account, newest first.
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*entity.Transaction, error)
}

type IdempotencyRepository interface {
	// Find returns nil, nil when no record exists.
	Find(ctx context.Context, accountID uuid.UUID, key string) (*entity.IdempotencyRecord, error)
	// Save fails with ErrConflict when (account, key) already exists.
	Save(ctx context.Context, record *entity.IdempotencyRecord) error
}
