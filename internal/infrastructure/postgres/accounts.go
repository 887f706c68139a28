package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
	"github.com/Xausdorf/vaultpay/internal/domain/repository"
)

const accountColumns = `id, email, balance, sealed_identifier, created_at`

type AccountRepo struct {
	q    querier
	inTx bool
}

func (r *AccountRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Account, error) {
	return r.scanOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	return r.scanOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, entity.NormalizeEmail(email))
}

// LockForUpdate issues one SELECT ... FOR UPDATE per id so the lock
// acquisition order is exactly the order of ids.
func (r *AccountRepo) LockForUpdate(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*entity.Account, error) {
	if !r.inTx {
		return nil, repository.ErrNoTransaction
	}

	locked := make(map[uuid.UUID]*entity.Account, len(ids))
	for _, id := range ids {
		account, err := r.scanOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return nil, fmt.Errorf("lock account %s: %w", id, err)
		}
		locked[id] = account
	}
	return locked, nil
}

func (r *AccountRepo) Save(ctx context.Context, account *entity.Account) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE accounts SET balance = $1 WHERE id = $2`,
		account.Balance(), account.ID(),
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepo) Create(ctx context.Context, account *entity.Account) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO accounts (id, email, balance, sealed_identifier, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		account.ID(), account.Email(), account.Balance(), account.SealedIdentifier(), account.CreatedAt(),
	)
	return mapError(err)
}

// Delete fails with repository.ErrReferenced while any transaction references the account.
func (r *AccountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepo) scanOne(ctx context.Context, sql string, args ...any) (*entity.Account, error) {
	var (
		id        uuid.UUID
		email     string
		balance   decimal.Decimal
		sealed    string
		createdAt time.Time
	)
	err := r.q.QueryRow(ctx, sql, args...).Scan(&id, &email, &balance, &sealed, &createdAt)
	if err != nil {
		return nil, mapError(err)
	}
	return entity.ReconstructAccount(id, email, balance, sealed, createdAt), nil
}
