package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
	"github.com/Xausdorf/vaultpay/internal/domain/repository"
)

type IdempotencyRepo struct {
	q querier
}

func (r *IdempotencyRepo) Find(ctx context.Context, accountID uuid.UUID, key string) (*entity.IdempotencyRecord, error) {
	var (
		fingerprint string
		code        int
		body        []byte
		createdAt   time.Time
	)
	err := r.q.QueryRow(ctx,
		`SELECT fingerprint, response_code, response_body, created_at
		 FROM idempotency_keys WHERE account_id = $1 AND key = $2`,
		accountID, key,
	).Scan(&fingerprint, &code, &body, &createdAt)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return entity.ReconstructIdempotencyRecord(accountID, key, fingerprint, code, body, createdAt), nil
}

// Save relies on the (account_id, key) primary key: a concurrent insert of
// the same pair waits for the other transaction and then fails with
// repository.ErrConflict if it committed.
func (r *IdempotencyRepo) Save(ctx context.Context, record *entity.IdempotencyRecord) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO idempotency_keys (account_id, key, fingerprint, response_code, response_body, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.AccountID(), record.Key(), record.Fingerprint(),
		record.ResponseCode(), record.ResponseBody(), record.CreatedAt(),
	)
	return mapError(err)
}
