package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
)

type TransactionRepo struct {
	q querier
}

func (r *TransactionRepo) Append(ctx context.Context, t *entity.Transaction) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO transactions (id, sender_id, receiver_id, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID(), t.FromAccount(), t.ToAccount(), t.Amount(), string(t.Status()), t.CreatedAt(),
	)
	return mapError(err)
}

// ListByAccount returns the newest transactions first; limit <= 0 means no limit.
func (r *TransactionRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*entity.Transaction, error) {
	var pageSize *int
	if limit > 0 {
		pageSize = &limit
	}
	rows, err := r.q.Query(ctx,
		`SELECT id, sender_id, receiver_id, amount, status, created_at
		 FROM transactions
		 WHERE sender_id = $1 OR receiver_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		accountID, pageSize,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*entity.Transaction
	for rows.Next() {
		var (
			id, from, to uuid.UUID
			amount       decimal.Decimal
			status       string
			createdAt    time.Time
		)
		if err := rows.Scan(&id, &from, &to, &amount, &status, &createdAt); err != nil {
			return nil, mapError(err)
		}
		out = append(out, entity.ReconstructTransaction(id, from, to, amount, entity.TransactionStatus(status), createdAt))
	}
	return out, mapError(rows.Err())
}
