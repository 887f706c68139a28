package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
	"github.com/Xausdorf/vaultpay/internal/domain/repository"
)

// DefaultLimit is the page size when the caller does not ask for one; it is also the cap.
const DefaultLimit = 100

var ErrAccountNotFound = errors.New("account does not exist")

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Entry is one ledger row seen from the requesting account.
type Entry struct {
	TransactionID uuid.UUID
	Direction     Direction
	Counterparty  uuid.UUID
	Amount        decimal.Decimal
	Status        entity.TransactionStatus
	CreatedAt     time.Time
}

type UseCase struct {
	uow      repository.UnitOfWork
	maxLimit int
}

// NewUseCase caps page sizes at maxLimit; maxLimit <= 0 selects DefaultLimit.
func NewUseCase(uow repository.UnitOfWork, maxLimit int) *UseCase {
	if maxLimit <= 0 {
		maxLimit = DefaultLimit
	}
	return &UseCase{uow: uow, maxLimit: maxLimit}
}

// List returns up to limit transactions of accountID, newest first.
func (uc *UseCase) List(ctx context.Context, accountID uuid.UUID, limit int) ([]Entry, error) {
	if _, err := uc.uow.Accounts().Get(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	if limit <= 0 || limit > uc.maxLimit {
		limit = uc.maxLimit
	}

	txns, err := uc.uow.Transactions().ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	entries := make([]Entry, 0, len(txns))
	for _, t := range txns {
		e := Entry{
			TransactionID: t.ID(),
			Direction:     DirectionReceived,
			Counterparty:  t.FromAccount(),
			Amount:        t.Amount(),
			Status:        t.Status(),
			CreatedAt:     t.CreatedAt(),
		}
		if t.FromAccount() == accountID {
			e.Direction = DirectionSent
			e.Counterparty = t.ToAccount()
		}
		entries = append(entries, e)
	}
	return entries, nil
}
