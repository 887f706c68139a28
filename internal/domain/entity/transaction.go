package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING"
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	default:
		return false
	}
}

// Transaction is an immutable ledger record of a completed transfer.
type Transaction struct {
	id          uuid.UUID
	fromAccount uuid.UUID
	toAccount   uuid.UUID
	amount      decimal.Decimal
	status      TransactionStatus
	createdAt   time.Time
}

func NewTransaction(from, to uuid.UUID, amount decimal.Decimal, status TransactionStatus) *Transaction {
	return &Transaction{
		id:          uuid.New(),
		fromAccount: from,
		toAccount:   to,
		amount:      amount,
		status:      status,
		createdAt:   time.Now().UTC(),
	}
}

func ReconstructTransaction(
	id, from, to uuid.UUID,
	amount decimal.Decimal,
	status TransactionStatus,
	createdAt time.Time,
) *Transaction {
	return &Transaction{
		id:          id,
		fromAccount: from,
		toAccount:   to,
		amount:      amount,
		status:      status,
		createdAt:   createdAt,
	}
}

func (t *Transaction) ID() uuid.UUID {
	return t.id
}

func (t *Transaction) FromAccount() uuid.UUID {
	return t.fromAccount
}

func (t *Transaction) ToAccount() uuid.UUID {
	return t.toAccount
}

func (t *Transaction) Amount() decimal.Decimal {
	return t.amount
}

func (t *Transaction) Status() TransactionStatus {
	return t.status
}

func (t *Transaction) CreatedAt() time.Time {
	return t.createdAt
}

// Involves reports whether the account is the sender or the receiver.
func (t *Transaction) Involves(accountID uuid.UUID) bool {
	return t.fromAccount == accountID || t.toAccount == accountID
}
