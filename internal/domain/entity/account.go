package entity

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNegativeAmount    = errors.New("amount must be positive")
)

type Account struct {
	id               uuid.UUID
	email            string
	balance          decimal.Decimal
	sealedIdentifier string
	createdAt        time.Time
}

func NewAccount(id uuid.UUID, email string, balance decimal.Decimal) *Account {
	return &Account{
		id:        id,
		email:     NormalizeEmail(email),
		balance:   balance,
		createdAt: time.Now().UTC(),
	}
}

func ReconstructAccount(
	id uuid.UUID,
	email string,
	balance decimal.Decimal,
	sealedIdentifier string,
	createdAt time.Time,
) *Account {
	return &Account{
		id:               id,
		email:            email,
		balance:          balance,
		sealedIdentifier: sealedIdentifier,
		createdAt:        createdAt,
	}
}

func (a *Account) ID() uuid.UUID {
	return a.id
}

func (a *Account) Email() string {
	return a.email
}

func (a *Account) Balance() decimal.Decimal {
	return a.balance
}

// SealedIdentifier is the ciphertext of the holder's national identifier.
func (a *Account) SealedIdentifier() string {
	return a.sealedIdentifier
}

func (a *Account) SetSealedIdentifier(sealed string) {
	a.sealedIdentifier = sealed
}

func (a *Account) CreatedAt() time.Time {
	return a.createdAt
}

func (a *Account) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNegativeAmount
	}
	if a.balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	a.balance = a.balance.Sub(amount)
	return nil
}

func (a *Account) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNegativeAmount
	}
	a.balance = a.balance.Add(amount)
	return nil
}

// Clone returns an independent copy; stores hand out clones so callers never alias stored state.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
