package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
	"github.com/Xausdorf/vaultpay/internal/domain/repository"
)

var (
	ErrInvalidEmail    = errors.New("email address is invalid")
	ErrInvalidBalance  = errors.New("opening balance must be a non-negative amount with at most 2 decimal places")
	ErrEmailTaken      = errors.New("email address is already registered")
	ErrAccountNotFound = errors.New("account does not exist")
	ErrAccountInUse    = errors.New("account is referenced by the transaction ledger")
	ErrNoIdentifier    = errors.New("account has no identifier on file")
)

// Cipher seals identifiers; additional data binds a sealed value to its account.
type Cipher interface {
	Seal(plaintext, additional []byte) (string, error)
	Open(sealed string, additional []byte) ([]byte, error)
}

type Request struct {
	Email          string
	OpeningBalance decimal.Decimal
	// Identifier is the holder's national identifier; stored sealed, optional.
	Identifier string
}

type UseCase struct {
	uow    repository.UnitOfWork
	cipher Cipher
	logger *slog.Logger
}

func NewUseCase(uow repository.UnitOfWork, cipher Cipher, logger *slog.Logger) *UseCase {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &UseCase{uow: uow, cipher: cipher, logger: logger}
}

func (uc *UseCase) Provision(ctx context.Context, req Request) (*entity.Account, error) {
	email := entity.NormalizeEmail(req.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, ErrInvalidEmail
	}
	if req.OpeningBalance.IsNegative() || !req.OpeningBalance.Equal(req.OpeningBalance.Truncate(entity.AmountScale)) {
		return nil, ErrInvalidBalance
	}

	account := entity.NewAccount(uuid.New(), email, req.OpeningBalance)
	if ident := strings.TrimSpace(req.Identifier); ident != "" {
		sealed, err := uc.cipher.Seal([]byte(ident), boundTo(account.ID()))
		if err != nil {
			return nil, fmt.Errorf("seal identifier: %w", err)
		}
		account.SetSealedIdentifier(sealed)
	}

	if err := uc.uow.Accounts().Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	uc.logger.InfoContext(ctx, "account provisioned", "account_id", account.ID())
	return account, nil
}

// Identifier returns the holder's identifier in clear text.
func (uc *UseCase) Identifier(ctx context.Context, accountID uuid.UUID) (string, error) {
	account, err := uc.uow.Accounts().Get(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrAccountNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get account: %w", err)
	}
	if account.SealedIdentifier() == "" {
		return "", ErrNoIdentifier
	}

	plain, err := uc.cipher.Open(account.SealedIdentifier(), boundTo(account.ID()))
	if err != nil {
		return "", fmt.Errorf("open identifier: %w", err)
	}
	return string(plain), nil
}

// Remove deletes an account that never took part in a transfer.
func (uc *UseCase) Remove(ctx context.Context, accountID uuid.UUID) error {
	err := uc.uow.Accounts().Delete(ctx, accountID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrAccountNotFound
	case errors.Is(err, repository.ErrReferenced):
		return ErrAccountInUse
	case err != nil:
		return fmt.Errorf("delete account: %w", err)
	}

	uc.logger.InfoContext(ctx, "account removed", "account_id", accountID)
	return nil
}

func boundTo(id uuid.UUID) []byte {
	return id[:]
}
