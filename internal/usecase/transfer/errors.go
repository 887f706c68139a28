package transfer

import (
	"context"
	"errors"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
	"github.com/Xausdorf/vaultpay/internal/domain/repository"
)

type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindSameAccount       Kind = "SameAccount"
	KindNotFound          Kind = "NotFound"
	KindInsufficientFunds Kind = "InsufficientFunds"
	KindTransient         Kind = "TransientFailure"
	KindInternal          Kind = "InternalError"
)

var (
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	ErrIdempotencyKeyTooLong = errors.New("idempotency key is too long")
	ErrIdempotencyMismatch   = errors.New("idempotency key was already used for a different transfer")
	ErrInvalidReceiver       = errors.New("receiver must be an account id or an email address")
	ErrReceiverNotFound      = errors.New("receiver does not exist")
	ErrAccountNotFound       = errors.New("account does not exist")
	ErrSameAccount           = errors.New("cannot send money to yourself")
)

// Error is the failure reported to callers of Execute.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports whether the request itself was rejected; SameAccount is
// a validation failure with its own kind.
func (e *Error) Validation() bool {
	return e.Kind == KindValidation || e.Kind == KindSameAccount
}

// Retryable reports whether the caller may retry with the same idempotency key.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// KindOf returns the kind of err, or KindInternal for errors that did not
// come from the transfer engine.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// classify turns a storage failure raised inside the atomic scope into a
// caller facing error.
func classify(err error) *Error {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, entity.ErrInsufficientFunds):
		return newError(KindInsufficientFunds, err)
	case errors.Is(err, repository.ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return &Error{Kind: KindTransient, Message: "transfer could not be completed, retry with the same idempotency key", Err: err}
	default:
		return &Error{Kind: KindInternal, Message: "internal error", Err: err}
	}
}
