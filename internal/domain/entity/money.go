package entity

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Amounts are stored as NUMERIC(12,2).
const (
	AmountScale     = 2
	amountMaxDigits = 12
)

var (
	ErrAmountPrecision = errors.New("amount must have at most 2 decimal places")
	ErrAmountTooLarge  = errors.New("amount exceeds the maximum transferable value")
	ErrMalformedAmount = errors.New("amount is not a decimal number")
)

var maxAmount = decimal.New(1, amountMaxDigits-AmountScale)

// ParseAmount parses a client supplied decimal string and validates it as a transfer amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrNegativeAmount
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return ErrAmountPrecision
	}
	if d.GreaterThanOrEqual(maxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

// FormatAmount renders a value with exactly two fraction digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}

// LockOrder returns the ids sorted into the system-wide lock acquisition order.
// Every caller that locks more than one account must lock them in this order.
func LockOrder(ids ...uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return slices.Compact(out)
}
