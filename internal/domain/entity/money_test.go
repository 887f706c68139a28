package entity_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "10", want: "10.00"},
		{in: " 0.01 ", want: "0.01"},
		{in: "99999999.99", want: "99999999.99"},
		{in: "1.5", want: "1.50"},
		{in: "0", wantErr: entity.ErrNegativeAmount},
		{in: "-3", wantErr: entity.ErrNegativeAmount},
		{in: "0.001", wantErr: entity.ErrAmountPrecision},
		{in: "10000000000", wantErr: entity.ErrAmountTooLarge},
		{in: "ten", wantErr: entity.ErrMalformedAmount},
		{in: "", wantErr: entity.ErrMalformedAmount},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := entity.ParseAmount(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, entity.FormatAmount(got))
		})
	}
}

func TestLockOrder(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	assert.Equal(t, []uuid.UUID{a, b}, entity.LockOrder(a, b))
	assert.Equal(t, []uuid.UUID{a, b}, entity.LockOrder(b, a))
	assert.Equal(t, []uuid.UUID{a}, entity.LockOrder(a, a))
}

func TestAccount_DebitCredit(t *testing.T) {
	acc := entity.NewAccount(uuid.New(), " Alice@Example.COM", decimal.RequireFromString("100"))
	assert.Equal(t, "alice@example.com", acc.Email())

	require.NoError(t, acc.Debit(decimal.RequireFromString("100")))
	assert.True(t, acc.Balance().IsZero())

	assert.ErrorIs(t, acc.Debit(decimal.RequireFromString("0.01")), entity.ErrInsufficientFunds)
	assert.True(t, acc.Balance().IsZero())

	assert.ErrorIs(t, acc.Credit(decimal.Zero), entity.ErrNegativeAmount)
	require.NoError(t, acc.Credit(decimal.RequireFromString("12.34")))
	assert.Equal(t, "12.34", entity.FormatAmount(acc.Balance()))

	clone := acc.Clone()
	require.NoError(t, clone.Credit(decimal.NewFromInt(1)))
	assert.Equal(t, "12.34", entity.FormatAmount(acc.Balance()))
}

func TestTransferFingerprint(t *testing.T) {
	receiver := uuid.New()

	assert.Equal(t,
		entity.TransferFingerprint(receiver, decimal.RequireFromString("5")),
		entity.TransferFingerprint(receiver, decimal.RequireFromString("5.00")))
	assert.NotEqual(t,
		entity.TransferFingerprint(receiver, decimal.RequireFromString("5")),
		entity.TransferFingerprint(receiver, decimal.RequireFromString("5.01")))
	assert.NotEqual(t,
		entity.TransferFingerprint(receiver, decimal.RequireFromString("5")),
		entity.TransferFingerprint(uuid.New(), decimal.RequireFromString("5")))
}
