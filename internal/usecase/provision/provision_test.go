package provision_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
	"github.com/Xausdorf/vaultpay/internal/infrastructure/memory"
	"github.com/Xausdorf/vaultpay/internal/infrastructure/vault"
	"github.com/Xausdorf/vaultpay/internal/usecase/provision"
)

func newUseCase(t *testing.T) (*provision.UseCase, *memory.UnitOfWork) {
	t.Helper()

	cipher, err := vault.NewCipher("8f1e0d2c3b4a59687766554433221100ffeeddccbbaa99887766554433221100")
	require.NoError(t, err)
	uow := memory.NewUnitOfWork(memory.NewStore())
	return provision.NewUseCase(uow, cipher, nil), uow
}

func TestProvision_SealsIdentifier(t *testing.T) {
	uc, uow := newUseCase(t)
	ctx := context.Background()

	account, err := uc.Provision(ctx, provision.Request{
		Email:          " Alice@Example.com",
		OpeningBalance: decimal.RequireFromString("250.50"),
		Identifier:     "12345678901",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", account.Email())

	stored, err := uow.Accounts().Get(ctx, account.ID())
	require.NoError(t, err)
	assert.NotEmpty(t, stored.SealedIdentifier())
	assert.NotContains(t, stored.SealedIdentifier(), "12345678901")
	assert.Equal(t, "250.50", entity.FormatAmount(stored.Balance()))

	ident, err := uc.Identifier(ctx, account.ID())
	require.NoError(t, err)
	assert.Equal(t, "12345678901", ident)
}

func TestProvision_Rejections(t *testing.T) {
	uc, _ := newUseCase(t)
	ctx := context.Background()

	_, err := uc.Provision(ctx, provision.Request{Email: "bob@example.com"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  provision.Request
		want error
	}{
		{name: "duplicate email", req: provision.Request{Email: "BOB@example.com"}, want: provision.ErrEmailTaken},
		{name: "bad email", req: provision.Request{Email: "bob"}, want: provision.ErrInvalidEmail},
		{name: "display name", req: provision.Request{Email: "Bob <bob@example.com>"}, want: provision.ErrInvalidEmail},
		{
			name: "negative balance",
			req:  provision.Request{Email: "c@example.com", OpeningBalance: decimal.NewFromInt(-1)},
			want: provision.ErrInvalidBalance,
		},
		{
			name: "sub-cent balance",
			req:  provision.Request{Email: "d@example.com", OpeningBalance: decimal.RequireFromString("0.005")},
			want: provision.ErrInvalidBalance,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Provision(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIdentifier_Missing(t *testing.T) {
	uc, _ := newUseCase(t)
	ctx := context.Background()

	_, err := uc.Identifier(ctx, uuid.New())
	assert.ErrorIs(t, err, provision.ErrAccountNotFound)

	account, err := uc.Provision(ctx, provision.Request{Email: "anon@example.com"})
	require.NoError(t, err)
	_, err = uc.Identifier(ctx, account.ID())
	assert.ErrorIs(t, err, provision.ErrNoIdentifier)
}

func TestRemove(t *testing.T) {
	uc, uow := newUseCase(t)
	ctx := context.Background()

	a, err := uc.Provision(ctx, provision.Request{Email: "a@example.com", OpeningBalance: decimal.NewFromInt(5)})
	require.NoError(t, err)
	b, err := uc.Provision(ctx, provision.Request{Email: "b@example.com"})
	require.NoError(t, err)
	idle, err := uc.Provision(ctx, provision.Request{Email: "idle@example.com"})
	require.NoError(t, err)

	require.NoError(t, uow.Transactions().Append(ctx,
		entity.NewTransaction(a.ID(), b.ID(), decimal.NewFromInt(5), entity.StatusSuccess)))

	assert.ErrorIs(t, uc.Remove(ctx, a.ID()), provision.ErrAccountInUse)
	require.NoError(t, uc.Remove(ctx, idle.ID()))
	assert.ErrorIs(t, uc.Remove(ctx, idle.ID()), provision.ErrAccountNotFound)
}
