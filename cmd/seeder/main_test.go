package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
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

func newProvisioner(t *testing.T) (*provision.UseCase, *memory.UnitOfWork) {
	t.Helper()

	cipher, err := vault.NewCipher(strings.Repeat("ab", 32))
	require.NoError(t, err)
	uow := memory.NewUnitOfWork(memory.NewStore())
	return provision.NewUseCase(uow, cipher, nil), uow
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSeed_WritesOneIDPerAccount(t *testing.T) {
	ctx := context.Background()
	uc, uow := newProvisioner(t)
	out := filepath.Join(t.TempDir(), "accounts.txt")

	require.NoError(t, seed(ctx, uc, discard(), options{count: 3, balance: "12.50", prefix: "t", out: out}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Fields(string(data))
	require.Len(t, lines, 3)
	for _, line := range lines {
		id, err := uuid.Parse(line)
		require.NoError(t, err)
		acc, err := uow.Accounts().Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("12.50").Equal(acc.Balance()))
	}
}

func TestShowIdentifier_PrintsDecryptedValue(t *testing.T) {
	ctx := context.Background()
	uc, _ := newProvisioner(t)

	acc, err := uc.Provision(ctx, provision.Request{
		Email:          "holder@example.com",
		OpeningBalance: decimal.Zero,
		Identifier:     "12345678901",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, showIdentifier(ctx, uc, acc.ID().String(), &buf))
	assert.Equal(t, "12345678901\n", buf.String())

	assert.Error(t, showIdentifier(ctx, uc, "not-a-uuid", &buf))
	assert.ErrorIs(t, showIdentifier(ctx, uc, uuid.NewString(), &buf), provision.ErrAccountNotFound)
}

func TestRemoveAccount_KeepsAccountsWithLedgerEntries(t *testing.T) {
	ctx := context.Background()
	uc, uow := newProvisioner(t)

	provisionAccount := func(email string) *entity.Account {
		acc, err := uc.Provision(ctx, provision.Request{Email: email, OpeningBalance: decimal.NewFromInt(5)})
		require.NoError(t, err)
		return acc
	}
	sender, receiver, idle := provisionAccount("s@example.com"), provisionAccount("r@example.com"), provisionAccount("i@example.com")
	require.NoError(t, uow.Transactions().Append(ctx,
		entity.NewTransaction(sender.ID(), receiver.ID(), decimal.NewFromInt(1), entity.StatusSuccess)))

	assert.ErrorIs(t, removeAccount(ctx, uc, sender.ID().String()), provision.ErrAccountInUse)
	require.NoError(t, removeAccount(ctx, uc, idle.ID().String()))
	assert.ErrorIs(t, removeAccount(ctx, uc, idle.ID().String()), provision.ErrAccountNotFound)
	assert.Error(t, removeAccount(ctx, uc, "nope"))

	_, err := uow.Accounts().Get(ctx, sender.ID())
	assert.NoError(t, err)
}
