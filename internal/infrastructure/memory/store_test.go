package memory_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
	"github.com/Xausdorf/vaultpay/internal/domain/repository"
	"github.com/Xausdorf/vaultpay/internal/infrastructure/memory"
)

func newAccount(t *testing.T, uow *memory.UnitOfWork, balance int64) *entity.Account {
	t.Helper()

	id := uuid.New()
	acc := entity.NewAccount(id, id.String()+"@example.com", decimal.NewFromInt(balance))
	require.NoError(t, uow.Accounts().Create(context.Background(), acc))
	return acc
}

func TestUnitOfWork_CommitPublishesWrites(t *testing.T) {
	ctx := context.Background()
	uow := memory.NewUnitOfWork(memory.NewStore())
	a, b := newAccount(t, uow, 10), newAccount(t, uow, 0)

	tx, err := uow.Begin(ctx)
	require.NoError(t, err)

	locked, err := tx.Accounts().LockForUpdate(ctx, entity.LockOrder(a.ID(), b.ID()))
	require.NoError(t, err)
	require.NoError(t, locked[a.ID()].Debit(decimal.NewFromInt(4)))
	require.NoError(t, locked[b.ID()].Credit(decimal.NewFromInt(4)))
	require.NoError(t, tx.Accounts().Save(ctx, locked[a.ID()]))
	require.NoError(t, tx.Accounts().Save(ctx, locked[b.ID()]))
	require.NoError(t, tx.Transactions().Append(ctx,
		entity.NewTransaction(a.ID(), b.ID(), decimal.NewFromInt(4), entity.StatusSuccess)))

	// Staged writes are invisible until commit.
	got, err := uow.Accounts().Get(ctx, a.ID())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(got.Balance()))

	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))

	got, err = uow.Accounts().Get(ctx, a.ID())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(6).Equal(got.Balance()))

	txns, err := uow.Transactions().ListByAccount(ctx, b.ID(), 10)
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestUnitOfWork_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	uow := memory.NewUnitOfWork(memory.NewStore())
	a, b := newAccount(t, uow, 10), newAccount(t, uow, 0)

	tx, err := uow.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Transactions().Append(ctx,
		entity.NewTransaction(a.ID(), b.ID(), decimal.NewFromInt(1), entity.StatusSuccess)))
	require.NoError(t, tx.Idempotency().Save(ctx,
		entity.NewIdempotencyRecord(a.ID(), "k", "fp", http.StatusOK, []byte("{}"))))
	require.NoError(t, tx.Rollback(ctx))

	txns, err := uow.Transactions().ListByAccount(ctx, a.ID(), 0)
	require.NoError(t, err)
	assert.Empty(t, txns)

	record, err := uow.Idempotency().Find(ctx, a.ID(), "k")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestAccountRepo_LockForUpdateRequiresTransaction(t *testing.T) {
	uow := memory.NewUnitOfWork(memory.NewStore())
	a := newAccount(t, uow, 1)

	_, err := uow.Accounts().LockForUpdate(context.Background(), []uuid.UUID{a.ID()})
	assert.ErrorIs(t, err, repository.ErrNoTransaction)
}

func TestAccountRepo_LockWaitTimesOut(t *testing.T) {
	ctx := context.Background()
	uow := memory.NewUnitOfWork(memory.NewStore(memory.WithLockTimeout(20 * time.Millisecond)))
	a := newAccount(t, uow, 1)

	first, err := uow.Begin(ctx)
	require.NoError(t, err)
	_, err = first.Accounts().LockForUpdate(ctx, []uuid.UUID{a.ID()})
	require.NoError(t, err)

	second, err := uow.Begin(ctx)
	require.NoError(t, err)
	_, err = second.Accounts().LockForUpdate(ctx, []uuid.UUID{a.ID()})
	assert.ErrorIs(t, err, repository.ErrTransient)
	require.NoError(t, second.Rollback(ctx))

	require.NoError(t, first.Rollback(ctx))

	third, err := uow.Begin(ctx)
	require.NoError(t, err)
	_, err = third.Accounts().LockForUpdate(ctx, []uuid.UUID{a.ID()})
	require.NoError(t, err)
	require.NoError(t, third.Rollback(ctx))
}

func TestAccountRepo_LockForUpdateUnknownAccount(t *testing.T) {
	ctx := context.Background()
	uow := memory.NewUnitOfWork(memory.NewStore())

	tx, err := uow.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Accounts().LockForUpdate(ctx, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAccountRepo_CreateRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	uow := memory.NewUnitOfWork(memory.NewStore())
	a := newAccount(t, uow, 1)

	err := uow.Accounts().Create(ctx, entity.NewAccount(uuid.New(), "  "+a.Email(), decimal.Zero))
	assert.ErrorIs(t, err, repository.ErrConflict)

	found, err := uow.Accounts().FindByEmail(ctx, a.Email())
	require.NoError(t, err)
	assert.Equal(t, a.ID(), found.ID())
}

func TestAccountRepo_DeleteReferencedAccount(t *testing.T) {
	ctx := context.Background()
	uow := memory.NewUnitOfWork(memory.NewStore())
	a, b, idle := newAccount(t, uow, 5), newAccount(t, uow, 0), newAccount(t, uow, 0)

	require.NoError(t, uow.Transactions().Append(ctx,
		entity.NewTransaction(a.ID(), b.ID(), decimal.NewFromInt(5), entity.StatusSuccess)))

	assert.ErrorIs(t, uow.Accounts().Delete(ctx, b.ID()), repository.ErrReferenced)
	require.NoError(t, uow.Accounts().Delete(ctx, idle.ID()))
	assert.ErrorIs(t, uow.Accounts().Delete(ctx, idle.ID()), repository.ErrNotFound)
}

func TestIdempotencyRepo_SecondInsertWaitsThenConflicts(t *testing.T) {
	ctx := context.Background()
	uow := memory.NewUnitOfWork(memory.NewStore(memory.WithLockTimeout(time.Second)))
	a := newAccount(t, uow, 0)

	first, err := uow.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Idempotency().Save(ctx,
		entity.NewIdempotencyRecord(a.ID(), "dup", "fp", http.StatusOK, []byte(`{"n":1}`))))

	result := make(chan error, 1)
	go func() {
		second, err := uow.Begin(ctx)
		if err != nil {
			result <- err
			return
		}
		defer func() { _ = second.Rollback(ctx) }()
		result <- second.Idempotency().Save(ctx,
			entity.NewIdempotencyRecord(a.ID(), "dup", "fp", http.StatusOK, []byte(`{"n":2}`)))
	}()

	select {
	case err := <-result:
		t.Fatalf("second insert returned before the first finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Commit(ctx))
	assert.ErrorIs(t, <-result, repository.ErrConflict)

	record, err := uow.Idempotency().Find(ctx, a.ID(), "dup")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"n":1}`), record.ResponseBody())
}

func TestTransactionRepo_ListByAccountNewestFirst(t *testing.T) {
	ctx := context.Background()
	uow := memory.NewUnitOfWork(memory.NewStore())
	a, b := newAccount(t, uow, 0), newAccount(t, uow, 0)

	base := time.Now().UTC()
	for i := range 5 {
		txn := entity.ReconstructTransaction(uuid.New(), a.ID(), b.ID(),
			decimal.NewFromInt(int64(i+1)), entity.StatusSuccess, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, uow.Transactions().Append(ctx, txn))
	}

	txns, err := uow.Transactions().ListByAccount(ctx, b.ID(), 3)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.True(t, decimal.NewFromInt(5).Equal(txns[0].Amount()))
	assert.True(t, decimal.NewFromInt(3).Equal(txns[2].Amount()))

	err = uow.Transactions().Append(ctx,
		entity.NewTransaction(a.ID(), a.ID(), decimal.NewFromInt(1), entity.StatusSuccess))
	assert.Error(t, err)
}

func TestAccountRepo_DeleteTimesOutOnLockedRow(t *testing.T) {
	ctx := context.Background()
	uow := memory.NewUnitOfWork(memory.NewStore(memory.WithLockTimeout(20 * time.Millisecond)))
	a, b := newAccount(t, uow, 10), newAccount(t, uow, 0)

	tx, err := uow.Begin(ctx)
	require.NoError(t, err)
	locked, err := tx.Accounts().LockForUpdate(ctx, entity.LockOrder(a.ID(), b.ID()))
	require.NoError(t, err)

	assert.ErrorIs(t, uow.Accounts().Delete(ctx, b.ID()), repository.ErrTransient)

	require.NoError(t, locked[a.ID()].Debit(decimal.NewFromInt(3)))
	require.NoError(t, locked[b.ID()].Credit(decimal.NewFromInt(3)))
	require.NoError(t, tx.Accounts().Save(ctx, locked[a.ID()]))
	require.NoError(t, tx.Accounts().Save(ctx, locked[b.ID()]))
	require.NoError(t, tx.Commit(ctx))

	got, err := uow.Accounts().Get(ctx, b.ID())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(got.Balance()))
}

func TestAccountRepo_DeleteWaitsForLockHolder(t *testing.T) {
	ctx := context.Background()
	uow := memory.NewUnitOfWork(memory.NewStore(memory.WithLockTimeout(time.Second)))
	a, b := newAccount(t, uow, 10), newAccount(t, uow, 0)

	tx, err := uow.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Accounts().LockForUpdate(ctx, entity.LockOrder(a.ID(), b.ID()))
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		result <- uow.Accounts().Delete(ctx, b.ID())
	}()

	select {
	case err := <-result:
		t.Fatalf("delete returned while the row was locked: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, tx.Transactions().Append(ctx,
		entity.NewTransaction(a.ID(), b.ID(), decimal.NewFromInt(1), entity.StatusSuccess)))
	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, <-result, repository.ErrReferenced)
}
