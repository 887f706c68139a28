package transfer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
	"github.com/Xausdorf/vaultpay/internal/infrastructure/memory"
	"github.com/Xausdorf/vaultpay/internal/usecase/transfer"
)

func newRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider, recorder
}

func onlySpan(t *testing.T, recorder *tracetest.SpanRecorder) sdktrace.ReadOnlySpan {
	t.Helper()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "transfer.Execute", spans[0].Name())
	return spans[0]
}

func TestTransferUseCase_Tracing_SuccessAndReplay(t *testing.T) {
	tp, recorder := newRecorder(t)
	uow := memory.NewUnitOfWork(memory.NewStore())
	uc := transfer.NewUseCase(uow, transfer.WithTracerProvider(tp))

	ids := seed(t, uow, "10", "0")
	req := transfer.Request{
		IdempotencyKey: "traced",
		SenderID:       ids[0],
		Receiver:       ids[1].String(),
		Amount:         money("4"),
	}

	_, err := uc.Execute(context.Background(), req)
	require.NoError(t, err)
	_, err = uc.Execute(context.Background(), req)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Contains(t, spans[0].Attributes(), attribute.String("vaultpay.outcome", "success"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("vaultpay.sender_id", ids[0].String()))
	assert.Contains(t, spans[1].Attributes(), attribute.String("vaultpay.outcome", "replayed"))
	for _, s := range spans {
		assert.Equal(t, codes.Unset, s.Status().Code)
	}
}

func TestTransferUseCase_Tracing_TransientFailureSetsErrorStatus(t *testing.T) {
	tp, recorder := newRecorder(t)
	uow := memory.NewUnitOfWork(memory.NewStore(memory.WithLockTimeout(20 * time.Millisecond)))
	uc := transfer.NewUseCase(uow, transfer.WithTracerProvider(tp))

	ids := seed(t, uow, "10", "0")
	ctx := context.Background()

	holder, err := uow.Begin(ctx)
	require.NoError(t, err)
	_, err = holder.Accounts().LockForUpdate(ctx, entity.LockOrder(ids...))
	require.NoError(t, err)
	defer func() { _ = holder.Rollback(ctx) }()

	_, err = uc.Execute(ctx, transfer.Request{
		IdempotencyKey: "blocked",
		SenderID:       ids[0],
		Receiver:       ids[1].String(),
		Amount:         money("1"),
	})
	require.Equal(t, transfer.KindTransient, transfer.KindOf(err))

	span := onlySpan(t, recorder)
	assert.Contains(t, span.Attributes(), attribute.String("vaultpay.outcome", string(transfer.KindTransient)))
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.NotEmpty(t, span.Events(), "error event is recorded")
}

func TestTransferUseCase_Tracing_InternalFailureSetsErrorStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tp, recorder := newRecorder(t)
	f := newFixture(ctrl)
	uc := transfer.NewUseCase(f.uow, transfer.WithTracerProvider(tp))

	fromID, toID := uuid.New(), uuid.New()
	f.accounts.EXPECT().Get(gomock.Any(), toID).Return(account(toID, "0"), nil)
	f.idempotency.EXPECT().Find(gomock.Any(), fromID, "broken").Return(nil, nil)
	f.uow.EXPECT().Begin(gomock.Any()).Return(nil, errors.New("connection refused"))

	_, err := uc.Execute(context.Background(), transfer.Request{
		IdempotencyKey: "broken",
		SenderID:       fromID,
		Receiver:       toID.String(),
		Amount:         money("1"),
	})
	require.Equal(t, transfer.KindInternal, transfer.KindOf(err))

	span := onlySpan(t, recorder)
	assert.Contains(t, span.Attributes(), attribute.String("vaultpay.outcome", string(transfer.KindInternal)))
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, "internal error", span.Status().Description)
}

func TestTransferUseCase_Tracing_BusinessFailureKeepsStatusUnset(t *testing.T) {
	tp, recorder := newRecorder(t)
	uow := memory.NewUnitOfWork(memory.NewStore())
	uc := transfer.NewUseCase(uow, transfer.WithTracerProvider(tp))

	ids := seed(t, uow, "1", "0")
	_, err := uc.Execute(context.Background(), transfer.Request{
		IdempotencyKey: "too-much",
		SenderID:       ids[0],
		Receiver:       ids[1].String(),
		Amount:         money("2"),
	})
	require.Equal(t, transfer.KindInsufficientFunds, transfer.KindOf(err))

	span := onlySpan(t, recorder)
	assert.Contains(t, span.Attributes(), attribute.String("vaultpay.outcome", string(transfer.KindInsufficientFunds)))
	assert.Equal(t, codes.Unset, span.Status().Code)
}
