package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
	"github.com/Xausdorf/vaultpay/internal/domain/repository"
)

const (
	MaxIdempotencyKeyLen = 255
	successMessage       = "Transfer Successful"
	outcomeSuccess       = "success"
	outcomeReplayed      = "replayed"
)

const tracerName = "github.com/Xausdorf/vaultpay/internal/usecase/transfer"

type Request struct {
	IdempotencyKey string
	SenderID       uuid.UUID
	// Receiver is an account id or the email of the receiving account.
	Receiver string
	Amount   decimal.Decimal
}

// Response carries the stored response body verbatim in Body so that replays
// are byte-identical to the first response.
type Response struct {
	TransactionID    string
	NewSenderBalance decimal.Decimal
	StatusCode       int
	Body             []byte
	Replayed         bool
}

type responseCache struct {
	Message          string `json:"message"`
	TransactionID    string `json:"transactionId"`
	NewSenderBalance string `json:"newSenderBalance"`
}

type UseCase struct {
	uow      repository.UnitOfWork
	cache    ResultCache
	observer Observer
	tracer   trace.Tracer
	logger   *slog.Logger
}

func NewUseCase(uow repository.UnitOfWork, opts ...Option) *UseCase {
	uc := &UseCase{
		uow:      uow,
		observer: nopObserver{},
		tracer:   noop.NewTracerProvider().Tracer(tracerName),
		logger:   discardLogger(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute moves req.Amount from the sender to the receiver at most once per
// (sender, idempotency key). A repeated key returns the stored response, but
// only for the same receiver and amount: reusing a key for a different
// transfer fails with KindValidation (ErrIdempotencyMismatch) and nothing is
// replayed or moved. Failures are returned as *Error.
func (uc *UseCase) Execute(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	ctx, span := uc.tracer.Start(ctx, "transfer.Execute", trace.WithAttributes(
		attribute.String("vaultpay.sender_id", req.SenderID.String()),
	))
	defer func() {
		outcome := outcomeOf(resp, err)
		uc.observer.ObserveTransfer(outcome, time.Since(start))
		span.SetAttributes(attribute.String("vaultpay.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			if kind := KindOf(err); kind == KindTransient || kind == KindInternal {
				span.SetStatus(codes.Error, err.Error())
				uc.logger.WarnContext(ctx, "transfer failed",
					"sender_id", req.SenderID, "kind", string(kind), "error", errors.Unwrap(err))
			}
		}
		span.End()
	}()

	receiver, err := uc.validate(ctx, req)
	if err != nil {
		return nil, err
	}
	fingerprint := entity.TransferFingerprint(receiver.ID(), req.Amount)

	cached, err := uc.lookup(ctx, req.SenderID, req.IdempotencyKey)
	if err != nil {
		return nil, classify(err)
	}
	if cached != nil {
		return uc.replay(cached, fingerprint)
	}

	return uc.execute(ctx, req, receiver.ID(), fingerprint)
}

func (uc *UseCase) validate(ctx context.Context, req Request) (*entity.Account, error) {
	switch {
	case req.IdempotencyKey == "":
		return nil, newError(KindValidation, ErrMissingIdempotencyKey)
	case len(req.IdempotencyKey) > MaxIdempotencyKeyLen:
		return nil, newError(KindValidation, ErrIdempotencyKeyTooLong)
	case req.SenderID == uuid.Nil:
		return nil, newError(KindNotFound, ErrAccountNotFound)
	}
	if err := entity.ValidateAmount(req.Amount); err != nil {
		return nil, newError(KindValidation, err)
	}

	receiver, err := uc.resolveReceiver(ctx, req.Receiver)
	if err != nil {
		return nil, err
	}
	if receiver.ID() == req.SenderID {
		return nil, newError(KindSameAccount, ErrSameAccount)
	}
	return receiver, nil
}

func (uc *UseCase) resolveReceiver(ctx context.Context, ident string) (*entity.Account, error) {
	ident = strings.TrimSpace(ident)

	var (
		account *entity.Account
		err     error
	)
	if id, parseErr := uuid.Parse(ident); parseErr == nil {
		account, err = uc.uow.Accounts().Get(ctx, id)
	} else if strings.Contains(ident, "@") {
		account, err = uc.uow.Accounts().FindByEmail(ctx, entity.NormalizeEmail(ident))
	} else {
		return nil, newError(KindValidation, ErrInvalidReceiver)
	}

	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, ErrReceiverNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	return account, nil
}

func (uc *UseCase) lookup(ctx context.Context, accountID uuid.UUID, key string) (*entity.IdempotencyRecord, error) {
	if uc.cache != nil {
		record, err := uc.cache.Get(ctx, accountID, key)
		if err != nil {
			uc.logger.WarnContext(ctx, "idempotency cache read failed", "error", err)
		} else if record != nil {
			return record, nil
		}
	}

	record, err := uc.uow.Idempotency().Find(ctx, accountID, key)
	if err != nil {
		return nil, err
	}
	if record != nil {
		uc.remember(ctx, record)
	}
	return record, nil
}

func (uc *UseCase) execute(ctx context.Context, req Request, receiverID uuid.UUID, fingerprint string) (*Response, error) {
	tx, err := uc.uow.Begin(ctx)
	if err != nil {
		return nil, classify(err)
	}
	// Every exit path that does not commit rolls the whole scope back, even
	// when ctx is already done.
	rollbackCtx := context.WithoutCancel(ctx)
	defer func() { _ = tx.Rollback(rollbackCtx) }()

	order := entity.LockOrder(req.SenderID, receiverID)
	locked, err := tx.Accounts().LockForUpdate(ctx, order)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, ErrAccountNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}

	// A request with the same key that held the sender's lock before us has
	// committed by now; replay its result instead of running again.
	existing, err := tx.Idempotency().Find(ctx, req.SenderID, req.IdempotencyKey)
	if err != nil {
		return nil, classify(err)
	}
	if existing != nil {
		uc.remember(ctx, existing)
		return uc.replay(existing, fingerprint)
	}

	sender, receiver := locked[req.SenderID], locked[receiverID]
	if sender == nil || receiver == nil {
		return nil, newError(KindNotFound, ErrAccountNotFound)
	}

	if err := sender.Debit(req.Amount); err != nil {
		return nil, classify(err)
	}
	if err := receiver.Credit(req.Amount); err != nil {
		return nil, classify(err)
	}

	for _, id := range order {
		if err := tx.Accounts().Save(ctx, locked[id]); err != nil {
			return nil, classify(err)
		}
	}

	txn := entity.NewTransaction(req.SenderID, receiverID, req.Amount, entity.StatusSuccess)
	if err := tx.Transactions().Append(ctx, txn); err != nil {
		return nil, classify(err)
	}

	body, err := json.Marshal(responseCache{
		Message:          successMessage,
		TransactionID:    txn.ID().String(),
		NewSenderBalance: entity.FormatAmount(sender.Balance()),
	})
	if err != nil {
		return nil, classify(err)
	}

	record := entity.NewIdempotencyRecord(req.SenderID, req.IdempotencyKey, fingerprint, http.StatusOK, body)
	if err := tx.Idempotency().Save(ctx, record); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			_ = tx.Rollback(rollbackCtx)
			return uc.resolveConflict(ctx, req, fingerprint)
		}
		return nil, classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err)
	}

	uc.remember(ctx, record)
	uc.logger.InfoContext(ctx, "transfer committed",
		"transaction_id", txn.ID(),
		"sender_id", req.SenderID,
		"receiver_id", receiverID,
		"amount", entity.FormatAmount(req.Amount),
	)

	return &Response{
		TransactionID:    txn.ID().String(),
		NewSenderBalance: sender.Balance(),
		StatusCode:       record.ResponseCode(),
		Body:             body,
	}, nil
}

// resolveConflict returns the result committed by the request that won the
// race for the idempotency key.
func (uc *UseCase) resolveConflict(ctx context.Context, req Request, fingerprint string) (*Response, error) {
	winner, err := uc.uow.Idempotency().Find(ctx, req.SenderID, req.IdempotencyKey)
	if err != nil {
		return nil, classify(err)
	}
	if winner == nil {
		return nil, classify(fmt.Errorf("idempotency key conflict without a committed record: %w", repository.ErrTransient))
	}

	uc.logger.InfoContext(ctx, "idempotency conflict resolved to committed result",
		"sender_id", req.SenderID, "idempotency_key", req.IdempotencyKey)
	uc.remember(ctx, winner)
	return uc.replay(winner, fingerprint)
}

func (uc *UseCase) replay(record *entity.IdempotencyRecord, fingerprint string) (*Response, error) {
	if record.Fingerprint() != fingerprint {
		return nil, newError(KindValidation, ErrIdempotencyMismatch)
	}

	resp, err := parseCache(record.ResponseBody())
	if err != nil {
		return nil, classify(err)
	}
	resp.StatusCode = record.ResponseCode()
	resp.Body = record.ResponseBody()
	resp.Replayed = true
	return resp, nil
}

func (uc *UseCase) remember(ctx context.Context, record *entity.IdempotencyRecord) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Put(ctx, record); err != nil {
		uc.logger.WarnContext(ctx, "idempotency cache write failed", "error", err)
	}
}

func parseCache(body []byte) (*Response, error) {
	var cache responseCache
	if err := json.Unmarshal(body, &cache); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	balance, err := decimal.NewFromString(cache.NewSenderBalance)
	if err != nil {
		return nil, fmt.Errorf("decode stored balance: %w", err)
	}
	return &Response{
		TransactionID:    cache.TransactionID,
		NewSenderBalance: balance,
	}, nil
}

func outcomeOf(resp *Response, err error) string {
	switch {
	case err != nil:
		return string(KindOf(err))
	case resp != nil && resp.Replayed:
		return outcomeReplayed
	default:
		return outcomeSuccess
	}
}
