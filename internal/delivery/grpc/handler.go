package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"strconv"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
	"github.com/Xausdorf/vaultpay/internal/domain/repository"
	"github.com/Xausdorf/vaultpay/internal/usecase/history"
	"github.com/Xausdorf/vaultpay/internal/usecase/transfer"
)

// Handler serves the internal transfer API. Callers are trusted services, so
// the sender is a request field rather than a verified token.
//
// Transfer request:  {sender_id, receiver, amount, idempotency_key}
// Transfer response: the stored result body as a struct.
// ListTransactions request:  {account_id, limit}
// ListTransactions response: {transactions: [{transaction_id, direction, counterparty, amount, status, created_at}]}
type Handler struct {
	transferUC *transfer.UseCase
	historyUC  *history.UseCase
	logger     *slog.Logger
}

func NewHandler(transferUC *transfer.UseCase, historyUC *history.UseCase, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{transferUC: transferUC, historyUC: historyUC, logger: logger}
}

func (h *Handler) Transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	senderID, err := uuid.Parse(fields["sender_id"].GetStringValue())
	if err != nil {
		return nil, kindError(ctx, transfer.KindValidation, codes.InvalidArgument, "invalid sender_id")
	}

	amount, err := entity.ParseAmount(decimalText(fields["amount"]))
	if err != nil {
		return nil, kindError(ctx, transfer.KindValidation, codes.InvalidArgument, err.Error())
	}

	resp, err := h.transferUC.Execute(ctx, transfer.Request{
		IdempotencyKey: fields["idempotency_key"].GetStringValue(),
		SenderID:       senderID,
		Receiver:       fields["receiver"].GetStringValue(),
		Amount:         amount,
	})
	if err != nil {
		kind := transfer.KindOf(err)
		return nil, kindError(ctx, kind, codeFor(kind), err.Error())
	}

	if resp.Replayed {
		if err := grpc.SetHeader(ctx, metadata.Pairs(ReplayedHeader, "true")); err != nil {
			h.logger.WarnContext(ctx, "set replay header failed", "error", err)
		}
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, status.Error(codes.Internal, "stored response is not an object")
	}
	out, err := structpb.NewStruct(body)
	if err != nil {
		return nil, status.Error(codes.Internal, "stored response cannot be encoded")
	}
	return out, nil
}

func (h *Handler) ListTransactions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	accountID, err := uuid.Parse(fields["account_id"].GetStringValue())
	if err != nil {
		return nil, kindError(ctx, transfer.KindValidation, codes.InvalidArgument, "invalid account_id")
	}
	limit, err := limitFrom(fields["limit"])
	if err != nil {
		return nil, kindError(ctx, transfer.KindValidation, codes.InvalidArgument, err.Error())
	}

	entries, err := h.historyUC.List(ctx, accountID, limit)
	switch {
	case errors.Is(err, history.ErrAccountNotFound):
		return nil, kindError(ctx, transfer.KindNotFound, codes.NotFound, err.Error())
	case errors.Is(err, repository.ErrTransient):
		return nil, kindError(ctx, transfer.KindTransient, codes.Unavailable, "history is temporarily unavailable")
	case err != nil:
		h.logger.ErrorContext(ctx, "list transactions failed", "account_id", accountID, "error", err)
		return nil, kindError(ctx, transfer.KindInternal, codes.Internal, "internal error")
	}

	items := make([]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{
			"transaction_id": e.TransactionID.String(),
			"direction":      string(e.Direction),
			"counterparty":   e.Counterparty.String(),
			"amount":         entity.FormatAmount(e.Amount),
			"status":         string(e.Status),
			"created_at":     e.CreatedAt.Format(timeLayout),
		})
	}
	out, err := structpb.NewStruct(map[string]any{"transactions": items})
	if err != nil {
		return nil, status.Error(codes.Internal, "history cannot be encoded")
	}
	return out, nil
}

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// limitFrom accepts an absent limit as zero and otherwise a whole number in
// [0, math.MaxInt32].
func limitFrom(v *structpb.Value) (int, error) {
	n := v.GetNumberValue()
	switch {
	case math.IsNaN(n) || math.IsInf(n, 0):
		return 0, errors.New("limit must be a finite number")
	case n < 0:
		return 0, errors.New("limit must not be negative")
	case n > math.MaxInt32:
		return 0, errors.New("limit is too large")
	case n != math.Trunc(n):
		return 0, errors.New("limit must be a whole number")
	}
	return int(n), nil
}

// decimalText accepts the amount as a string or a number value.
func decimalText(v *structpb.Value) string {
	if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return strconv.FormatFloat(n.NumberValue, 'f', -1, 64)
	}
	return v.GetStringValue()
}

func kindError(ctx context.Context, kind transfer.Kind, code codes.Code, msg string) error {
	_ = grpc.SetTrailer(ctx, metadata.Pairs(ErrorKindTrailer, string(kind)))
	return status.Error(code, msg)
}

func codeFor(kind transfer.Kind) codes.Code {
	switch kind {
	case transfer.KindValidation, transfer.KindSameAccount:
		return codes.InvalidArgument
	case transfer.KindNotFound:
		return codes.NotFound
	case transfer.KindInsufficientFunds:
		return codes.FailedPrecondition
	case transfer.KindTransient:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
