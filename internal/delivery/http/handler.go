package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
	"github.com/Xausdorf/vaultpay/internal/domain/repository"
	"github.com/Xausdorf/vaultpay/internal/usecase/history"
	"github.com/Xausdorf/vaultpay/internal/usecase/transfer"
)

const (
	maxBodyBytes      = 1 << 16
	replayedHeader    = "Idempotent-Replayed"
	idempotencyHeader = "Idempotency-Key"
)

type Handler struct {
	transferUC *transfer.UseCase
	historyUC  *history.UseCase
	logger     *slog.Logger
}

func NewHandler(transferUC *transfer.UseCase, historyUC *history.UseCase, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		transferUC: transferUC,
		historyUC:  historyUC,
		logger:     logger,
	}
}

type TransferRequest struct {
	Receiver      string `json:"receiver"`
	ReceiverEmail string `json:"receiver_email"`
	// Amount is a decimal string; a bare JSON number is accepted too.
	Amount         json.RawMessage `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type ErrorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type HistoryItem struct {
	TransactionID string    `json:"transaction_id"`
	Direction     string    `json:"direction"`
	Counterparty  string    `json:"counterparty"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type HistoryResponse struct {
	Transactions []HistoryItem `json:"transactions"`
}

func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	senderID, ok := senderFrom(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized", "invalid or missing token")
		return
	}

	var req TransferRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, string(transfer.KindValidation), "invalid json")
		return
	}

	amount, err := entity.ParseAmount(strings.Trim(string(req.Amount), `"`))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, string(transfer.KindValidation), err.Error())
		return
	}

	receiver := req.Receiver
	if receiver == "" {
		receiver = req.ReceiverEmail
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get(idempotencyHeader)
	}

	resp, err := h.transferUC.Execute(r.Context(), transfer.Request{
		IdempotencyKey: key,
		SenderID:       senderID,
		Receiver:       receiver,
		Amount:         amount,
	})
	if err != nil {
		h.writeTransferError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Replayed {
		w.Header().Set(replayedHeader, "true")
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := senderFrom(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized", "invalid or missing token")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, string(transfer.KindValidation), "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.historyUC.List(r.Context(), accountID, limit)
	switch {
	case errors.Is(err, history.ErrAccountNotFound):
		writeJSONError(w, http.StatusNotFound, string(transfer.KindNotFound), err.Error())
		return
	case errors.Is(err, repository.ErrTransient):
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusServiceUnavailable, string(transfer.KindTransient), "history is temporarily unavailable")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "history failed", "account_id", accountID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, string(transfer.KindInternal), "internal error")
		return
	}

	out := HistoryResponse{Transactions: make([]HistoryItem, 0, len(entries))}
	for _, e := range entries {
		out.Transactions = append(out.Transactions, HistoryItem{
			TransactionID: e.TransactionID.String(),
			Direction:     string(e.Direction),
			Counterparty:  e.Counterparty.String(),
			Amount:        entity.FormatAmount(e.Amount),
			Status:        string(e.Status),
			CreatedAt:     e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeTransferError(w http.ResponseWriter, err error) {
	kind := transfer.KindOf(err)
	code := statusFor(kind)
	if kind == transfer.KindTransient {
		w.Header().Set("Retry-After", "1")
	}
	writeJSONError(w, code, string(kind), err.Error())
}

func statusFor(kind transfer.Kind) int {
	switch kind {
	case transfer.KindValidation, transfer.KindSameAccount:
		return http.StatusBadRequest
	case transfer.KindNotFound:
		return http.StatusNotFound
	case transfer.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case transfer.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, ErrorResponse{Kind: kind, Error: msg})
}
