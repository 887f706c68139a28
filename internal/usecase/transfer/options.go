package transfer

//go:generate mockgen -source=options.go -destination=mocks/options_mock.go -package=mocks

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
)

// ResultCache is a read-through cache of committed idempotency records.
type ResultCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, accountID uuid.UUID, key string) (*entity.IdempotencyRecord, error)
	Put(ctx context.Context, record *entity.IdempotencyRecord) error
}

// Observer receives one call per Execute with the outcome label.
type Observer interface {
	ObserveTransfer(outcome string, elapsed time.Duration)
}

type Option func(*UseCase)

func WithLogger(logger *slog.Logger) Option {
	return func(uc *UseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func WithCache(cache ResultCache) Option {
	return func(uc *UseCase) {
		uc.cache = cache
	}
}

func WithObserver(observer Observer) Option {
	return func(uc *UseCase) {
		uc.observer = observer
	}
}

// WithTracerProvider records one span per Execute with the outcome label and,
// for transient and internal failures, an error status.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(uc *UseCase) {
		if tp != nil {
			uc.tracer = tp.Tracer(tracerName)
		}
	}
}

type nopObserver struct{}

func (nopObserver) ObserveTransfer(string, time.Duration) {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
