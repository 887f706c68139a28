package telemetry_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Xausdorf/vaultpay/internal/infrastructure/telemetry"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewTracerProvider_SpansCarryServiceResource(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		ServiceName:    "vaultpay",
		ServiceVersion: "test",
	}, discard(), sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(ctx, "op")
	span.End()
	require.NoError(t, tp.Shutdown(ctx))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "op", spans[0].Name())
	assert.Contains(t, spans[0].Resource().Attributes(), attribute.String("service.name", "vaultpay"))
	assert.Contains(t, spans[0].Resource().Attributes(), attribute.String("service.version", "test"))
}

func TestNewTracerProvider_WithEndpoint(t *testing.T) {
	ctx := context.Background()

	// The exporter connects lazily, so construction succeeds without a collector.
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		ServiceName: "vaultpay",
		Endpoint:    "127.0.0.1:4317",
	}, discard())
	require.NoError(t, err)
	assert.NotNil(t, tp.Tracer("test"))

	shutdownCtx, cancel := context.WithCancel(ctx)
	cancel()
	_ = tp.Shutdown(shutdownCtx)
}
