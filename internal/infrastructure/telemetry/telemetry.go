// Package telemetry builds the OpenTelemetry tracer provider. Spans are
// exported over OTLP/gRPC when a collector endpoint is configured and dropped
// otherwise.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is the OTLP/gRPC collector address, e.g. "otel-collector:4317".
	// Empty disables export.
	Endpoint string
}

func (c Config) resource() *sdkresource.Resource {
	return sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(c.ServiceVersion),
		semconv.TelemetrySDKLanguageGo,
	)
}

// NewTracerProvider returns a provider the caller must Shutdown. Extra
// options are applied after the exporter, so tests can add span processors.
func NewTracerProvider(ctx context.Context, cfg Config, logger *slog.Logger, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	base := []sdktrace.TracerProviderOption{sdktrace.WithResource(cfg.resource())}

	if cfg.Endpoint == "" {
		logger.Warn("trace export disabled, OTEL_EXPORTER_OTLP_ENDPOINT is empty")
	} else {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		base = append(base, sdktrace.WithBatcher(exporter))
		logger.Info("trace export enabled", "endpoint", cfg.Endpoint)
	}

	return sdktrace.NewTracerProvider(append(base, opts...)...), nil
}
