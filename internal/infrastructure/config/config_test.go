package config_test

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xausdorf/vaultpay/internal/infrastructure/config"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENCRYPTION_KEY", strings.Repeat("ab", 32))
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.StoragePostgres, cfg.Storage)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.True(t, cfg.Migrate)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 24*time.Hour, cfg.RedisTTL)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Empty(t, cfg.OTLPEndpoint)
	assert.Equal(t, "dev", cfg.ServiceVersion)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE", "Memory")
	t.Setenv("MIGRATE", "false")
	t.Setenv("LOCK_TIMEOUT", "250ms")
	t.Setenv("HISTORY_LIMIT", "20")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317")
	t.Setenv("SERVICE_VERSION", "1.2.0")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.StorageMemory, cfg.Storage)
	assert.False(t, cfg.Migrate)
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "otel-collector:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "1.2.0", cfg.ServiceVersion)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		wants string
	}{
		{name: "missing secret", env: map[string]string{"JWT_SECRET": ""}, wants: "JWT_SECRET"},
		{name: "short key", env: map[string]string{"ENCRYPTION_KEY": "abcd"}, wants: "ENCRYPTION_KEY"},
		{name: "storage", env: map[string]string{"STORAGE": "sqlite"}, wants: "STORAGE"},
		{name: "timeout", env: map[string]string{"LOCK_TIMEOUT": "soon"}, wants: "LOCK_TIMEOUT"},
		{name: "limit", env: map[string]string{"HISTORY_LIMIT": "0"}, wants: "HISTORY_LIMIT"},
		{name: "level", env: map[string]string{"LOG_LEVEL": "loud"}, wants: "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wants)
		})
	}
}
