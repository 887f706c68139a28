package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpchandler "github.com/Xausdorf/vaultpay/internal/delivery/grpc"
	httpdelivery "github.com/Xausdorf/vaultpay/internal/delivery/http"
	"github.com/Xausdorf/vaultpay/internal/domain/repository"
	"github.com/Xausdorf/vaultpay/internal/infrastructure/config"
	"github.com/Xausdorf/vaultpay/internal/infrastructure/memory"
	"github.com/Xausdorf/vaultpay/internal/infrastructure/metrics"
	"github.com/Xausdorf/vaultpay/internal/infrastructure/postgres"
	"github.com/Xausdorf/vaultpay/internal/infrastructure/redis"
	"github.com/Xausdorf/vaultpay/internal/infrastructure/telemetry"
	"github.com/Xausdorf/vaultpay/internal/usecase/history"
	"github.com/Xausdorf/vaultpay/internal/usecase/transfer"
)

const (
	serviceName           = "vaultpay"
	readHeaderTimeout     = 5 * time.Second
	gracefulShutdownDelay = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	uow, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.ServiceVersion,
		Endpoint:       cfg.OTLPEndpoint,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), gracefulShutdownDelay)
		defer flushCancel()
		if err := tp.Shutdown(flushCtx); err != nil {
			logger.Warn("tracer provider shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []transfer.Option{
		transfer.WithLogger(logger),
		transfer.WithObserver(m),
		transfer.WithTracerProvider(tp),
	}
	if cfg.RedisAddr != "" {
		client, err := redis.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, transfer.WithCache(redis.NewCache(client, cfg.RedisTTL)))
		logger.Info("idempotency cache enabled", "addr", cfg.RedisAddr)
	}

	transferUC := transfer.NewUseCase(uow, opts...)
	historyUC := history.NewUseCase(uow, cfg.HistoryLimit)

	router := httpdelivery.NewRouter(
		httpdelivery.NewHandler(transferUC, historyUC, logger),
		httpdelivery.NewAuthenticator(cfg.JWTSecret),
		m,
		m.Handler(),
	)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	grpcSrv := grpc.NewServer()
	grpchandler.RegisterTransferServiceServer(grpcSrv, grpchandler.NewHandler(transferUC, historyUC, logger))
	reflection.Register(grpcSrv)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC server starting", "addr", cfg.GRPCAddr)
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownDelay)
		defer shutdownCancel()
		grpcSrv.GracefulStop()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.UnitOfWork, func(), error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage, data is lost on exit")
		store := memory.NewStore(memory.WithLockTimeout(cfg.LockTimeout))
		return memory.NewUnitOfWork(store), func() {}, nil
	}

	if cfg.Migrate {
		if err := postgres.Migrate(cfg.DatabaseURL, logger); err != nil {
			return nil, nil, err
		}
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewUnitOfWork(pool, postgres.WithLockTimeout(cfg.LockTimeout)), pool.Close, nil
}
