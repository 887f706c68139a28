package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Xausdorf/vaultpay/internal/infrastructure/config"
	"github.com/Xausdorf/vaultpay/internal/infrastructure/postgres"
	"github.com/Xausdorf/vaultpay/internal/infrastructure/vault"
	"github.com/Xausdorf/vaultpay/internal/usecase/provision"
)

type options struct {
	count      int
	balance    string
	prefix     string
	out        string
	identifier string
	remove     string
}

func main() {
	var o options
	flag.IntVar(&o.count, "count", 1000, "number of accounts to create")
	flag.StringVar(&o.balance, "balance", "100.00", "opening balance of every account")
	flag.StringVar(&o.prefix, "prefix", "bench", "email local-part prefix")
	flag.StringVar(&o.out, "out", "accounts.txt", "file receiving one account id per line")
	flag.StringVar(&o.identifier, "identifier", "", "print the decrypted identifier of this account id and exit")
	flag.StringVar(&o.remove, "remove", "", "delete this account id if it never took part in a transfer, then exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(logger, o); err != nil {
		logger.Error("seeder failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, o options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cipher, err := vault.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if cfg.Migrate {
		if err := postgres.Migrate(cfg.DatabaseURL, logger); err != nil {
			return err
		}
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	uc := provision.NewUseCase(postgres.NewUnitOfWork(pool, postgres.WithLockTimeout(cfg.LockTimeout)), cipher, logger)

	switch {
	case o.identifier != "":
		return showIdentifier(ctx, uc, o.identifier, os.Stdout)
	case o.remove != "":
		return removeAccount(ctx, uc, o.remove)
	}
	return seed(ctx, uc, logger, o)
}

func showIdentifier(ctx context.Context, uc *provision.UseCase, rawID string, w io.Writer) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid -identifier: %w", err)
	}
	identifier, err := uc.Identifier(ctx, id)
	if err != nil {
		return fmt.Errorf("account %s: %w", id, err)
	}
	_, err = fmt.Fprintln(w, identifier)
	return err
}

func removeAccount(ctx context.Context, uc *provision.UseCase, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid -remove: %w", err)
	}
	if err := uc.Remove(ctx, id); err != nil {
		if errors.Is(err, provision.ErrAccountInUse) {
			return fmt.Errorf("account %s has ledger entries and is kept: %w", id, err)
		}
		return fmt.Errorf("account %s: %w", id, err)
	}
	return nil
}

func seed(ctx context.Context, uc *provision.UseCase, logger *slog.Logger, o options) error {
	opening, err := decimal.NewFromString(o.balance)
	if err != nil {
		return fmt.Errorf("invalid -balance: %w", err)
	}

	f, err := os.Create(o.out)
	if err != nil {
		return fmt.Errorf("create %s: %w", o.out, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	runID := time.Now().UnixNano()
	for i := range o.count {
		account, err := uc.Provision(ctx, provision.Request{
			Email:          fmt.Sprintf("%s-%d-%d@vaultpay.test", o.prefix, runID, i),
			OpeningBalance: opening,
			Identifier:     fmt.Sprintf("%011d", i),
		})
		if err != nil {
			return fmt.Errorf("provision account %d: %w", i, err)
		}
		if _, err := fmt.Fprintln(w, account.ID()); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	logger.Info("seeded accounts", "count", o.count, "balance", o.balance, "out", o.out)
	return nil
}
