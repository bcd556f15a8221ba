package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/group-matcher/internal/application"
	"github.com/example/group-matcher/internal/config"
	"github.com/example/group-matcher/internal/logging"
	"github.com/example/group-matcher/internal/persistence/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New("info", "production")
		fallback.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithLogger(ctx, logger)

	storage, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := storage.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	matcher := application.NewMatchService(storage, storage, logger, time.Now)

	logger.Info("matcher started", "env", cfg.Environment, "sweep_interval", cfg.SweepInterval.String())

	if counts, err := matcher.Stats(ctx); err == nil {
		logger.Info("event counts", "open", counts["open"], "matched", counts["matched"], "expired", counts["expired"], "cancelled", counts["cancelled"])
	}

	if _, err := matcher.Sweep(ctx); err != nil {
		logger.Error("initial sweep failed", "error", err)
	}
	matcher.Run(ctx, cfg.SweepInterval)

	logger.Info("matcher stopped")
}
