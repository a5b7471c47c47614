package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"walletscope/internal/analyze"
	"walletscope/internal/storage/postgres"
)

func runExport(cmd *cobra.Command, _ []string) error {
	stats, logger, cfg, err := runAnalysis(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := analyze.ExportDailyCSV(stats, cfg.Out); err != nil {
		return err
	}

	logger.Info("export complete", zap.String("out", cfg.Out), zap.Int("days", len(stats.Days)))
	return nil
}

func runPublish(cmd *cobra.Command, _ []string) error {
	stats, logger, cfg, err := runAnalysis(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.UpsertDailyStats(ctx, stats.Address, stats.Days); err != nil {
		return fmt.Errorf("upsert daily stats: %w", err)
	}

	logger.Info("publish complete",
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("days", len(stats.Days)),
	)
	return nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
