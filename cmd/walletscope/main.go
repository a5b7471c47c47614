package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"walletscope/internal/chain"
	"walletscope/internal/config"
	"walletscope/internal/ledger"
	"walletscope/internal/scanner"
)

func main() {
	root := &cobra.Command{
		Use:          "walletscope",
		Short:        "Tracked-wallet transaction ledger and statistics",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the chain once, from the resume point to the current head",
		RunE:  runScan,
	}
	addScanFlags(scanCmd)
	root.AddCommand(scanCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the initial scan, then poll for new blocks on an interval",
		RunE:  runWatch,
	}
	addScanFlags(watchCmd)
	watchCmd.Flags().Duration("interval", 60*time.Second, "incremental scan interval")
	root.AddCommand(watchCmd)

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Stream the ledger into categorized statistics and print the report",
		RunE:  runAnalyze,
	}
	addAnalyzeFlags(analyzeCmd)
	root.AddCommand(analyzeCmd)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export per-day statistics to CSV",
		RunE:  runExport,
	}
	addAnalyzeFlags(exportCmd)
	exportCmd.Flags().String("out", "./data/daily.csv", "output CSV path")
	root.AddCommand(exportCmd)

	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Upsert per-day statistics into Postgres",
		RunE:  runPublish,
	}
	addAnalyzeFlags(publishCmd)
	publishCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	root.AddCommand(publishCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().String("address", "", "tracked wallet address")
	cmd.Flags().Uint64("start-block", 1, "lower block bound, never scan before this")
	cmd.Flags().Uint64("batch-size", 1000, "blocks per batch")
	cmd.Flags().Int("concurrency", 20, "concurrent block fetches")
	cmd.Flags().Duration("request-delay", 10*time.Millisecond, "delay between fetch chunks")
	cmd.Flags().Duration("request-timeout", 10*time.Second, "per-RPC-call timeout")
	cmd.Flags().Int("max-retries", 3, "maximum RPC retry attempts")
	cmd.Flags().Duration("retry-backoff", 100*time.Millisecond, "initial retry backoff")
	cmd.Flags().Uint64("max-blocks-per-tick", 100, "incremental scan range cap")
	cmd.Flags().String("ledger", "./data/ledger.csv", "ledger file path")
	cmd.Flags().String("progress", "./data/progress.json", "progress file path")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func addAnalyzeFlags(cmd *cobra.Command) {
	cmd.Flags().String("address", "", "tracked wallet address")
	cmd.Flags().String("agent-address", "", "optional agent address for stake attribution")
	cmd.Flags().String("ledger", "./data/ledger.csv", "ledger file path")
	cmd.Flags().String("stake", "0.00000001", "tier-1 game stake in base units")
	cmd.Flags().Bool("dedupe", false, "drop repeated tx hashes from aggregation")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runScan(cmd *cobra.Command, _ []string) error {
	tracker, _, cleanup, logger, err := buildTracker(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := tracker.RunInitial(ctx)
	if err != nil {
		return err
	}

	logger.Info("scan complete",
		zap.Int("blocks_confirmed", res.BlocksConfirmed),
		zap.Int("blocks_deferred", res.BlocksDeferred),
		zap.Int("txs_appended", res.TxsAppended),
	)
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	tracker, cfg, cleanup, logger, err := buildTracker(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := tracker.RunInitial(ctx)
	if err != nil {
		return err
	}
	logger.Info("initial scan complete",
		zap.Int("blocks_confirmed", res.BlocksConfirmed),
		zap.Int("txs_appended", res.TxsAppended),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	logger.Info("watching", zap.Duration("interval", cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := tracker.RunIncremental(ctx)
			if err != nil {
				// Failed ticks retry on the next interval.
				logger.Warn("incremental scan failed", zap.Error(err))
				continue
			}
			if res.BlocksConfirmed > 0 || res.TxsAppended > 0 {
				logger.Info("incremental scan",
					zap.Int("blocks_confirmed", res.BlocksConfirmed),
					zap.Int("txs_appended", res.TxsAppended),
				)
			}
		}
	}
}

func buildTracker(cmd *cobra.Command) (*scanner.Tracker, config.ScanConfig, func(), *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadScan(cfgFile, cmd.Flags())
	if err != nil {
		return nil, cfg, nil, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, cfg, nil, nil, err
	}

	if cfg.Address == "" {
		return nil, cfg, nil, nil, fmt.Errorf("tracked address is required")
	}
	if cfg.RPCURL == "" {
		return nil, cfg, nil, nil, fmt.Errorf("rpc url is required")
	}

	chainClient, err := chain.NewClient(context.Background(), cfg.RPCURL, chain.Options{
		RequestTimeout: cfg.RequestTimeout,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
	})
	if err != nil {
		return nil, cfg, nil, nil, fmt.Errorf("connect rpc: %w", err)
	}

	ledgerWriter := ledger.NewWriter(cfg.Ledger)
	progressStore := scanner.NewProgressStore(cfg.Progress, cfg.Address, cfg.StartBlock, ledger.NewReader(cfg.Ledger), logger)

	tracker := scanner.NewTracker(scanner.Config{
		Address:          cfg.Address,
		StartBlock:       cfg.StartBlock,
		BatchSize:        cfg.BatchSize,
		Concurrency:      cfg.Concurrency,
		RequestDelay:     cfg.RequestDelay,
		MaxBlocksPerTick: cfg.MaxBlocksPerTick,
	}, chainClient, ledgerWriter, progressStore, logger)

	logger.Info("tracker ready",
		zap.String("address", cfg.Address),
		zap.Uint64("start_block", cfg.StartBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Int("concurrency", cfg.Concurrency),
		zap.String("ledger", cfg.Ledger),
		zap.String("progress", cfg.Progress),
	)

	return tracker, cfg, chainClient.Close, logger, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
