package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"walletscope/internal/analyze"
	"walletscope/internal/config"
	"walletscope/internal/ledger"
)

func runAnalyze(cmd *cobra.Command, _ []string) error {
	stats, logger, _, err := runAnalysis(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	fmt.Print(analyze.RenderReport(stats))
	return nil
}

// runAnalysis wires the analyzer from flags and executes it; shared by
// analyze, export, and publish.
func runAnalysis(cmd *cobra.Command) (*analyze.Statistics, *zap.Logger, config.AnalyzeConfig, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAnalyze(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, cfg, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, cfg, err
	}

	if cfg.Address == "" {
		return nil, nil, cfg, fmt.Errorf("tracked address is required")
	}

	stake, err := decimal.NewFromString(cfg.Stake)
	if err != nil {
		return nil, nil, cfg, fmt.Errorf("invalid stake: %w", err)
	}
	if !stake.IsPositive() {
		return nil, nil, cfg, fmt.Errorf("stake must be positive")
	}

	analyzer := analyze.NewAnalyzer(analyze.Config{
		Address:      cfg.Address,
		AgentAddress: cfg.AgentAddress,
		Stake:        stake,
		Dedupe:       cfg.Dedupe,
	}, ledger.NewReader(cfg.Ledger), logger)

	logger.Info("analyze start",
		zap.String("address", cfg.Address),
		zap.String("ledger", cfg.Ledger),
		zap.String("stake", stake.String()),
		zap.Bool("dedupe", cfg.Dedupe),
	)

	stats, err := analyzer.Run()
	if err != nil {
		logger.Sync()
		return nil, nil, cfg, err
	}

	return stats, logger, cfg, nil
}
