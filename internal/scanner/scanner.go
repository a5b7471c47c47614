package scanner

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletscope/internal/ledger"
	"walletscope/internal/model"
)

// ChainClient is the read-only RPC surface the tracker needs.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*types.Block, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Config holds runtime settings for the tracker.
type Config struct {
	Address          string
	StartBlock       uint64
	BatchSize        uint64
	Concurrency      int
	RequestDelay     time.Duration
	MaxBlocksPerTick uint64
}

// Result summarizes one scan invocation.
type Result struct {
	BlocksConfirmed int
	BlocksDeferred  int
	TxsAppended     int
}

// Tracker walks block ranges for a single tracked address, appends
// matching transactions to the ledger, and commits progress after each
// batch. All dependencies are explicit; there is no package state.
type Tracker struct {
	cfg      Config
	chain    ChainClient
	ledger   *ledger.Writer
	progress *ProgressStore
	logger   *zap.Logger

	address string
	signer  types.Signer
	prog    *model.ScanProgress
}

// NewTracker builds a Tracker with its dependencies.
func NewTracker(cfg Config, chainClient ChainClient, ledgerWriter *ledger.Writer, progressStore *ProgressStore, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 20
	}
	if cfg.MaxBlocksPerTick == 0 {
		cfg.MaxBlocksPerTick = 100
	}
	if cfg.StartBlock == 0 {
		cfg.StartBlock = 1
	}
	return &Tracker{
		cfg:      cfg,
		chain:    chainClient,
		ledger:   ledgerWriter,
		progress: progressStore,
		logger:   logger,
		address:  model.NormalizeAddress(cfg.Address),
	}
}

func (t *Tracker) init(ctx context.Context) error {
	if t.address == "" {
		return fmt.Errorf("tracked address is required")
	}
	if t.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if t.ledger == nil {
		return fmt.Errorf("ledger writer is nil")
	}
	if t.progress == nil {
		return fmt.Errorf("progress store is nil")
	}

	if t.signer == nil {
		chainID, err := t.chain.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("get chain id: %w", err)
		}
		t.signer = types.LatestSignerForChainID(chainID)
	}

	if t.prog == nil {
		prog, err := t.progress.Load()
		if err != nil {
			return err
		}
		t.prog = prog
	}

	return t.ledger.EnsureInitialized()
}

// RunInitial scans from the resume point to the current chain head and
// marks the initial scan completed. Intended to run once at startup.
func (t *Tracker) RunInitial(ctx context.Context) (Result, error) {
	if err := t.init(ctx); err != nil {
		return Result{}, err
	}

	head, err := t.chain.LatestBlockNumber(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("get latest block: %w", err)
	}

	from := t.prog.LastProcessedBlock + 1
	res, err := t.ScanRange(ctx, from, head)
	if err != nil {
		return res, err
	}

	t.prog.InitialScanCompleted = true
	if err := t.progress.Save(t.prog); err != nil {
		return res, err
	}
	return res, nil
}

// RunIncremental scans only new blocks since the watermark, capped at
// MaxBlocksPerTick to bound tick latency.
func (t *Tracker) RunIncremental(ctx context.Context) (Result, error) {
	if err := t.init(ctx); err != nil {
		return Result{}, err
	}

	head, err := t.chain.LatestBlockNumber(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("get latest block: %w", err)
	}

	from := t.prog.LastProcessedBlock + 1
	if from > head {
		return Result{}, nil
	}
	to := head
	if to-from+1 > t.cfg.MaxBlocksPerTick {
		to = from + t.cfg.MaxBlocksPerTick - 1
	}

	return t.ScanRange(ctx, from, to)
}

// ScanRange walks [from, to] in batches. Ledger append happens before
// the progress commit, so a crash between the two re-appends nothing on
// retry (the blocks are simply rescanned and their records skipped by
// the processed set).
func (t *Tracker) ScanRange(ctx context.Context, from, to uint64) (Result, error) {
	if err := t.init(ctx); err != nil {
		return Result{}, err
	}

	if from < t.cfg.StartBlock {
		from = t.cfg.StartBlock
	}
	if from > to {
		t.logger.Info("nothing to scan", zap.Uint64("from", from), zap.Uint64("to", to))
		return Result{}, nil
	}

	ranges, err := SplitRange(from, to, t.cfg.BatchSize)
	if err != nil {
		return Result{}, err
	}

	var total Result
	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		pending := make([]uint64, 0, blockRange.To-blockRange.From+1)
		for n := blockRange.From; n <= blockRange.To; n++ {
			if t.prog.IsProcessed(n) {
				continue
			}
			pending = append(pending, n)
		}
		if len(pending) == 0 {
			continue
		}

		t.logger.Info("scan batch",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Int("pending", len(pending)),
		)

		results := t.fetchBlocks(ctx, pending)

		batchTxs := make([]model.NormalizedTransaction, 0)
		confirmed := make([]uint64, 0, len(results))
		for _, res := range results {
			if res.err != nil {
				// Deferred: not marked processed, retried next scan.
				total.BlocksDeferred++
				t.logger.Warn("block deferred", zap.Uint64("block", res.number), zap.Error(res.err))
				continue
			}
			batchTxs = append(batchTxs, res.txs...)
			confirmed = append(confirmed, res.number)
		}

		if err := t.ledger.Append(batchTxs); err != nil {
			return total, fmt.Errorf("append ledger: %w", err)
		}
		for _, n := range confirmed {
			t.prog.MarkProcessed(n)
		}
		if err := t.progress.Save(t.prog); err != nil {
			return total, err
		}

		total.BlocksConfirmed += len(confirmed)
		total.TxsAppended += len(batchTxs)

		t.logger.Info("batch complete",
			zap.Int("confirmed", len(confirmed)),
			zap.Int("txs", len(batchTxs)),
			zap.Uint64("watermark", t.prog.LastProcessedBlock),
		)
	}

	return total, nil
}

type blockResult struct {
	number uint64
	txs    []model.NormalizedTransaction
	err    error
}

// fetchBlocks processes blocks with bounded fan-out, collecting every
// outcome (success or failure) before returning. Chunks of Concurrency
// blocks run at once, with a small delay between chunks to keep the RPC
// endpoint from being overwhelmed.
func (t *Tracker) fetchBlocks(ctx context.Context, numbers []uint64) []blockResult {
	results := make([]blockResult, len(numbers))

	for start := 0; start < len(numbers); start += t.cfg.Concurrency {
		end := start + t.cfg.Concurrency
		if end > len(numbers) {
			end = len(numbers)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				txs, err := t.processBlock(ctx, numbers[idx])
				results[idx] = blockResult{number: numbers[idx], txs: txs, err: err}
			}(i)
		}
		wg.Wait()

		if end < len(numbers) && t.cfg.RequestDelay > 0 {
			timer := time.NewTimer(t.cfg.RequestDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				for i := end; i < len(numbers); i++ {
					results[i] = blockResult{number: numbers[i], err: ctx.Err()}
				}
				return results
			case <-timer.C:
			}
		}
	}

	return results
}

// processBlock fetches one block, filters its transactions to those
// touching the tracked address, and resolves each match's receipt.
func (t *Tracker) processBlock(ctx context.Context, number uint64) ([]model.NormalizedTransaction, error) {
	block, err := t.chain.BlockByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("fetch block: %w", err)
	}
	if block == nil {
		return nil, fmt.Errorf("block %d not found", number)
	}

	var matched []model.NormalizedTransaction
	for _, tx := range block.Transactions() {
		var to string
		if tx.To() != nil {
			to = model.NormalizeAddress(tx.To().Hex())
		}

		from, err := types.Sender(t.signer, tx)
		if err != nil {
			return nil, fmt.Errorf("recover sender %s: %w", tx.Hash().Hex(), err)
		}
		fromAddr := model.NormalizeAddress(from.Hex())

		if to != t.address && fromAddr != t.address {
			continue
		}

		receipt, err := t.chain.TransactionReceipt(ctx, tx.Hash())
		if err != nil {
			return nil, fmt.Errorf("fetch receipt %s: %w", tx.Hash().Hex(), err)
		}
		if receipt == nil {
			return nil, fmt.Errorf("receipt %s not found", tx.Hash().Hex())
		}

		matched = append(matched, buildTransaction(tx, fromAddr, to, receipt, block.NumberU64(), block.Time()))
	}

	return matched, nil
}

func buildTransaction(tx *types.Transaction, from, to string, receipt *types.Receipt, blockNumber, timestamp uint64) model.NormalizedTransaction {
	status := model.StatusUnknown
	switch receipt.Status {
	case types.ReceiptStatusSuccessful:
		status = model.StatusSuccess
	case types.ReceiptStatusFailed:
		status = model.StatusFailed
	}

	var gasPrice uint64
	if tx.GasPrice() != nil && tx.GasPrice().IsUint64() {
		gasPrice = tx.GasPrice().Uint64()
	}

	return model.NormalizedTransaction{
		BlockNumber: blockNumber,
		TxHash:      tx.Hash().Hex(),
		From:        from,
		To:          to,
		// Wei to base units with full precision, no float rounding.
		Value:     decimal.NewFromBigInt(tx.Value(), -18),
		GasUsed:   receipt.GasUsed,
		GasPrice:  gasPrice,
		Timestamp: timestamp,
		Status:    status,
	}
}
