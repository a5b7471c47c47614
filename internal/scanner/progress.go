package scanner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"walletscope/internal/ledger"
	"walletscope/internal/model"
)

type progressRecord struct {
	LastProcessedBlock   uint64   `json:"last_processed_block"`
	ProcessedBlocks      []uint64 `json:"processed_blocks"`
	InitialScanCompleted bool     `json:"initial_scan_completed"`
	StartBlock           uint64   `json:"start_block"`
	LastUpdated          string   `json:"last_updated"`
	Address              string   `json:"address"`
}

// ProgressStore persists scan progress to disk. When the progress file
// is lost it rebuilds the watermark and processed set from the ledger's
// block-number column, so losing only the progress file is recoverable.
type ProgressStore struct {
	path       string
	address    string
	startBlock uint64
	ledger     *ledger.Reader
	logger     *zap.Logger
}

func NewProgressStore(path, address string, startBlock uint64, ledgerReader *ledger.Reader, logger *zap.Logger) *ProgressStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressStore{
		path:       path,
		address:    model.NormalizeAddress(address),
		startBlock: startBlock,
		ledger:     ledgerReader,
		logger:     logger,
	}
}

// Load reads the durable progress record, deriving it from the ledger
// when absent. The start-block floor is enforced on whatever is loaded.
func (s *ProgressStore) Load() (*model.ScanProgress, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.deriveFromLedger()
		}
		return nil, fmt.Errorf("read progress: %w", err)
	}

	var rec progressRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse progress: %w", err)
	}

	progress := model.NewScanProgress(s.startBlock)
	progress.LastProcessedBlock = rec.LastProcessedBlock
	progress.InitialScanCompleted = rec.InitialScanCompleted
	for _, block := range rec.ProcessedBlocks {
		progress.ProcessedBlocks[block] = struct{}{}
	}
	progress.ClampToStart()

	return progress, nil
}

// Save rewrites the progress record atomically (tmp file + rename).
func (s *ProgressStore) Save(progress *model.ScanProgress) error {
	progress.ClampToStart()

	rec := progressRecord{
		LastProcessedBlock:   progress.LastProcessedBlock,
		ProcessedBlocks:      progress.SortedBlocks(),
		InitialScanCompleted: progress.InitialScanCompleted,
		StartBlock:           progress.StartBlock,
		LastUpdated:          time.Now().UTC().Format(time.RFC3339Nano),
		Address:              s.address,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create progress dir: %w", err)
		}
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write progress tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename progress: %w", err)
	}

	return nil
}

// deriveFromLedger rebuilds progress from ledger block numbers. Gap
// analysis here is best-effort: every block present in the ledger is
// treated as processed, and the watermark is the highest one seen.
func (s *ProgressStore) deriveFromLedger() (*model.ScanProgress, error) {
	progress := model.NewScanProgress(s.startBlock)
	if s.ledger == nil {
		return progress, nil
	}

	err := s.ledger.Each(func(row ledger.Row) error {
		if row.Err != nil {
			return nil
		}
		progress.MarkProcessed(row.Tx.BlockNumber)
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, ledger.ErrEmpty) {
			return progress, nil
		}
		return nil, fmt.Errorf("derive progress from ledger: %w", err)
	}

	progress.ClampToStart()
	s.logger.Info("progress derived from ledger",
		zap.Uint64("last_processed", progress.LastProcessedBlock),
		zap.Int("processed_blocks", len(progress.ProcessedBlocks)),
	)

	// Persist immediately so subsequent loads skip the full ledger scan.
	if err := s.Save(progress); err != nil {
		return nil, err
	}
	return progress, nil
}
