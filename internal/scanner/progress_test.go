package scanner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"walletscope/internal/ledger"
	"walletscope/internal/model"
)

const testAddress = "0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"

func TestProgressSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	store := NewProgressStore(path, testAddress, 10, nil, nil)

	progress := model.NewScanProgress(10)
	progress.MarkProcessed(10)
	progress.MarkProcessed(12)
	progress.InitialScanCompleted = true

	if err := store.Save(progress); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.LastProcessedBlock != 12 {
		t.Fatalf("watermark %d, want 12", loaded.LastProcessedBlock)
	}
	if !loaded.InitialScanCompleted {
		t.Fatalf("initial scan flag lost")
	}
	if !reflect.DeepEqual(loaded.SortedBlocks(), []uint64{10, 12}) {
		t.Fatalf("processed set %v, want [10 12]", loaded.SortedBlocks())
	}
}

func TestProgressRecordShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	store := NewProgressStore(path, testAddress, 1, nil, nil)

	if err := store.Save(model.NewScanProgress(1)); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var rec map[string]interface{}
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("parse: %v", err)
	}

	for _, key := range []string{"last_processed_block", "processed_blocks", "initial_scan_completed", "start_block", "last_updated", "address"} {
		if _, ok := rec[key]; !ok {
			t.Fatalf("missing key %q in %v", key, rec)
		}
	}
	if rec["address"] != model.NormalizeAddress(testAddress) {
		t.Fatalf("address not normalized: %v", rec["address"])
	}
}

func TestProgressFloorClamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")

	// Record written with an older, lower start block.
	old := NewProgressStore(path, testAddress, 1, nil, nil)
	progress := model.NewScanProgress(1)
	for _, block := range []uint64{3, 4, 90, 120} {
		progress.MarkProcessed(block)
	}
	if err := old.Save(progress); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Reload with a raised floor: entries below it are discarded.
	store := NewProgressStore(path, testAddress, 100, nil, nil)
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !reflect.DeepEqual(loaded.SortedBlocks(), []uint64{120}) {
		t.Fatalf("processed set %v, want [120]", loaded.SortedBlocks())
	}
	if loaded.LastProcessedBlock != 120 {
		t.Fatalf("watermark %d, want 120", loaded.LastProcessedBlock)
	}

	// With nothing processed past the floor, the watermark clamps to
	// startBlock-1.
	empty := NewProgressStore(filepath.Join(t.TempDir(), "p.json"), testAddress, 100, nil, nil)
	fresh, err := empty.Load()
	if err != nil {
		t.Fatalf("load fresh: %v", err)
	}
	if fresh.LastProcessedBlock != 99 {
		t.Fatalf("fresh watermark %d, want 99", fresh.LastProcessedBlock)
	}
}

func TestProgressDerivedFromLedger(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "ledger.csv")
	progressPath := filepath.Join(dir, "progress.json")

	content := ledger.Header + "\n" +
		"100,0xaaa,0xfrom,0xto,0.00000001,21000,5,1700000000,success\n" +
		"garbage line\n" +
		"105,0xbbb,0xfrom,0xto,0.0000001,21000,5,1700000100,success\n"
	if err := os.WriteFile(ledgerPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write ledger: %v", err)
	}

	store := NewProgressStore(progressPath, testAddress, 1, ledger.NewReader(ledgerPath), nil)
	progress, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if progress.LastProcessedBlock != 105 {
		t.Fatalf("derived watermark %d, want 105", progress.LastProcessedBlock)
	}
	if !reflect.DeepEqual(progress.SortedBlocks(), []uint64{100, 105}) {
		t.Fatalf("derived set %v, want [100 105]", progress.SortedBlocks())
	}

	// Derivation persists a record so the next load is direct.
	if _, err := os.Stat(progressPath); err != nil {
		t.Fatalf("derived progress not persisted: %v", err)
	}
}

func TestProgressMissingLedgerAndFile(t *testing.T) {
	dir := t.TempDir()
	store := NewProgressStore(filepath.Join(dir, "progress.json"), testAddress, 1,
		ledger.NewReader(filepath.Join(dir, "ledger.csv")), nil)

	progress, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if progress.LastProcessedBlock != 0 || len(progress.ProcessedBlocks) != 0 {
		t.Fatalf("expected empty progress, got %+v", progress)
	}
}
