package analyze

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExportDailyCSV(t *testing.T) {
	path := writeLedger(t,
		row(100, "0xa1", user, tracked, "0.00000001", tsJan9, "success"),
		row(101, "0xa2", user, tracked, "0.000005", tsJan2, "success"),
		row(102, "0xa3", tracked, user, "0.0000005", tsJan9, "success"),
	)

	stats, err := newTestAnalyzer(path, false).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	out := filepath.Join(t.TempDir(), "daily.csv")
	if err := ExportDailyCSV(stats, out); err != nil {
		t.Fatalf("export: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 day rows, got %d lines", len(lines))
	}
	if lines[0] != strings.Join(csvHeader, ",") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	// Rows are sorted by date.
	if !strings.HasPrefix(lines[1], "2024-01-02,") || !strings.HasPrefix(lines[2], "2024-01-09,") {
		t.Fatalf("rows out of date order: %v", lines[1:])
	}

	jan9 := strings.Split(lines[2], ",")
	if len(jan9) != len(csvHeader) {
		t.Fatalf("row has %d columns, want %d", len(jan9), len(csvHeader))
	}
	// stake_a_user_count and payouts_count for 2024-01-09.
	if jan9[3] != "1" || jan9[14] != "1" {
		t.Fatalf("unexpected counters in row: %v", jan9)
	}
}

func TestRenderReportVerificationSection(t *testing.T) {
	path := writeLedger(t,
		row(100, "0xabc", user, tracked, "0.00000001", tsJan9, "success"),
		row(100, "0xabc", user, tracked, "0.00000001", tsJan9, "success"),
	)

	stats, err := newTestAnalyzer(path, false).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	report := RenderReport(stats)
	if !strings.Contains(report, "duplicate hashes") {
		t.Fatalf("report missing duplicate warning:\n%s", report)
	}
	if !strings.Contains(report, "all windows balance") {
		t.Fatalf("report missing completeness line:\n%s", report)
	}
}
