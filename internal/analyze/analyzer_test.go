package analyze

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"walletscope/internal/ledger"
)

const (
	tracked = "0xcccccccccccccccccccccccccccccccccccccccc"
	agent   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	user    = "0x1111111111111111111111111111111111111111"
	user2   = "0x2222222222222222222222222222222222222222"
)

// Fixed analysis clock: 2024-01-10 12:00 UTC. Yesterday, the most
// recent complete day, is 2024-01-09.
var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

// Unix timestamps used by fixtures.
var (
	tsJan9  = time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC).Unix()
	tsJan2  = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC).Unix()
	tsDec20 = time.Date(2023, 12, 20, 10, 0, 0, 0, time.UTC).Unix()
	tsDec1  = time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC).Unix()
	tsToday = time.Date(2024, 1, 10, 1, 0, 0, 0, time.UTC).Unix()
)

func row(block int, hash, from, to, value string, ts int64, status string) string {
	return fmt.Sprintf("%d,%s,%s,%s,%s,21000,5000000000,%d,%s", block, hash, from, to, value, ts, status)
}

func writeLedger(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.csv")
	content := ledger.Header + "\n" + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write ledger fixture: %v", err)
	}
	return path
}

func newTestAnalyzer(path string, dedupe bool) *Analyzer {
	return NewAnalyzer(Config{
		Address:      tracked,
		AgentAddress: agent,
		Dedupe:       dedupe,
		Now:          func() time.Time { return testNow },
	}, ledger.NewReader(path), nil)
}

func TestCategorizationScenario(t *testing.T) {
	// One 1-sat stake, one 10-sat stake, one top-up, one payout, all
	// on the last complete day.
	path := writeLedger(t,
		row(100, "0xa1", user, tracked, "0.00000001", tsJan9, "success"),
		row(101, "0xa2", user, tracked, "0.0000001", tsJan9, "success"),
		row(102, "0xa3", user2, tracked, "0.000005", tsJan9, "success"),
		row(103, "0xa4", tracked, user, "0.0000005", tsJan9, "success"),
	)

	stats, err := newTestAnalyzer(path, false).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	all := stats.AllTime()
	if all.StakeAUser.Count != 2 {
		t.Fatalf("stake A count = %d, want 2 (tier-1 + tier-2)", all.StakeAUser.Count)
	}
	if all.StakeB.Count != 0 {
		t.Fatalf("stake B count = %d, want 0", all.StakeB.Count)
	}
	if all.TopUps.Count != 1 {
		t.Fatalf("top-up count = %d, want 1", all.TopUps.Count)
	}
	if all.Payouts.Count != 1 || all.Payouts.TotalAmount.String() != "0.0000005" {
		t.Fatalf("payouts = %d/%s, want 1/0.0000005", all.Payouts.Count, all.Payouts.TotalAmount)
	}
	if all.AllIncoming.Count != 3 {
		t.Fatalf("all incoming count = %d, want 3", all.AllIncoming.Count)
	}

	wantTotal := decimal.RequireFromString("0.00000511")
	if !all.AllIncoming.TotalAmount.Equal(wantTotal) {
		t.Fatalf("all incoming total = %s, want %s", all.AllIncoming.TotalAmount, wantTotal)
	}
	if !all.Drift().IsZero() {
		t.Fatalf("categorization drift %s, want 0", all.Drift())
	}

	if len(stats.TopUpDetails) != 1 || stats.TopUpDetails[0].TxHash != "0xa3" {
		t.Fatalf("top-up details = %+v, want one row for 0xa3", stats.TopUpDetails)
	}
	if all.AllIncoming.UniqueWallets() != 2 {
		t.Fatalf("unique incoming wallets = %d, want 2", all.AllIncoming.UniqueWallets())
	}
}

func TestStakeBAndAgentSplit(t *testing.T) {
	path := writeLedger(t,
		row(100, "0xb1", agent, tracked, "0.00000001", tsJan9, "success"),
		row(101, "0xb2", user, tracked, "0.00000001", tsJan9, "success"),
		// Tier-2 from the agent still counts as a user stake.
		row(102, "0xb3", agent, tracked, "0.0000001", tsJan9, "success"),
		row(103, "0xb4", user, tracked, "0.000001", tsJan9, "success"),
	)

	stats, err := newTestAnalyzer(path, false).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	all := stats.AllTime()
	if all.StakeAAgent.Count != 1 {
		t.Fatalf("agent stakes = %d, want 1", all.StakeAAgent.Count)
	}
	if all.StakeAUser.Count != 2 {
		t.Fatalf("user stakes = %d, want 2", all.StakeAUser.Count)
	}
	if all.StakeB.Count != 1 {
		t.Fatalf("stake B = %d, want 1", all.StakeB.Count)
	}
	if !all.Drift().IsZero() {
		t.Fatalf("drift %s, want 0", all.Drift())
	}
}

func TestUncategorizedHistogram(t *testing.T) {
	path := writeLedger(t,
		// No exact threshold match, below tier-3.
		row(100, "0xc1", user, tracked, "0.000000005", tsJan9, "success"),
		row(101, "0xc2", user, tracked, "0.00000003", tsJan9, "success"),
		row(102, "0xc3", user, tracked, "0.0000004", tsJan9, "success"),
	)

	stats, err := newTestAnalyzer(path, false).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	all := stats.AllTime()
	if all.Uncategorized.Count != 3 {
		t.Fatalf("uncategorized = %d, want 3", all.Uncategorized.Count)
	}
	want := map[string]int{"<1": 1, "1-9": 1, "10-99": 1}
	for bucket, count := range want {
		if all.UncategorizedHist[bucket] != count {
			t.Fatalf("histogram[%s] = %d, want %d (full: %v)", bucket, all.UncategorizedHist[bucket], count, all.UncategorizedHist)
		}
	}
	if !all.Drift().IsZero() {
		t.Fatalf("drift %s, want 0", all.Drift())
	}
}

func TestRollingWindowCutoffs(t *testing.T) {
	path := writeLedger(t,
		row(100, "0xd1", user, tracked, "0.00000001", tsJan9, "success"),
		row(101, "0xd2", user, tracked, "0.00000001", tsJan2, "success"),
		row(102, "0xd3", user, tracked, "0.00000001", tsDec20, "success"),
		row(103, "0xd4", user, tracked, "0.00000001", tsDec1, "success"),
	)

	stats, err := newTestAnalyzer(path, false).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	wantCounts := map[int]int{0: 4, 30: 3, 14: 2, 7: 1}
	for days, want := range wantCounts {
		got := stats.Window(days).AllIncoming.Count
		if got != want {
			t.Fatalf("window %dd count = %d, want %d", days, got, want)
		}
	}

	if len(stats.Days) != 4 {
		t.Fatalf("daily buckets = %d, want 4", len(stats.Days))
	}
	if stats.Days["2024-01-09"] == nil || stats.Days["2024-01-09"].AllIncoming.Count != 1 {
		t.Fatalf("missing or wrong bucket for 2024-01-09")
	}
}

func TestTodayExcludedEverywhere(t *testing.T) {
	path := writeLedger(t,
		row(100, "0xe1", user, tracked, "0.00000001", tsToday, "success"),
	)

	stats, err := newTestAnalyzer(path, false).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.Parse.SkippedToday != 1 {
		t.Fatalf("skipped today = %d, want 1", stats.Parse.SkippedToday)
	}
	if stats.AllTime().AllIncoming.Count != 0 {
		t.Fatalf("today's transaction leaked into the all-time window")
	}
	if _, ok := stats.Days["2024-01-10"]; ok {
		t.Fatalf("today's bucket must not exist")
	}
}

func TestDuplicatesReportedAndStillCounted(t *testing.T) {
	path := writeLedger(t,
		row(100, "0xabc", user, tracked, "0.00000001", tsJan9, "success"),
		row(100, "0xabc", user, tracked, "0.00000001", tsJan9, "success"),
	)

	stats, err := newTestAnalyzer(path, false).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(stats.Duplicates.ByHash) != 1 {
		t.Fatalf("duplicate hashes = %d, want 1", len(stats.Duplicates.ByHash))
	}
	if stats.Duplicates.ExtraOccurrences != 1 {
		t.Fatalf("extra occurrences = %d, want 1", stats.Duplicates.ExtraOccurrences)
	}
	// Default behavior: both rows contribute.
	if stats.AllTime().AllIncoming.Count != 2 {
		t.Fatalf("all incoming = %d, want 2 without dedupe", stats.AllTime().AllIncoming.Count)
	}
}

func TestDedupeModeDropsRepeats(t *testing.T) {
	path := writeLedger(t,
		row(100, "0xabc", user, tracked, "0.00000001", tsJan9, "success"),
		row(100, "0xabc", user, tracked, "0.00000001", tsJan9, "success"),
	)

	stats, err := newTestAnalyzer(path, true).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.AllTime().AllIncoming.Count != 1 {
		t.Fatalf("all incoming = %d, want 1 with dedupe", stats.AllTime().AllIncoming.Count)
	}
	if stats.Parse.Deduped != 1 {
		t.Fatalf("deduped = %d, want 1", stats.Parse.Deduped)
	}
	// Detection still reports the duplicate.
	if len(stats.Duplicates.ByHash) != 1 {
		t.Fatalf("dedupe mode must still report duplicates")
	}
}

func TestSkipsMalformedFailedAndIrrelevant(t *testing.T) {
	path := writeLedger(t,
		row(100, "0xf1", user, tracked, "0.00000001", tsJan9, "success"),
		"garbage,row",
		row(101, "0xf2", user, tracked, "0.00000001", tsJan9, "failed"),
		row(102, "0xf3", user, user2, "0.00000001", tsJan9, "success"),
		row(103, "0xf4", user, tracked, "0", tsJan9, "success"),
	)

	stats, err := newTestAnalyzer(path, false).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.Parse.Malformed != 1 {
		t.Fatalf("malformed = %d, want 1", stats.Parse.Malformed)
	}
	if stats.Parse.SkippedStatus != 1 {
		t.Fatalf("skipped status = %d, want 1", stats.Parse.SkippedStatus)
	}
	if stats.Parse.Irrelevant != 2 {
		t.Fatalf("irrelevant = %d, want 2 (wrong address + zero value)", stats.Parse.Irrelevant)
	}
	if stats.Parse.Processed != 1 {
		t.Fatalf("processed = %d, want 1", stats.Parse.Processed)
	}
}

func TestMissingLedgerIsFatal(t *testing.T) {
	analyzer := newTestAnalyzer(filepath.Join(t.TempDir(), "missing.csv"), false)
	if _, err := analyzer.Run(); err == nil {
		t.Fatalf("expected error for missing ledger")
	}
}
