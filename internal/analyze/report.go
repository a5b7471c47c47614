package analyze

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// driftTolerance is the acceptable categorization drift per window.
var driftTolerance = decimal.New(1, -8)

// RenderReport formats the statistics as a human-readable report. The
// verification section surfaces invariant drift and duplicate hashes
// without failing the run; the operator investigates.
func RenderReport(stats *Statistics) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Wallet statistics for %s\n", stats.Address)
	fmt.Fprintf(&b, "Generated %s, windows end at %s (complete days only)\n\n",
		stats.GeneratedAt.Format("2006-01-02 15:04:05 UTC"), stats.Yesterday)

	for _, window := range stats.Windows {
		fmt.Fprintf(&b, "== %s ==\n", windowLabel(window.Days))
		writeCategory(&b, "Stakes A (agent)", window.StakeAAgent)
		writeCategory(&b, "Stakes A (user)", window.StakeAUser)
		writeCategory(&b, "Stakes B", window.StakeB)
		writeCategory(&b, "Top-ups", window.TopUps)
		writeCategory(&b, "Uncategorized", window.Uncategorized)
		writeCategory(&b, "All incoming", window.AllIncoming)
		writeCategory(&b, "Payouts", window.Payouts)
		if len(window.UncategorizedHist) > 0 {
			fmt.Fprintf(&b, "  uncategorized by stake multiple: %s\n", formatHistogram(window.UncategorizedHist))
		}
		b.WriteByte('\n')
	}

	b.WriteString("== Rolling averages (stakes/day) ==\n")
	for _, avg := range stats.Averages {
		if avg.DaysPresent == 0 {
			fmt.Fprintf(&b, "  %2dd: no complete days\n", avg.WindowDays)
			continue
		}
		fmt.Fprintf(&b, "  %2dd: %s flat, %s weighted (%d days present)\n",
			avg.WindowDays, avg.StakesPerDay.StringFixed(2), avg.WeightedStakesPerDay.StringFixed(2), avg.DaysPresent)
	}
	b.WriteByte('\n')

	if len(stats.TopUpDetails) > 0 {
		b.WriteString("== Top-ups (individual) ==\n")
		for _, detail := range stats.TopUpDetails {
			fmt.Fprintf(&b, "  block %d  %s  %s  from %s\n",
				detail.BlockNumber, detail.TxHash, detail.Value.String(), detail.From)
		}
		b.WriteByte('\n')
	}

	writeVerification(&b, stats)
	return b.String()
}

func writeCategory(b *strings.Builder, label string, c *CategoryStats) {
	if c.Count == 0 {
		fmt.Fprintf(b, "  %-18s none\n", label+":")
		return
	}
	fmt.Fprintf(b, "  %-18s count=%d total=%s wallets=%d min=%s max=%s\n",
		label+":", c.Count, c.TotalAmount.String(), c.UniqueWallets(), c.MinAmount.String(), c.MaxAmount.String())
}

func writeVerification(b *strings.Builder, stats *Statistics) {
	b.WriteString("== Verification ==\n")
	fmt.Fprintf(b, "  rows=%d processed=%d malformed=%d wrong_status=%d irrelevant=%d today_excluded=%d deduped=%d\n",
		stats.Parse.TotalRows, stats.Parse.Processed, stats.Parse.Malformed,
		stats.Parse.SkippedStatus, stats.Parse.Irrelevant, stats.Parse.SkippedToday, stats.Parse.Deduped)

	clean := true
	for _, window := range stats.Windows {
		drift := window.Drift()
		if drift.Abs().GreaterThan(driftTolerance) {
			clean = false
			fmt.Fprintf(b, "  WARNING: %s categorized total differs from all-incoming by %s\n",
				windowLabel(window.Days), drift.String())
		}
	}
	if clean {
		b.WriteString("  categorization complete: all windows balance\n")
	}

	if len(stats.Duplicates.ByHash) > 0 {
		fmt.Fprintf(b, "  WARNING: %d duplicate hashes (%d extra occurrences)\n",
			len(stats.Duplicates.ByHash), stats.Duplicates.ExtraOccurrences)
		hashes := make([]string, 0, len(stats.Duplicates.ByHash))
		for hash := range stats.Duplicates.ByHash {
			hashes = append(hashes, hash)
		}
		sort.Strings(hashes)
		for _, hash := range hashes {
			fmt.Fprintf(b, "    %s lines %v\n", hash, stats.Duplicates.ByHash[hash])
		}
	} else {
		b.WriteString("  no duplicate transaction hashes\n")
	}
}

func windowLabel(days int) string {
	if days == 0 {
		return "all-time"
	}
	return fmt.Sprintf("last %d days", days)
}

func formatHistogram(hist map[string]int) string {
	keys := make([]string, 0, len(hist))
	for key := range hist {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", key, hist[key]))
	}
	return strings.Join(parts, " ")
}
