package analyze

import (
	"time"

	"github.com/shopspring/decimal"
)

// Window day counts. Zero means all-time.
var windowDays = []int{0, 7, 14, 30}

// Rolling-average day counts.
var averageDays = []int{7, 14, 21, 28}

// WalletStats accumulates per-counterparty totals inside a category.
type WalletStats struct {
	Count       int
	TotalAmount decimal.Decimal
}

// CategoryStats is one categorized counter set: count, summed value,
// min/max extremes, and per-counterparty breakdown.
type CategoryStats struct {
	Count       int
	TotalAmount decimal.Decimal
	MinAmount   decimal.Decimal
	MaxAmount   decimal.Decimal
	Wallets     map[string]*WalletStats
}

func newCategoryStats() *CategoryStats {
	return &CategoryStats{Wallets: make(map[string]*WalletStats)}
}

// Add records one transaction amount attributed to wallet.
func (c *CategoryStats) Add(wallet string, amount decimal.Decimal) {
	c.Count++
	c.TotalAmount = c.TotalAmount.Add(amount)
	if c.Count == 1 || amount.LessThan(c.MinAmount) {
		c.MinAmount = amount
	}
	if c.Count == 1 || amount.GreaterThan(c.MaxAmount) {
		c.MaxAmount = amount
	}

	ws := c.Wallets[wallet]
	if ws == nil {
		ws = &WalletStats{}
		c.Wallets[wallet] = ws
	}
	ws.Count++
	ws.TotalAmount = ws.TotalAmount.Add(amount)
}

// UniqueWallets returns the number of distinct counterparties seen.
func (c *CategoryStats) UniqueWallets() int {
	return len(c.Wallets)
}

// WindowStats holds every category for one time window or one calendar
// day. The same fixed shape is replicated for every window and day key;
// no fields are added dynamically.
type WindowStats struct {
	Days int // 0 = all-time

	StakeAAgent   *CategoryStats // tier-1 stakes sent by the agent address
	StakeAUser    *CategoryStats // tier-1 stakes from users, plus all tier-2
	StakeB        *CategoryStats // tier-3 stakes
	TopUps        *CategoryStats // incoming above every stake threshold
	Uncategorized *CategoryStats // incoming below tier-3 with no exact match
	AllIncoming   *CategoryStats // every relevant incoming transaction
	Payouts       *CategoryStats // outgoing from the tracked address

	// Histogram of uncategorized values by stake-multiple range,
	// diagnostic only.
	UncategorizedHist map[string]int
}

func newWindowStats(days int) *WindowStats {
	return &WindowStats{
		Days:              days,
		StakeAAgent:       newCategoryStats(),
		StakeAUser:        newCategoryStats(),
		StakeB:            newCategoryStats(),
		TopUps:            newCategoryStats(),
		Uncategorized:     newCategoryStats(),
		AllIncoming:       newCategoryStats(),
		Payouts:           newCategoryStats(),
		UncategorizedHist: make(map[string]int),
	}
}

// StakeCount returns the number of game stakes in the window, every
// tier combined.
func (w *WindowStats) StakeCount() int {
	return w.StakeAAgent.Count + w.StakeAUser.Count + w.StakeB.Count
}

// CategorizedTotal sums every incoming category.
func (w *WindowStats) CategorizedTotal() decimal.Decimal {
	total := w.StakeAAgent.TotalAmount
	total = total.Add(w.StakeAUser.TotalAmount)
	total = total.Add(w.StakeB.TotalAmount)
	total = total.Add(w.TopUps.TotalAmount)
	total = total.Add(w.Uncategorized.TotalAmount)
	return total
}

// Drift is the difference between the all-incoming total and the sum of
// categorized totals. It must be zero: every incoming transaction lands
// in exactly one category.
func (w *WindowStats) Drift() decimal.Decimal {
	return w.AllIncoming.TotalAmount.Sub(w.CategorizedTotal())
}

// TopUpDetail is one individually audited top-up row.
type TopUpDetail struct {
	TxHash      string
	From        string
	Value       decimal.Decimal
	Timestamp   uint64
	BlockNumber uint64
}

// DuplicateReport records transaction hashes seen on more than one
// ledger line. Detection is a data-quality signal: duplicate rows are
// still aggregated unless dedupe mode is on.
type DuplicateReport struct {
	// Lines by hash, only for hashes seen more than once.
	ByHash map[string][]int
	// Occurrences beyond each hash's first-seen line.
	ExtraOccurrences int
}

// ParseStats counts what the streaming passes skipped and why.
type ParseStats struct {
	TotalRows     int
	Malformed     int
	SkippedStatus int
	Irrelevant    int
	SkippedToday  int
	Deduped       int
	Processed     int
}

// AverageStats is one backward-looking rolling average over complete
// days ending at yesterday.
type AverageStats struct {
	WindowDays  int
	DaysPresent int
	// Flat average of daily stake counts over the days present.
	StakesPerDay decimal.Decimal
	// Recency-weighted average: oldest present day weight 1, newest
	// weight N.
	WeightedStakesPerDay decimal.Decimal
}

// Statistics is the full analyzer output consumed by the report
// renderer, CSV exporter, and Postgres publisher.
type Statistics struct {
	Address     string
	GeneratedAt time.Time
	// Most recent complete day; every window ends here.
	Yesterday string

	Windows      []*WindowStats
	Days         map[string]*WindowStats
	TopUpDetails []TopUpDetail
	Duplicates   DuplicateReport
	Parse        ParseStats
	Averages     []AverageStats
}

// Window returns the window covering the given day count, or nil.
func (s *Statistics) Window(days int) *WindowStats {
	for _, w := range s.Windows {
		if w.Days == days {
			return w
		}
	}
	return nil
}

// AllTime returns the unbounded window.
func (s *Statistics) AllTime() *WindowStats {
	return s.Window(0)
}
