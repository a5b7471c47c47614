package analyze

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletscope/internal/ledger"
	"walletscope/internal/model"
)

const maxLoggedParseErrors = 10

// Config controls categorization.
type Config struct {
	Address      string
	AgentAddress string
	// Tier-1 stake in base units. Tier-2 is 10x, tier-3 is 100x.
	Stake decimal.Decimal
	// Tolerance for exact-match threshold comparison.
	Tolerance decimal.Decimal
	// Dedupe drops repeated transaction hashes from aggregation,
	// keeping only the first occurrence. Duplicates are reported
	// either way.
	Dedupe bool
	// Now is the analysis clock, injectable for tests. Defaults to
	// time.Now.
	Now func() time.Time
}

// Analyzer streams the ledger once per pass and accumulates categorized
// statistics across rolling windows and calendar-day buckets.
type Analyzer struct {
	cfg    Config
	reader *ledger.Reader
	logger *zap.Logger

	address string
	agent   string
	tier1   decimal.Decimal
	tier2   decimal.Decimal
	tier3   decimal.Decimal
}

// NewAnalyzer builds an Analyzer over the given ledger.
func NewAnalyzer(cfg Config, reader *ledger.Reader, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Stake.IsZero() {
		cfg.Stake = decimal.RequireFromString("0.00000001")
	}
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = decimal.New(1, -10)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Analyzer{
		cfg:     cfg,
		reader:  reader,
		logger:  logger,
		address: model.NormalizeAddress(cfg.Address),
		agent:   model.NormalizeAddress(cfg.AgentAddress),
		tier1:   cfg.Stake,
		tier2:   cfg.Stake.Mul(decimal.NewFromInt(10)),
		tier3:   cfg.Stake.Mul(decimal.NewFromInt(100)),
	}
}

// Run executes both passes and returns the full statistics. A missing
// or empty ledger is fatal: there is nothing to analyze.
func (a *Analyzer) Run() (*Statistics, error) {
	if a.address == "" {
		return nil, fmt.Errorf("tracked address is required")
	}
	if a.reader == nil {
		return nil, fmt.Errorf("ledger reader is nil")
	}

	now := a.cfg.Now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	stats := &Statistics{
		Address:     a.address,
		GeneratedAt: now,
		Yesterday:   todayStart.AddDate(0, 0, -1).Format("2006-01-02"),
		Days:        make(map[string]*WindowStats),
	}
	for _, days := range windowDays {
		stats.Windows = append(stats.Windows, newWindowStats(days))
	}

	if err := a.scanDuplicates(stats); err != nil {
		return nil, err
	}
	if err := a.categorize(stats, todayStart); err != nil {
		return nil, err
	}

	for _, days := range averageDays {
		stats.Averages = append(stats.Averages, rollingAverage(stats.Days, days, todayStart))
	}

	a.logStats(stats)
	return stats, nil
}

// scanDuplicates is the first full pass: hash -> every line it appears
// on. Any hash with more than one line is a duplicate.
func (a *Analyzer) scanDuplicates(stats *Statistics) error {
	lines := make(map[string][]int)
	err := a.reader.Each(func(row ledger.Row) error {
		if row.Err != nil {
			return nil
		}
		lines[row.Tx.TxHash] = append(lines[row.Tx.TxHash], row.Line)
		return nil
	})
	if err != nil {
		return err
	}

	report := DuplicateReport{ByHash: make(map[string][]int)}
	for hash, seen := range lines {
		if len(seen) > 1 {
			report.ByHash[hash] = seen
			report.ExtraOccurrences += len(seen) - 1
		}
	}
	stats.Duplicates = report
	return nil
}

// categorize is the main pass. Every relevant transaction updates the
// all-time window, each rolling window whose cutoff its timestamp
// satisfies, and its calendar-day bucket. Rows stamped in the current
// (incomplete) UTC day are excluded from all aggregates.
func (a *Analyzer) categorize(stats *Statistics, todayStart time.Time) error {
	todayUnix := todayStart.Unix()
	cutoffs := make(map[int]int64)
	for _, days := range windowDays {
		if days > 0 {
			cutoffs[days] = todayStart.AddDate(0, 0, -days).Unix()
		}
	}

	aggregated := make(map[string]struct{})

	return a.reader.Each(func(row ledger.Row) error {
		stats.Parse.TotalRows++

		if row.Err != nil {
			stats.Parse.Malformed++
			if stats.Parse.Malformed <= maxLoggedParseErrors {
				a.logger.Warn("malformed ledger row", zap.Int("line", row.Line), zap.Error(row.Err))
			}
			return nil
		}

		tx := row.Tx
		if tx.Status != model.StatusSuccess {
			stats.Parse.SkippedStatus++
			return nil
		}
		if !tx.Touches(a.address) || !tx.Value.IsPositive() {
			stats.Parse.Irrelevant++
			return nil
		}
		if int64(tx.Timestamp) >= todayUnix {
			stats.Parse.SkippedToday++
			return nil
		}

		if a.cfg.Dedupe {
			if _, seen := aggregated[tx.TxHash]; seen {
				stats.Parse.Deduped++
				return nil
			}
			aggregated[tx.TxHash] = struct{}{}
		}

		for _, window := range stats.Windows {
			if window.Days > 0 && int64(tx.Timestamp) < cutoffs[window.Days] {
				continue
			}
			a.apply(window, tx)
		}

		day := time.Unix(int64(tx.Timestamp), 0).UTC().Format("2006-01-02")
		bucket := stats.Days[day]
		if bucket == nil {
			bucket = newWindowStats(0)
			stats.Days[day] = bucket
		}
		a.apply(bucket, tx)

		if tx.Incoming(a.address) && tx.Value.Sub(a.tier3).GreaterThan(a.cfg.Tolerance) {
			stats.TopUpDetails = append(stats.TopUpDetails, TopUpDetail{
				TxHash:      tx.TxHash,
				From:        tx.From,
				Value:       tx.Value,
				Timestamp:   tx.Timestamp,
				BlockNumber: tx.BlockNumber,
			})
		}

		stats.Parse.Processed++
		return nil
	})
}

// apply routes one transaction into exactly one category of the given
// window, plus the shared all-incoming aggregate for incoming rows.
func (a *Analyzer) apply(window *WindowStats, tx model.NormalizedTransaction) {
	if tx.Incoming(a.address) {
		window.AllIncoming.Add(tx.From, tx.Value)

		switch {
		case a.matches(tx.Value, a.tier1):
			if a.agent != "" && tx.From == a.agent {
				window.StakeAAgent.Add(tx.From, tx.Value)
			} else {
				window.StakeAUser.Add(tx.From, tx.Value)
			}
		case a.matches(tx.Value, a.tier2):
			// Tier-2 is the same game category at 10x the stake,
			// always attributed to users.
			window.StakeAUser.Add(tx.From, tx.Value)
		case a.matches(tx.Value, a.tier3):
			window.StakeB.Add(tx.From, tx.Value)
		case tx.Value.Sub(a.tier3).GreaterThan(a.cfg.Tolerance):
			window.TopUps.Add(tx.From, tx.Value)
		default:
			window.Uncategorized.Add(tx.From, tx.Value)
			window.UncategorizedHist[a.histogramBucket(tx.Value)]++
		}
		return
	}

	window.Payouts.Add(tx.To, tx.Value)
}

func (a *Analyzer) matches(value, threshold decimal.Decimal) bool {
	return value.Sub(threshold).Abs().LessThanOrEqual(a.cfg.Tolerance)
}

// histogramBucket groups an uncategorized value by its stake multiple.
func (a *Analyzer) histogramBucket(value decimal.Decimal) string {
	ratio := value.Div(a.tier1)
	switch {
	case ratio.LessThan(decimal.NewFromInt(1)):
		return "<1"
	case ratio.LessThan(decimal.NewFromInt(10)):
		return "1-9"
	case ratio.LessThan(decimal.NewFromInt(100)):
		return "10-99"
	case ratio.LessThan(decimal.NewFromInt(1000)):
		return "100-999"
	default:
		return "1000+"
	}
}

func (a *Analyzer) logStats(stats *Statistics) {
	a.logger.Info("analysis complete",
		zap.Int("rows", stats.Parse.TotalRows),
		zap.Int("processed", stats.Parse.Processed),
		zap.Int("malformed", stats.Parse.Malformed),
		zap.Int("skipped_today", stats.Parse.SkippedToday),
		zap.Int("duplicate_hashes", len(stats.Duplicates.ByHash)),
		zap.Int("days", len(stats.Days)),
	)

	for _, window := range stats.Windows {
		drift := window.Drift()
		if !drift.IsZero() {
			a.logger.Warn("categorization drift",
				zap.Int("window_days", window.Days),
				zap.String("drift", drift.String()),
			)
		}
	}
}
