package analyze

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var csvHeader = []string{
	"date",
	"stake_a_agent_count", "stake_a_agent_total",
	"stake_a_user_count", "stake_a_user_total",
	"stake_b_count", "stake_b_total",
	"topups_count", "topups_total",
	"uncategorized_count", "uncategorized_total",
	"all_incoming_count", "all_incoming_total", "all_incoming_wallets",
	"payouts_count", "payouts_total", "payouts_wallets",
}

// ExportDailyCSV flattens the per-day buckets into one row per complete
// day, every counter a column, sorted by date.
func ExportDailyCSV(stats *Statistics, path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.WriteString(strings.Join(csvHeader, ",") + "\n"); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}

	dates := make([]string, 0, len(stats.Days))
	for date := range stats.Days {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		day := stats.Days[date]
		fields := []string{
			date,
			strconv.Itoa(day.StakeAAgent.Count), day.StakeAAgent.TotalAmount.String(),
			strconv.Itoa(day.StakeAUser.Count), day.StakeAUser.TotalAmount.String(),
			strconv.Itoa(day.StakeB.Count), day.StakeB.TotalAmount.String(),
			strconv.Itoa(day.TopUps.Count), day.TopUps.TotalAmount.String(),
			strconv.Itoa(day.Uncategorized.Count), day.Uncategorized.TotalAmount.String(),
			strconv.Itoa(day.AllIncoming.Count), day.AllIncoming.TotalAmount.String(),
			strconv.Itoa(day.AllIncoming.UniqueWallets()),
			strconv.Itoa(day.Payouts.Count), day.Payouts.TotalAmount.String(),
			strconv.Itoa(day.Payouts.UniqueWallets()),
		}
		if _, err := writer.WriteString(strings.Join(fields, ",") + "\n"); err != nil {
			return fmt.Errorf("write export row: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return nil
}
