package analyze

import (
	"time"

	"github.com/shopspring/decimal"
)

// rollingAverage computes flat and recency-weighted averages of daily
// stake counts over the windowDays complete days ending at yesterday.
// Only days actually present in the map contribute; the divisor is the
// number of present days, never a fixed denominator. Weights run from 1
// on the oldest present day to M on the newest.
func rollingAverage(days map[string]*WindowStats, windowDays int, todayStart time.Time) AverageStats {
	avg := AverageStats{WindowDays: windowDays}

	var sum, weightedSum, weightSum decimal.Decimal
	weight := 0
	for offset := windowDays; offset >= 1; offset-- {
		date := todayStart.AddDate(0, 0, -offset).Format("2006-01-02")
		bucket, ok := days[date]
		if !ok {
			continue
		}

		count := decimal.NewFromInt(int64(bucket.StakeCount()))
		avg.DaysPresent++
		weight++

		sum = sum.Add(count)
		weightedSum = weightedSum.Add(count.Mul(decimal.NewFromInt(int64(weight))))
		weightSum = weightSum.Add(decimal.NewFromInt(int64(weight)))
	}

	if avg.DaysPresent == 0 {
		return avg
	}

	avg.StakesPerDay = sum.Div(decimal.NewFromInt(int64(avg.DaysPresent)))
	avg.WeightedStakesPerDay = weightedSum.Div(weightSum)
	return avg
}
