// Package perf summarizes daily return series: summary statistics,
// compounded-growth and drawdown curves, in-sample/out-of-sample
// partitioning and benchmark construction. Strategy and benchmark series all
// pass through the same Compute so the reported numbers are comparable.
package perf

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/xsect/alphabench/internal/backtest"
	"github.com/xsect/alphabench/internal/features"
)

// tradingDaysPerYear annualizes the Sharpe ratio.
const tradingDaysPerYear = 252

// Summary is the metrics set reported for one labeled series.
type Summary struct {
	Label       string  `json:"label"`
	Periods     int     `json:"periods"`
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Sharpe      float64 `json:"sharpe"`
	HitRate     float64 `json:"hit_rate"`
	MaxDrawdown float64 `json:"max_drawdown"`
	EndingValue float64 `json:"ending_value"`
}

// Compute summarizes a daily return series from a configured starting
// capital. An empty series yields a zeroed summary with EndingValue equal to
// the starting capital; a zero-variance series reports a zero Sharpe rather
// than dividing by zero.
func Compute(label string, series backtest.Series, startCapital float64) Summary {
	s := Summary{Label: label, Periods: len(series), EndingValue: startCapital}
	if len(series) == 0 {
		return s
	}

	returns := series.Returns()
	mean, std := stat.MeanStdDev(returns, nil)
	if len(returns) < 2 || math.IsNaN(std) {
		std = 0
	}
	s.Mean = mean
	s.Std = std
	if std > 0 {
		s.Sharpe = mean / std * math.Sqrt(tradingDaysPerYear)
	}

	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	s.HitRate = float64(wins) / float64(len(returns))

	growth := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range returns {
		growth *= 1 + r
		if growth > peak {
			peak = growth
		}
		if dd := (growth - peak) / peak; dd < maxDD {
			maxDD = dd
		}
	}
	s.MaxDrawdown = maxDD
	s.EndingValue = startCapital * growth

	return s
}

// EquityCurve is the compounded-growth curve of a return series, starting
// at 1.0 before the first period.
func EquityCurve(series backtest.Series) backtest.Series {
	curve := make(backtest.Series, len(series))
	growth := 1.0
	for i, p := range series {
		growth *= 1 + p.Return
		curve[i] = backtest.Point{Date: p.Date, Return: growth}
	}
	return curve
}

// SplitByDate partitions rows into in-sample (< cutoff) and out-of-sample
// (>= cutoff) subsets. Both halves run independently through the backtest.
func SplitByDate[T any](rows []T, date func(T) time.Time, cutoff time.Time) (in, out []T) {
	for _, r := range rows {
		if date(r).Before(cutoff) {
			in = append(in, r)
		} else {
			out = append(out, r)
		}
	}
	return in, out
}

// EqualWeightBenchmark is the unweighted cross-sectional mean of realized
// 1-day returns per date over rows with a present return.
func EqualWeightBenchmark(rows []features.Row) backtest.Series {
	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)
	var dates []time.Time
	for _, r := range rows {
		if features.IsMissing(r.Ret1D) {
			continue
		}
		if counts[r.Date] == 0 {
			dates = append(dates, r.Date)
		}
		sums[r.Date] += r.Ret1D
		counts[r.Date]++
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	series := make(backtest.Series, len(dates))
	for i, d := range dates {
		series[i] = backtest.Point{Date: d, Return: sums[d] / float64(counts[d])}
	}
	return series
}
