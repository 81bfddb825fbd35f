// Package backtest aggregates weighted positions into a daily portfolio PnL
// series and applies the flat per-period transaction cost.
package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/xsect/alphabench/internal/portfolio"
)

// Point is one day of portfolio return, cost already subtracted.
type Point struct {
	Date   time.Time `json:"date"`
	Return float64   `json:"return"`
}

// Series is an ordered-by-date daily return series.
type Series []Point

// Returns extracts the raw return values in date order.
func (s Series) Returns() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Return
	}
	return out
}

// Run computes the weight-weighted sum of per-asset returns per date, then
// subtracts costBps/10000 uniformly from every period. The cost is flat per
// period regardless of realized turnover; that matches the reporting
// contract, and Turnover exists separately as a diagnostic. Output dates are
// exactly the dates present in the positions, ascending, with no forward
// fill across missing trading days.
func Run(positions []portfolio.Position, costBps float64) Series {
	cost := costBps / 10000

	byDate := make(map[time.Time]float64)
	var dates []time.Time
	for _, p := range positions {
		if _, ok := byDate[p.Date]; !ok {
			dates = append(dates, p.Date)
		}
		byDate[p.Date] += p.Weight * p.Ret1D
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	series := make(Series, len(dates))
	for i, d := range dates {
		series[i] = Point{Date: d, Return: byDate[d] - cost}
	}
	return series
}

// Turnover is the mean daily sum of absolute weight changes across the run,
// counting entry from flat on the first day. Reported only; it is never
// multiplied into costs.
func Turnover(positions []portfolio.Position) float64 {
	weights := make(map[time.Time]map[string]float64)
	var dates []time.Time
	for _, p := range positions {
		day, ok := weights[p.Date]
		if !ok {
			day = make(map[string]float64)
			weights[p.Date] = day
			dates = append(dates, p.Date)
		}
		day[p.Ticker] = p.Weight
	}
	if len(dates) == 0 {
		return 0
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	total := 0.0
	prev := map[string]float64{}
	for _, d := range dates {
		day := weights[d]
		for ticker, w := range day {
			total += math.Abs(w - prev[ticker])
		}
		for ticker, w := range prev {
			if _, ok := day[ticker]; !ok {
				total += math.Abs(w)
			}
		}
		prev = day
	}
	return total / float64(len(dates))
}
