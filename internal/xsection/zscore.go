// Package xsection converts per-date groups of raw features into comparable
// z-scores. Normalization is taken only over the assets with a present value
// for that specific column on that date; dates never borrow observations
// from each other.
package xsection

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/xsect/alphabench/internal/features"
)

// zeroStdTolerance guards the divide in the z-score. A cross-section whose
// std is at or below it yields missing z-scores for the whole date/column
// rather than inf contamination downstream.
const zeroStdTolerance = 1e-12

// Row holds the normalized features for one (date, ticker). Ret1D and the
// raw 21-day volatility are carried forward so later stages never reach back
// into the price panel.
type Row struct {
	Date   time.Time
	Ticker string
	Ret1D  float64
	Vol21  float64
	Z      map[features.Ref]float64
}

// Normalize z-scores every column in refs within each date group. A column
// with fewer than 2 present values on a date, or with zero cross-sectional
// std, is missing for every asset on that date. The input rows are not
// mutated and the output preserves a deterministic (date, ticker) order.
func Normalize(rows []features.Row, refs []features.Ref) []Row {
	out := make([]Row, len(rows))
	vol21 := features.Ref{Kind: features.Volatility, Window: 21}
	for i, r := range rows {
		v21 := features.Missing()
		if v, ok := r.Values[vol21]; ok {
			v21 = v
		}
		out[i] = Row{
			Date:   r.Date,
			Ticker: r.Ticker,
			Ret1D:  r.Ret1D,
			Vol21:  v21,
			Z:      make(map[features.Ref]float64, len(refs)),
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Ticker < out[j].Ticker
	})

	// Raw values keyed by (date, ticker) for group lookups after the sort.
	raw := make(map[time.Time]map[string]map[features.Ref]float64, len(rows))
	for _, r := range rows {
		byTicker, ok := raw[r.Date]
		if !ok {
			byTicker = make(map[string]map[features.Ref]float64)
			raw[r.Date] = byTicker
		}
		byTicker[r.Ticker] = r.Values
	}

	start := 0
	for start < len(out) {
		end := start
		for end < len(out) && out[end].Date.Equal(out[start].Date) {
			end++
		}
		normalizeDate(out[start:end], raw[out[start].Date], refs)
		start = end
	}

	return out
}

// normalizeDate fills the z columns for one date group.
func normalizeDate(group []Row, values map[string]map[features.Ref]float64, refs []features.Ref) {
	for _, ref := range refs {
		present := make([]float64, 0, len(group))
		for _, r := range group {
			if v, ok := values[r.Ticker][ref]; ok && !features.IsMissing(v) {
				present = append(present, v)
			}
		}

		if len(present) < 2 {
			for i := range group {
				group[i].Z[ref] = features.Missing()
			}
			continue
		}

		mean, std := stat.MeanStdDev(present, nil)
		if std <= zeroStdTolerance {
			for i := range group {
				group[i].Z[ref] = features.Missing()
			}
			continue
		}

		for i := range group {
			v, ok := values[group[i].Ticker][ref]
			if !ok || features.IsMissing(v) {
				group[i].Z[ref] = features.Missing()
				continue
			}
			group[i].Z[ref] = (v - mean) / std
		}
	}
}
