// Package features computes per-asset time-series features from a price
// panel: 1-day returns, multi-window momentum and trailing realized
// volatility. Missing values are an explicit NaN sentinel and are never
// silently treated as zero.
package features

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/xsect/alphabench/internal/panel"
)

// Kind identifies a windowed feature family.
type Kind string

const (
	Momentum   Kind = "mom"
	Volatility Kind = "vol"
)

// Ref names one windowed feature column, e.g. {Momentum, 21} is "mom_21".
type Ref struct {
	Kind   Kind
	Window int
}

func (r Ref) String() string {
	return fmt.Sprintf("%s_%d", r.Kind, r.Window)
}

// ParseRef parses a feature column name of the form "mom_5" or "vol_21".
// Unknown names are configuration errors and fail fast.
func ParseRef(s string) (Ref, error) {
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return Ref{}, fmt.Errorf("invalid feature column %q, want kind_window", s)
	}
	kind := Kind(parts[0])
	if kind != Momentum && kind != Volatility {
		return Ref{}, fmt.Errorf("unknown feature kind %q in column %q", parts[0], s)
	}
	window, err := strconv.Atoi(parts[1])
	if err != nil || window <= 0 {
		return Ref{}, fmt.Errorf("invalid window in feature column %q", s)
	}
	return Ref{Kind: kind, Window: window}, nil
}

// Missing is the sentinel for an absent feature value.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing sentinel.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Row holds the derived features for one (date, ticker).
type Row struct {
	Date   time.Time
	Ticker string
	Ret1D  float64
	Values map[Ref]float64
}

// Refs enumerates the feature columns produced for a window set, momentum
// first then volatility, windows in the given order.
func Refs(windows []int) []Ref {
	refs := make([]Ref, 0, 2*len(windows))
	for _, w := range windows {
		refs = append(refs, Ref{Kind: Momentum, Window: w})
	}
	for _, w := range windows {
		refs = append(refs, Ref{Kind: Volatility, Window: w})
	}
	return refs
}

// Compute derives the feature table from a price panel. Each ticker is
// processed independently over its own time axis; window-w features are
// missing for the first w observations of a ticker's history, and short
// histories yield missing values rather than errors. The input panel is not
// mutated.
func Compute(prices panel.Table, windows []int) []Row {
	sorted := make(panel.Table, len(prices))
	copy(sorted, prices)
	sorted.SortByTickerDate()

	rows := make([]Row, 0, len(sorted))

	start := 0
	for start < len(sorted) {
		end := start
		for end < len(sorted) && sorted[end].Ticker == sorted[start].Ticker {
			end++
		}
		rows = append(rows, computeTicker(sorted[start:end], windows)...)
		start = end
	}

	return rows
}

// computeTicker derives features for one ticker's contiguous, date-ordered
// slice of the panel.
func computeTicker(history panel.Table, windows []int) []Row {
	n := len(history)
	adj := make([]float64, n)
	for i, r := range history {
		adj[i] = r.AdjClose
	}

	rets := make([]float64, n)
	rets[0] = Missing()
	for i := 1; i < n; i++ {
		rets[i] = adj[i]/adj[i-1] - 1
	}

	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		values := make(map[Ref]float64, 2*len(windows))
		for _, w := range windows {
			values[Ref{Kind: Momentum, Window: w}] = momentumAt(adj, i, w)
			values[Ref{Kind: Volatility, Window: w}] = volatilityAt(rets, i, w)
		}
		rows[i] = Row{
			Date:   history[i].Date,
			Ticker: history[i].Ticker,
			Ret1D:  rets[i],
			Values: values,
		}
	}
	return rows
}

// momentumAt is the w-day percentage change of adjusted close ending at i.
func momentumAt(adj []float64, i, w int) float64 {
	if i < w {
		return Missing()
	}
	return adj[i]/adj[i-w] - 1
}

// volatilityAt is the sample standard deviation of the w trailing 1-day
// returns ending at i. The window never reaches past i, so features at a
// date are invariant to any later row.
func volatilityAt(rets []float64, i, w int) float64 {
	if i < w || w < 2 {
		return Missing()
	}
	return stat.StdDev(rets[i-w+1:i+1], nil)
}
