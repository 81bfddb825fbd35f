// Package portfolio ranks assets within each date by signal and assigns
// long/short weights under the decile equal-weight policy, optionally scaled
// to a volatility target.
package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/xsect/alphabench/internal/features"
	"github.com/xsect/alphabench/internal/signal"
)

// Policy selects the weighting scheme.
type Policy string

const (
	PolicyDecile    Policy = "decile"
	PolicyVolTarget Policy = "vol_target"
)

// Position is one (date, ticker) portfolio weight alongside the realized
// return the backtest stage consumes.
type Position struct {
	Date   time.Time
	Ticker string
	Weight float64
	Ret1D  float64
}

// Config holds the constructor parameters.
type Config struct {
	Policy    Policy
	TopPct    float64 // fraction of names per side, default 0.1
	TargetVol float64 // daily vol target for PolicyVolTarget
	WeightCap float64 // absolute per-asset cap for PolicyVolTarget
}

// Build drops rows with a missing signal or return, ranks the remainder per
// date and assigns weights under the configured policy. Output order is
// deterministic: dates ascending, signal rank within each date.
func Build(rows []signal.Row, cfg Config) ([]Position, error) {
	switch cfg.Policy {
	case PolicyDecile, PolicyVolTarget:
	default:
		return nil, fmt.Errorf("unsupported portfolio policy %q", cfg.Policy)
	}

	topPct := cfg.TopPct
	if topPct <= 0 || topPct > 0.5 {
		return nil, fmt.Errorf("top_pct must be in (0, 0.5], got %v", topPct)
	}

	tradeable := make([]signal.Row, 0, len(rows))
	for _, r := range rows {
		if features.IsMissing(r.Score) || features.IsMissing(r.Ret1D) {
			continue
		}
		tradeable = append(tradeable, r)
	}

	// Group by date preserving original row order inside each group, so tied
	// scores rank in input order and repeated runs are identical.
	sort.SliceStable(tradeable, func(i, j int) bool { return tradeable[i].Date.Before(tradeable[j].Date) })

	var positions []Position
	start := 0
	for start < len(tradeable) {
		end := start
		for end < len(tradeable) && tradeable[end].Date.Equal(tradeable[start].Date) {
			end++
		}
		positions = append(positions, buildDate(tradeable[start:end], cfg)...)
		start = end
	}
	return positions, nil
}

// buildDate weights one date's cross-section. Both slices hold
// floor(n*topPct) names; a date that cannot form two non-empty, disjoint
// slices gets all-zero weights rather than failing.
func buildDate(group []signal.Row, cfg Config) []Position {
	n := len(group)

	ranked := make([]signal.Row, n)
	copy(ranked, group)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	side := int(float64(n) * cfg.TopPct)

	positions := make([]Position, n)
	for i, r := range ranked {
		w := 0.0
		if side >= 1 && 2*side <= n {
			switch {
			case i < side:
				w = 1.0 / float64(side)
			case i >= n-side:
				w = -1.0 / float64(side)
			}
		}
		if cfg.Policy == PolicyVolTarget && w != 0 {
			w = volTarget(w, r.Vol21, cfg.TargetVol, cfg.WeightCap)
		}
		positions[i] = Position{Date: r.Date, Ticker: r.Ticker, Weight: w, Ret1D: r.Ret1D}
	}
	return positions
}

// volTarget scales a weight to the volatility target and clips it to the
// cap. Missing or zero trailing volatility zeroes the weight instead of
// dividing through to infinity.
func volTarget(w, vol21, targetVol, maxAbs float64) float64 {
	if features.IsMissing(vol21) || vol21 <= 0 {
		return 0
	}
	w *= targetVol / vol21
	if w > maxAbs {
		return maxAbs
	}
	if w < -maxAbs {
		return -maxAbs
	}
	return w
}
