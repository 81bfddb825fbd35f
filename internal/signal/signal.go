// Package signal turns normalized feature rows into one composite ranking
// score per (date, ticker). The score source is a tagged variant chosen once
// per run: an equal-weight average of z columns, or a model fitted on
// historical feature/forward-return pairs.
package signal

import (
	"fmt"
	"time"

	"github.com/xsect/alphabench/internal/features"
	"github.com/xsect/alphabench/internal/xsection"
)

// SourceKind selects how pred_signal is produced.
type SourceKind string

const (
	SourceAverage SourceKind = "average"
	SourceLinear  SourceKind = "linear"
	SourceBoosted SourceKind = "boosted"
)

// Source is the run-level signal configuration. All kinds satisfy the same
// contract: one scalar score per input row, missing when it cannot be
// computed.
type Source struct {
	Kind    SourceKind
	Columns []features.Ref

	// Weights optionally weights Columns in the average source; empty means
	// equal weight. Ignored by the fitted sources, which learn their own
	// coefficients.
	Weights []float64

	// Fitted-model settings, ignored by SourceAverage.
	ForwardHorizon int
	Folds          int
	Estimators     int
	LearningRate   float64
}

// Row carries the composite score plus the realized return and trailing
// volatility needed by the downstream portfolio and backtest stages.
type Row struct {
	Date   time.Time
	Ticker string
	Score  float64
	Ret1D  float64
	Vol21  float64
}

// Generate dispatches to the configured source. An unsupported kind is a
// configuration error and aborts the run.
func Generate(rows []xsection.Row, src Source) ([]Row, error) {
	if len(src.Columns) == 0 {
		return nil, fmt.Errorf("signal source has no feature columns configured")
	}
	if len(src.Weights) > 0 && len(src.Weights) != len(src.Columns) {
		return nil, fmt.Errorf("signal source has %d weights for %d feature columns", len(src.Weights), len(src.Columns))
	}

	switch src.Kind {
	case SourceAverage:
		return averageScores(rows, src.Columns, src.Weights), nil
	case SourceLinear, SourceBoosted:
		return fittedScores(rows, src)
	default:
		return nil, fmt.Errorf("unsupported signal source %q", src.Kind)
	}
}

// averageScores is the weighted mean of the configured z columns present on
// each row, equal-weight when no weights are configured. Missing inputs are
// excluded from the average together with their weight, never counted as
// zero; a row with every input missing has a missing score.
func averageScores(rows []xsection.Row, columns []features.Ref, weights []float64) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		sum := 0.0
		weightSum := 0.0
		for j, col := range columns {
			v, ok := r.Z[col]
			if !ok || features.IsMissing(v) {
				continue
			}
			w := 1.0
			if len(weights) > 0 {
				w = weights[j]
			}
			sum += w * v
			weightSum += w
		}

		score := features.Missing()
		if weightSum != 0 {
			score = sum / weightSum
		}
		out[i] = Row{Date: r.Date, Ticker: r.Ticker, Score: score, Ret1D: r.Ret1D, Vol21: r.Vol21}
	}
	return out
}
