// Package pipeline wires the stages together: panel → features → z-scores →
// signal → weights → PnL → metrics. Each stage fully consumes its input and
// produces a complete table before the next begins, and every transformation
// returns a new table, so independent runs need no coordination.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xsect/alphabench/internal/backtest"
	"github.com/xsect/alphabench/internal/config"
	"github.com/xsect/alphabench/internal/data"
	"github.com/xsect/alphabench/internal/features"
	"github.com/xsect/alphabench/internal/metrics"
	"github.com/xsect/alphabench/internal/panel"
	"github.com/xsect/alphabench/internal/perf"
	"github.com/xsect/alphabench/internal/portfolio"
	"github.com/xsect/alphabench/internal/signal"
	"github.com/xsect/alphabench/internal/xsection"
)

// Series labels reported by a run.
const (
	LabelInSample    = "in_sample"
	LabelOutOfSample = "out_of_sample"
	LabelEqualWeight = "equal_weight"
	LabelIndex       = "index"
)

// Result is the full output of one run: a MetricsSummary per labeled series
// plus the underlying daily series, suitable for persistence or export by a
// reporting collaborator.
type Result struct {
	RunID     string                     `json:"run_id"`
	StartedAt time.Time                  `json:"started_at"`
	Elapsed   time.Duration              `json:"elapsed"`
	Summaries []perf.Summary             `json:"summaries"`
	Series    map[string]backtest.Series `json:"series"`
	Turnover  map[string]float64         `json:"turnover"`
}

// Summary returns the summary with the given label, if present.
func (r *Result) Summary(label string) (perf.Summary, bool) {
	for _, s := range r.Summaries {
		if s.Label == label {
			return s, true
		}
	}
	return perf.Summary{}, false
}

// Runner executes the signal-to-PnL pipeline for one immutable
// configuration.
type Runner struct {
	cfg       config.Config
	provider  data.Provider
	metrics   *metrics.Registry
	benchmark backtest.Series
}

// NewRunner builds a runner. The metrics registry may be nil.
func NewRunner(cfg config.Config, provider data.Provider, reg *metrics.Registry) *Runner {
	return &Runner{cfg: cfg, provider: provider, metrics: reg}
}

// WithBenchmark attaches an externally supplied index return series that is
// reported through the same metrics function as the strategy.
func (r *Runner) WithBenchmark(series backtest.Series) *Runner {
	r.benchmark = series
	return r
}

// Run executes the pipeline. It either completes with a full summary set or
// aborts on the first fail-fast condition; there is no partial output.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result, err := r.run(ctx)
	if r.metrics != nil {
		if err != nil {
			r.metrics.RunsTotal.WithLabelValues("error").Inc()
		} else {
			r.metrics.RunsTotal.WithLabelValues("ok").Inc()
		}
	}
	return result, err
}

func (r *Runner) run(ctx context.Context) (*Result, error) {
	started := time.Now()
	runID := uuid.New().String()
	logger := log.With().Str("run_id", runID).Logger()

	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	start, err := time.Parse(config.DateFormat, r.cfg.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	var end time.Time
	if r.cfg.EndDate != "" {
		if end, err = time.Parse(config.DateFormat, r.cfg.EndDate); err != nil {
			return nil, fmt.Errorf("end_date: %w", err)
		}
	}

	prices, err := r.timedPanel(ctx, start, end)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("rows", len(prices)).Int("tickers", len(prices.Tickers())).Msg("price panel loaded")

	featStart := time.Now()
	featRows := features.Compute(prices, r.cfg.Windows)
	r.observe("features", time.Since(featStart), len(featRows))

	normStart := time.Now()
	normRows := xsection.Normalize(featRows, features.Refs(r.cfg.Windows))
	r.observe("normalize", time.Since(normStart), len(normRows))

	src, err := r.cfg.SignalSource()
	if err != nil {
		return nil, err
	}
	sigStart := time.Now()
	sigRows, err := signal.Generate(normRows, src)
	if err != nil {
		return nil, err
	}
	r.observe("signal", time.Since(sigStart), len(sigRows))

	cutoff := r.cfg.Split()
	inSig, outSig := perf.SplitByDate(sigRows, func(s signal.Row) time.Time { return s.Date }, cutoff)
	_, outFeat := perf.SplitByDate(featRows, func(f features.Row) time.Time { return f.Date }, cutoff)

	result := &Result{
		RunID:     runID,
		StartedAt: started,
		Series:    make(map[string]backtest.Series),
		Turnover:  make(map[string]float64),
	}

	for _, slice := range []struct {
		label string
		rows  []signal.Row
	}{
		{LabelInSample, inSig},
		{LabelOutOfSample, outSig},
	} {
		positions, err := portfolio.Build(slice.rows, r.cfg.PortfolioSettings())
		if err != nil {
			return nil, fmt.Errorf("%s portfolio: %w", slice.label, err)
		}
		series := backtest.Run(positions, r.cfg.CostBps)
		result.Series[slice.label] = series
		result.Turnover[slice.label] = backtest.Turnover(positions)
		result.Summaries = append(result.Summaries, perf.Compute(slice.label, series, r.cfg.StartCapital))
		logger.Info().Str("slice", slice.label).Int("days", len(series)).Msg("backtest complete")
	}

	ew := perf.EqualWeightBenchmark(outFeat)
	result.Series[LabelEqualWeight] = ew
	result.Summaries = append(result.Summaries, perf.Compute(LabelEqualWeight, ew, r.cfg.StartCapital))

	if len(r.benchmark) > 0 {
		result.Series[LabelIndex] = r.benchmark
		result.Summaries = append(result.Summaries, perf.Compute(LabelIndex, r.benchmark, r.cfg.StartCapital))
	}

	result.Elapsed = time.Since(started)
	logger.Info().Dur("elapsed", result.Elapsed).Msg("run complete")
	return result, nil
}

// timedPanel loads and validates the price panel with stage timing.
func (r *Runner) timedPanel(ctx context.Context, start, end time.Time) (panel.Table, error) {
	t0 := time.Now()
	prices, err := r.provider.Prices(ctx, r.cfg.Universe, start, end)
	if err != nil {
		return nil, err
	}
	r.observe("load", time.Since(t0), len(prices))
	return prices, nil
}

func (r *Runner) observe(stage string, elapsed time.Duration, rows int) {
	if r.metrics == nil {
		return
	}
	r.metrics.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	r.metrics.RowsProcessed.WithLabelValues(stage).Set(float64(rows))
}
