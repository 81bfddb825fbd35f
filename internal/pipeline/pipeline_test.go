package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xsect/alphabench/internal/backtest"
	"github.com/xsect/alphabench/internal/config"
	"github.com/xsect/alphabench/internal/panel"
	"github.com/xsect/alphabench/internal/perf"
)

// stubProvider serves a fixed in-memory panel.
type stubProvider struct {
	table panel.Table
	err   error
}

func (s *stubProvider) Prices(ctx context.Context, universe []string, start, end time.Time) (panel.Table, error) {
	return s.table, s.err
}

// trendPanel builds 30 days of three tickers with constant daily returns:
// AAA +1%, BBB flat, CCC -1%.
func trendPanel() panel.Table {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	growth := map[string]float64{"AAA": 1.01, "BBB": 1.0, "CCC": 0.99}

	var table panel.Table
	for _, ticker := range []string{"AAA", "BBB", "CCC"} {
		price := 100.0
		for t := 0; t < 30; t++ {
			table = append(table, panel.Row{
				Date: base.AddDate(0, 0, t), Ticker: ticker,
				Open: price, High: price, Low: price, Close: price, AdjClose: price,
				Volume: 1000,
			})
			price *= growth[ticker]
		}
	}
	return table
}

func trendConfig() config.Config {
	cfg := config.Default()
	cfg.Universe = []string{"AAA", "BBB", "CCC"}
	cfg.StartDate = "2024-01-01"
	cfg.SplitDate = "2024-01-01" // everything out-of-sample
	cfg.SignalColumns = []string{"mom_21"}
	cfg.Portfolio.TopPct = 0.34 // one name per side out of three
	cfg.CostBps = 5
	return cfg
}

func TestRun_TrendingUniverse(t *testing.T) {
	runner := NewRunner(trendConfig(), &stubProvider{table: trendPanel()}, nil)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.RunID)

	// The 21-day momentum column first resolves on day 21, so a 30-day panel
	// yields exactly 9 tradable dates.
	oos := result.Series[LabelOutOfSample]
	require.Len(t, oos, 9)

	// Long the riser, short the faller, 5 bps off every day.
	want := 0.01 + 0.01 - 0.0005
	for _, p := range oos {
		assert.InDelta(t, want, p.Return, 1e-9, "return on %s", p.Date.Format("2006-01-02"))
	}

	summary, ok := result.Summary(LabelOutOfSample)
	require.True(t, ok)
	assert.Equal(t, 9, summary.Periods)
	assert.InDelta(t, want, summary.Mean, 1e-9)
	assert.Equal(t, 1.0, summary.HitRate)

	// With the split at the panel start, in-sample is empty but still reported.
	inSample, ok := result.Summary(LabelInSample)
	require.True(t, ok)
	assert.Equal(t, 0, inSample.Periods)
	assert.Equal(t, runner.cfg.StartCapital, inSample.EndingValue)
}

func TestRun_EqualWeightBenchmarkReported(t *testing.T) {
	runner := NewRunner(trendConfig(), &stubProvider{table: trendPanel()}, nil)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	ew := result.Series[LabelEqualWeight]
	require.NotEmpty(t, ew)
	// (+1% + 0% - 1%) / 3 per day, so near zero every day.
	for _, p := range ew {
		assert.InDelta(t, 0, p.Return, 1e-6)
	}
	_, ok := result.Summary(LabelEqualWeight)
	assert.True(t, ok)
}

func TestRun_IndexBenchmarkAttached(t *testing.T) {
	index := backtest.Series{
		{Date: time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC), Return: 0.002},
	}
	runner := NewRunner(trendConfig(), &stubProvider{table: trendPanel()}, nil).WithBenchmark(index)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, index, result.Series[LabelIndex])
	summary, ok := result.Summary(LabelIndex)
	require.True(t, ok)
	assert.Equal(t, 1, summary.Periods)
}

func TestRun_Deterministic(t *testing.T) {
	provider := &stubProvider{table: trendPanel()}

	first, err := NewRunner(trendConfig(), provider, nil).Run(context.Background())
	require.NoError(t, err)
	second, err := NewRunner(trendConfig(), provider, nil).Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Summaries, second.Summaries)
	assert.Equal(t, first.Series, second.Series)
	assert.Equal(t, first.Turnover, second.Turnover)
}

func TestRun_SplitSeparatesSamples(t *testing.T) {
	cfg := trendConfig()
	cfg.SplitDate = "2024-01-26" // a few tradable days on each side

	runner := NewRunner(cfg, &stubProvider{table: trendPanel()}, nil)
	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	in := result.Series[LabelInSample]
	out := result.Series[LabelOutOfSample]
	assert.Len(t, in, 4)  // days 21-24
	assert.Len(t, out, 5) // days 25-29
	assert.Equal(t, 9, len(in)+len(out))

	cutoff, _ := time.Parse(config.DateFormat, cfg.SplitDate)
	for _, p := range in {
		assert.True(t, p.Date.Before(cutoff))
	}
	for _, p := range out {
		assert.False(t, p.Date.Before(cutoff))
	}
}

func TestRun_ProviderError(t *testing.T) {
	runner := NewRunner(trendConfig(), &stubProvider{err: errors.New("feed down")}, nil)

	_, err := runner.Run(context.Background())
	assert.Error(t, err)
}

func TestRun_InvalidConfigRejected(t *testing.T) {
	cfg := trendConfig()
	cfg.Universe = nil

	_, err := NewRunner(cfg, &stubProvider{table: trendPanel()}, nil).Run(context.Background())
	assert.Error(t, err)
}

func TestRun_TurnoverReported(t *testing.T) {
	runner := NewRunner(trendConfig(), &stubProvider{table: trendPanel()}, nil)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	// Book never changes after entry: 2.0 on the first day, 0 after, over 9 days.
	assert.InDelta(t, 2.0/9.0, result.Turnover[LabelOutOfSample], 1e-12)
	assert.Equal(t, 0.0, result.Turnover[LabelInSample])
}

func TestPerfSplitMatchesPipelineCutoff(t *testing.T) {
	// SplitByDate puts the cutoff date itself out-of-sample, which is the
	// convention the runner relies on.
	cutoff := time.Date(2024, 1, 26, 0, 0, 0, 0, time.UTC)
	rows := backtest.Series{{Date: cutoff, Return: 0.01}}

	in, out := perf.SplitByDate(rows, func(p backtest.Point) time.Time { return p.Date }, cutoff)
	assert.Empty(t, in)
	assert.Len(t, out, 1)
}

func TestRun_ReturnsCloseToTheory(t *testing.T) {
	runner := NewRunner(trendConfig(), &stubProvider{table: trendPanel()}, nil)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	summary, ok := result.Summary(LabelOutOfSample)
	require.True(t, ok)

	// Constant daily returns compound exactly.
	want := 1000 * math.Pow(1+0.0195, 9)
	assert.InDelta(t, want, summary.EndingValue, 1e-6)
}
