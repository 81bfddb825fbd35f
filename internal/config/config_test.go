package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xsect/alphabench/internal/features"
	"github.com/xsect/alphabench/internal/signal"
)

func validConfig() Config {
	cfg := Default()
	cfg.Universe = []string{"AAA", "BBB", "CCC"}
	cfg.StartDate = "2024-01-01"
	cfg.SplitDate = "2024-02-01"
	return cfg
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty universe", func(c *Config) { c.Universe = nil }},
		{"no windows", func(c *Config) { c.Windows = nil }},
		{"negative window", func(c *Config) { c.Windows = []int{5, -1} }},
		{"duplicate window", func(c *Config) { c.Windows = []int{5, 5} }},
		{"bad signal column", func(c *Config) { c.SignalColumns = []string{"sharpe_21"} }},
		{"column outside window set", func(c *Config) { c.SignalColumns = []string{"mom_63"} }},
		{"unknown signal source", func(c *Config) { c.Signal.Source = "oracle" }},
		{"weights mismatch explicit columns", func(c *Config) {
			c.SignalColumns = []string{"mom_21", "vol_21"}
			c.Signal.Weights = []float64{1}
		}},
		{"weights mismatch full column set", func(c *Config) {
			c.Signal.Weights = []float64{1, 2, 3} // default windows expand to 6 columns
		}},
		{"unknown policy", func(c *Config) { c.Portfolio.Policy = "kelly" }},
		{"top_pct zero", func(c *Config) { c.Portfolio.TopPct = 0 }},
		{"top_pct above half", func(c *Config) { c.Portfolio.TopPct = 0.6 }},
		{"negative cost", func(c *Config) { c.CostBps = -1 }},
		{"zero capital", func(c *Config) { c.StartCapital = 0 }},
		{"missing start_date", func(c *Config) { c.StartDate = "" }},
		{"missing split_date", func(c *Config) { c.SplitDate = "" }},
		{"malformed date", func(c *Config) { c.EndDate = "01/02/2024" }},
		{"store enabled without dsn", func(c *Config) { c.Store.Enabled = true; c.Store.DSN = "" }},
		{"vol_target without window 21", func(c *Config) {
			c.Portfolio.Policy = "vol_target"
			c.Windows = []int{5, 10}
		}},
		{"vol_target zero target", func(c *Config) {
			c.Portfolio.Policy = "vol_target"
			c.Portfolio.TargetVol = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	yaml := `
universe: [AAA, BBB]
start_date: "2024-01-01"
end_date: "2024-06-30"
split_date: "2024-04-01"
windows: [10, 21]
signal_columns: [mom_21]
signal:
  source: linear
  forward_horizon: 3
portfolio:
  policy: decile
  top_pct: 0.25
cost_bps: 10
data:
  cache_ttl: 30m
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB"}, cfg.Universe)
	assert.Equal(t, []int{10, 21}, cfg.Windows)
	assert.Equal(t, "linear", cfg.Signal.Source)
	assert.Equal(t, 3, cfg.Signal.ForwardHorizon)
	assert.Equal(t, 0.25, cfg.Portfolio.TopPct)
	assert.Equal(t, 10.0, cfg.CostBps)
	assert.Equal(t, 30*time.Minute, cfg.Data.CacheTTL.Std())
	// Defaults survive where the file is silent.
	assert.Equal(t, 1000.0, cfg.StartCapital)
	assert.Equal(t, 5, cfg.Signal.Folds)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("universe: []\nstart_date: \"2024-01-01\"\nsplit_date: \"2024-02-01\"\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSplit(t *testing.T) {
	cfg := validConfig()
	got := cfg.Split()
	assert.Equal(t, 2024, got.Year())
	assert.Equal(t, 2, int(got.Month()))
}

func TestSignalSource_DefaultsToAllColumns(t *testing.T) {
	cfg := validConfig()
	src, err := cfg.SignalSource()
	require.NoError(t, err)

	// Two kinds per window across the default window set {5, 10, 21}.
	assert.Len(t, src.Columns, 6)
	assert.Equal(t, signal.SourceAverage, src.Kind)
}

func TestSignalSource_ExplicitColumns(t *testing.T) {
	cfg := validConfig()
	cfg.SignalColumns = []string{"mom_21"}

	src, err := cfg.SignalSource()
	require.NoError(t, err)
	require.Len(t, src.Columns, 1)
	assert.Equal(t, features.Ref{Kind: features.Momentum, Window: 21}, src.Columns[0])
}

func TestSignalSource_CarriesWeights(t *testing.T) {
	cfg := validConfig()
	cfg.SignalColumns = []string{"mom_21", "vol_21"}
	cfg.Signal.Weights = []float64{2, 1}
	require.NoError(t, cfg.Validate())

	src, err := cfg.SignalSource()
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1}, src.Weights)
}

func TestPortfolioSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Portfolio.Policy = "vol_target"
	cfg.Portfolio.TopPct = 0.2

	settings := cfg.PortfolioSettings()
	assert.Equal(t, "vol_target", string(settings.Policy))
	assert.Equal(t, 0.2, settings.TopPct)
}
