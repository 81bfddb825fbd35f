// Package config holds the immutable run configuration. It is loaded once,
// validated, and passed into every stage; there are no process-wide mutable
// defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xsect/alphabench/internal/features"
	"github.com/xsect/alphabench/internal/portfolio"
	"github.com/xsect/alphabench/internal/signal"
)

// DateFormat is the calendar-date layout used throughout the config surface.
const DateFormat = "2006-01-02"

// Duration is a time.Duration that unmarshals from YAML strings like "15m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full run configuration.
type Config struct {
	Universe  []string `yaml:"universe"`
	StartDate string   `yaml:"start_date"`
	EndDate   string   `yaml:"end_date"`
	SplitDate string   `yaml:"split_date"`

	Windows       []int    `yaml:"windows"`        // momentum/volatility window set
	SignalColumns []string `yaml:"signal_columns"` // z columns feeding the signal; empty means all

	Signal    SignalConfig    `yaml:"signal"`
	Portfolio PortfolioConfig `yaml:"portfolio"`

	CostBps      float64 `yaml:"cost_bps"`
	StartCapital float64 `yaml:"start_capital"`

	BenchmarkCSV string `yaml:"benchmark_csv"` // optional index return series

	Data  DataConfig  `yaml:"data"`
	Store StoreConfig `yaml:"store"`
	HTTP  HTTPConfig  `yaml:"http"`
}

// SignalConfig selects and parameterizes the signal source.
type SignalConfig struct {
	Source         string    `yaml:"source"`  // average, linear, boosted
	Weights        []float64 `yaml:"weights"` // per-column weights for the average source; empty means equal
	ForwardHorizon int       `yaml:"forward_horizon"`
	Folds          int       `yaml:"folds"`
	Estimators     int       `yaml:"estimators"`
	LearningRate   float64   `yaml:"learning_rate"`
}

// PortfolioConfig parameterizes the weighting policy.
type PortfolioConfig struct {
	Policy    string  `yaml:"policy"` // decile, vol_target
	TopPct    float64 `yaml:"top_pct"`
	TargetVol float64 `yaml:"target_vol"`
	WeightCap float64 `yaml:"weight_cap"`
}

// DataConfig configures the price-data boundary.
type DataConfig struct {
	CSVPath   string   `yaml:"csv_path"`
	RedisAddr string   `yaml:"redis_addr"` // empty disables the redis cache tier
	CacheTTL  Duration `yaml:"cache_ttl"`
	RPS       float64  `yaml:"rps"`
	Burst     int      `yaml:"burst"`
}

// StoreConfig configures optional Postgres persistence of run results.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// HTTPConfig configures the read-only results server.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Default returns the baseline configuration; Load overlays the YAML file on
// top of it.
func Default() Config {
	return Config{
		Windows:      []int{5, 10, 21},
		Signal:       SignalConfig{Source: "average", ForwardHorizon: 5, Folds: 5, Estimators: 200, LearningRate: 0.1},
		Portfolio:    PortfolioConfig{Policy: "decile", TopPct: 0.1, TargetVol: 0.02, WeightCap: 0.1},
		CostBps:      5,
		StartCapital: 1000,
		Data:         DataConfig{CacheTTL: Duration(15 * time.Minute), RPS: 4, Burst: 8},
		HTTP:         HTTPConfig{Host: "127.0.0.1", Port: 8080},
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate fails fast on configuration errors. These are programmer errors,
// not runtime data conditions, so nothing here degrades gracefully.
func (c Config) Validate() error {
	if len(c.Universe) == 0 {
		return fmt.Errorf("universe must name at least one ticker")
	}
	if len(c.Windows) == 0 {
		return fmt.Errorf("windows must name at least one window length")
	}
	seen := make(map[int]bool)
	for _, w := range c.Windows {
		if w <= 0 {
			return fmt.Errorf("window lengths must be positive, got %d", w)
		}
		if seen[w] {
			return fmt.Errorf("duplicate window length %d", w)
		}
		seen[w] = true
	}

	for _, name := range c.SignalColumns {
		ref, err := features.ParseRef(name)
		if err != nil {
			return err
		}
		if !seen[ref.Window] {
			return fmt.Errorf("signal column %s references window %d outside the window set", name, ref.Window)
		}
	}

	switch signal.SourceKind(c.Signal.Source) {
	case signal.SourceAverage, signal.SourceLinear, signal.SourceBoosted:
	default:
		return fmt.Errorf("unsupported signal source %q", c.Signal.Source)
	}

	if len(c.Signal.Weights) > 0 {
		columns := len(c.SignalColumns)
		if columns == 0 {
			columns = 2 * len(c.Windows)
		}
		if len(c.Signal.Weights) != columns {
			return fmt.Errorf("signal weights count %d does not match %d feature columns", len(c.Signal.Weights), columns)
		}
	}

	switch portfolio.Policy(c.Portfolio.Policy) {
	case portfolio.PolicyDecile:
	case portfolio.PolicyVolTarget:
		if !seen[21] {
			return fmt.Errorf("vol_target policy requires window 21 in the window set")
		}
		if c.Portfolio.TargetVol <= 0 {
			return fmt.Errorf("target_vol must be positive, got %v", c.Portfolio.TargetVol)
		}
		if c.Portfolio.WeightCap <= 0 {
			return fmt.Errorf("weight_cap must be positive, got %v", c.Portfolio.WeightCap)
		}
	default:
		return fmt.Errorf("unsupported portfolio policy %q", c.Portfolio.Policy)
	}

	if c.Portfolio.TopPct <= 0 || c.Portfolio.TopPct > 0.5 {
		return fmt.Errorf("top_pct must be in (0, 0.5], got %v", c.Portfolio.TopPct)
	}
	if c.CostBps < 0 {
		return fmt.Errorf("cost_bps must be non-negative, got %v", c.CostBps)
	}
	if c.StartCapital <= 0 {
		return fmt.Errorf("start_capital must be positive, got %v", c.StartCapital)
	}

	for _, field := range []struct {
		name, value string
		required    bool
	}{
		{"start_date", c.StartDate, true},
		{"end_date", c.EndDate, false},
		{"split_date", c.SplitDate, true},
	} {
		if field.value == "" {
			if field.required {
				return fmt.Errorf("%s is required", field.name)
			}
			continue
		}
		if _, err := time.Parse(DateFormat, field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}

	if c.Store.Enabled && c.Store.DSN == "" {
		return fmt.Errorf("store DSN is required when store is enabled")
	}

	return nil
}

// Split returns the parsed in-sample/out-of-sample cutoff date.
func (c Config) Split() time.Time {
	t, _ := time.Parse(DateFormat, c.SplitDate)
	return t
}

// SignalSource resolves the configured tagged signal source, expanding an
// empty column list to every feature column in the window set.
func (c Config) SignalSource() (signal.Source, error) {
	var columns []features.Ref
	if len(c.SignalColumns) == 0 {
		columns = features.Refs(c.Windows)
	} else {
		for _, name := range c.SignalColumns {
			ref, err := features.ParseRef(name)
			if err != nil {
				return signal.Source{}, err
			}
			columns = append(columns, ref)
		}
	}

	return signal.Source{
		Kind:           signal.SourceKind(c.Signal.Source),
		Columns:        columns,
		Weights:        c.Signal.Weights,
		ForwardHorizon: c.Signal.ForwardHorizon,
		Folds:          c.Signal.Folds,
		Estimators:     c.Signal.Estimators,
		LearningRate:   c.Signal.LearningRate,
	}, nil
}

// PortfolioSettings resolves the typed portfolio constructor configuration.
func (c Config) PortfolioSettings() portfolio.Config {
	return portfolio.Config{
		Policy:    portfolio.Policy(c.Portfolio.Policy),
		TopPct:    c.Portfolio.TopPct,
		TargetVol: c.Portfolio.TargetVol,
		WeightCap: c.Portfolio.WeightCap,
	}
}
