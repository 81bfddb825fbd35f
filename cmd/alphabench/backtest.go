package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/xsect/alphabench/internal/config"
	"github.com/xsect/alphabench/internal/data"
	"github.com/xsect/alphabench/internal/metrics"
	"github.com/xsect/alphabench/internal/pipeline"
	"github.com/xsect/alphabench/internal/store"
)

func backtestCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run the signal-to-PnL pipeline and print the performance report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runBacktest(cmd.Context(), cfg)
		},
	}

	addConfigFlag(cmd.Flags(), &configPath)
	return cmd
}

func addConfigFlag(flags *pflag.FlagSet, configPath *string) {
	flags.StringVarP(configPath, "config", "c", "config/backtest.yaml", "path to run configuration")
}

func runBacktest(ctx context.Context, cfg config.Config) error {
	reg := metrics.NewRegistry()
	provider := buildProvider(cfg, reg)

	runner := pipeline.NewRunner(cfg, provider, reg)
	if cfg.BenchmarkCSV != "" {
		benchmark, err := data.LoadReturnSeries(cfg.BenchmarkCSV)
		if err != nil {
			return err
		}
		runner.WithBenchmark(benchmark)
	}

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	printReport(result)

	if cfg.Store.Enabled {
		repo, err := store.Open(cfg.Store.DSN)
		if err != nil {
			return err
		}
		if err := repo.SaveRun(ctx, result); err != nil {
			return err
		}
		log.Info().Str("run_id", result.RunID).Msg("run persisted")
	}
	return nil
}

// buildProvider assembles the data boundary: CSV source, guarded, with a
// cache tier in front.
func buildProvider(cfg config.Config, reg *metrics.Registry) data.Provider {
	var provider data.Provider = &data.CSVProvider{Path: cfg.Data.CSVPath}
	provider = data.NewGuardedProvider(provider, cfg.Data.RPS, cfg.Data.Burst)
	return &data.CachedProvider{
		Inner:   provider,
		Cache:   data.NewAutoCache(cfg.Data.RedisAddr),
		TTL:     cfg.Data.CacheTTL.Std(),
		Metrics: reg,
	}
}

func printReport(result *pipeline.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "run %s\n", result.RunID)
	fmt.Fprintln(w, "series\tdays\tmean\tstd\tsharpe\thit rate\tmax dd\tending value")
	for _, s := range result.Summaries {
		fmt.Fprintf(w, "%s\t%d\t%.5f\t%.5f\t%.2f\t%.1f%%\t%.2f%%\t$%.2f\n",
			s.Label, s.Periods, s.Mean, s.Std, s.Sharpe, s.HitRate*100, s.MaxDrawdown*100, s.EndingValue)
	}
	for label, turnover := range result.Turnover {
		fmt.Fprintf(w, "turnover (%s)\t%.4f\n", label, turnover)
	}
	w.Flush()
}
