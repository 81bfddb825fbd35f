// Package metrics exposes Prometheus instrumentation for pipeline runs and
// the data boundary.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry holds all alphabench Prometheus metrics on a dedicated
// prometheus.Registry so tests and the HTTP server share one gatherer.
type Registry struct {
	reg *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	RunsTotal     *prometheus.CounterVec
	RowsProcessed *prometheus.GaugeVec
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
}

// NewRegistry creates and registers the metric set.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alphabench_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"stage"},
		),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphabench_runs_total",
				Help: "Total pipeline runs by result",
			},
			[]string{"result"},
		),

		RowsProcessed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alphabench_rows_processed",
				Help: "Rows produced by each pipeline stage in the last run",
			},
			[]string{"stage"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphabench_cache_hits_total",
				Help: "Price panel cache hits by tier",
			},
			[]string{"tier"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alphabench_cache_misses_total",
				Help: "Price panel cache misses by tier",
			},
			[]string{"tier"},
		),
	}

	r.reg.MustRegister(r.StageDuration, r.RunsTotal, r.RowsProcessed, r.CacheHits, r.CacheMisses)
	return r
}

// Gatherer exposes the underlying registry for the /metrics endpoint.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Snapshot gathers the current metric families keyed by name, for status
// reporting and tests.
func (r *Registry) Snapshot() (map[string]*dto.MetricFamily, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out, nil
}
