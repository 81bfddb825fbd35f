package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()

	r.RunsTotal.WithLabelValues("ok").Inc()
	r.RunsTotal.WithLabelValues("ok").Inc()
	r.RunsTotal.WithLabelValues("error").Inc()
	r.StageDuration.WithLabelValues("features").Observe(0.02)
	r.RowsProcessed.WithLabelValues("features").Set(120)

	families, err := r.Snapshot()
	require.NoError(t, err)

	runs, ok := families["alphabench_runs_total"]
	require.True(t, ok)
	var okCount, errCount float64
	for _, m := range runs.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "result" && l.GetValue() == "ok" {
				okCount = m.GetCounter().GetValue()
			}
			if l.GetName() == "result" && l.GetValue() == "error" {
				errCount = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, okCount)
	assert.Equal(t, 1.0, errCount)

	duration, ok := families["alphabench_stage_duration_seconds"]
	require.True(t, ok)
	assert.Equal(t, uint64(1), duration.GetMetric()[0].GetHistogram().GetSampleCount())

	rows, ok := families["alphabench_rows_processed"]
	require.True(t, ok)
	assert.Equal(t, 120.0, rows.GetMetric()[0].GetGauge().GetValue())
}

func TestRegistry_Isolated(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	a.CacheHits.WithLabelValues("panel").Inc()

	families, err := b.Snapshot()
	require.NoError(t, err)
	// Unincremented vectors gather no series in b.
	_, ok := families["alphabench_cache_hits_total"]
	assert.False(t, ok)
}

func TestRegistry_GathererServesStage(t *testing.T) {
	r := NewRegistry()
	start := time.Now()
	r.StageDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
