package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xsect/alphabench/internal/pipeline"
)

// memoryRepo keeps run results in process, for runs that do not configure
// PostgreSQL but still want the results API.
type memoryRepo struct {
	mu   sync.RWMutex
	runs map[string]*pipeline.Result
}

// NewMemoryRepo returns an in-process Repo.
func NewMemoryRepo() Repo {
	return &memoryRepo{runs: make(map[string]*pipeline.Result)}
}

func (r *memoryRepo) SaveRun(_ context.Context, result *pipeline.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[result.RunID] = result
	return nil
}

func (r *memoryRepo) GetRun(_ context.Context, runID string) (*pipeline.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return result, nil
}

func (r *memoryRepo) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]RunRecord, 0, len(r.runs))
	for _, result := range r.runs {
		records = append(records, RunRecord{
			RunID:     result.RunID,
			StartedAt: result.StartedAt,
			Summaries: result.Summaries,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StartedAt.After(records[j].StartedAt) })

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
