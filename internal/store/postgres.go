// Package store persists run results for later comparison across
// configurations. It is a reporting collaborator: the pipeline core never
// touches it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/xsect/alphabench/internal/backtest"
	"github.com/xsect/alphabench/internal/perf"
	"github.com/xsect/alphabench/internal/pipeline"
)

// RunRecord is the persisted view of one pipeline run.
type RunRecord struct {
	RunID     string         `db:"run_id" json:"run_id"`
	StartedAt time.Time      `db:"started_at" json:"started_at"`
	Summaries []perf.Summary `json:"summaries"`
}

// Repo stores and retrieves run results.
type Repo interface {
	SaveRun(ctx context.Context, result *pipeline.Result) error
	GetRun(ctx context.Context, runID string) (*pipeline.Result, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// postgresRepo implements Repo on PostgreSQL.
type postgresRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to PostgreSQL and returns a Repo.
func Open(dsn string) (Repo, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open results store: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return NewRepo(db), nil
}

// NewRepo wraps an existing connection, which tests provide via sqlmock.
func NewRepo(db *sqlx.DB) Repo {
	return &postgresRepo{db: db, timeout: 10 * time.Second}
}

// SaveRun inserts the run header, its labeled summaries and every PnL point
// in one transaction.
func (r *postgresRepo) SaveRun(ctx context.Context, result *pipeline.Result) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	turnover, err := json.Marshal(result.Turnover)
	if err != nil {
		return fmt.Errorf("failed to marshal turnover: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, elapsed_ms, turnover) VALUES ($1, $2, $3, $4)`,
		result.RunID, result.StartedAt, result.Elapsed.Milliseconds(), turnover); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", result.RunID, err)
	}

	for _, s := range result.Summaries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_summaries (run_id, label, periods, mean, std, sharpe, hit_rate, max_drawdown, ending_value)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			result.RunID, s.Label, s.Periods, s.Mean, s.Std, s.Sharpe, s.HitRate, s.MaxDrawdown, s.EndingValue); err != nil {
			return fmt.Errorf("failed to insert summary %s/%s: %w", result.RunID, s.Label, err)
		}
	}

	for label, series := range result.Series {
		for _, p := range series {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO run_pnl (run_id, label, ts, ret) VALUES ($1, $2, $3, $4)`,
				result.RunID, label, p.Date, p.Return); err != nil {
				return fmt.Errorf("failed to insert pnl point %s/%s: %w", result.RunID, label, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", result.RunID, err)
	}
	return nil
}

// GetRun reassembles a run from its persisted rows.
func (r *postgresRepo) GetRun(ctx context.Context, runID string) (*pipeline.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var header struct {
		RunID     string    `db:"run_id"`
		StartedAt time.Time `db:"started_at"`
		ElapsedMS int64     `db:"elapsed_ms"`
		Turnover  []byte    `db:"turnover"`
	}
	err := r.db.GetContext(ctx, &header,
		`SELECT run_id, started_at, elapsed_ms, turnover FROM runs WHERE run_id = $1`, runID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	result := &pipeline.Result{
		RunID:     header.RunID,
		StartedAt: header.StartedAt,
		Elapsed:   time.Duration(header.ElapsedMS) * time.Millisecond,
		Series:    make(map[string]backtest.Series),
		Turnover:  make(map[string]float64),
	}
	if len(header.Turnover) > 0 {
		if err := json.Unmarshal(header.Turnover, &result.Turnover); err != nil {
			return nil, fmt.Errorf("failed to decode turnover for run %s: %w", runID, err)
		}
	}

	var summaries []perf.Summary
	err = r.db.SelectContext(ctx, &summaries,
		`SELECT label, periods, mean, std, sharpe, hit_rate AS hitrate, max_drawdown AS maxdrawdown, ending_value AS endingvalue
		 FROM run_summaries WHERE run_id = $1 ORDER BY label`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load summaries for run %s: %w", runID, err)
	}
	result.Summaries = summaries

	rows, err := r.db.QueryxContext(ctx,
		`SELECT label, ts, ret FROM run_pnl WHERE run_id = $1 ORDER BY label, ts`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pnl for run %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var p backtest.Point
		if err := rows.Scan(&label, &p.Date, &p.Return); err != nil {
			return nil, fmt.Errorf("failed to scan pnl row for run %s: %w", runID, err)
		}
		result.Series[label] = append(result.Series[label], p)
	}
	return result, rows.Err()
}

// ListRuns returns the most recent run headers.
func (r *postgresRepo) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	var records []RunRecord
	err := r.db.SelectContext(ctx, &records,
		`SELECT run_id, started_at FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return records, nil
}
