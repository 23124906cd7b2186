// Package repo holds the PostgreSQL adapters behind the domain persistence
// interfaces.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitstudio/internal/domain"
)

const jobsSchema = `--sql 6e2a9f05-31c8-4d76-8b93-e74d05c2a1f4
CREATE TABLE IF NOT EXISTS composition_jobs (
    id                TEXT PRIMARY KEY,
    store_id          TEXT NOT NULL,
    state             TEXT NOT NULL,
    request_json      JSONB NOT NULL,
    steps_json        JSONB NOT NULL DEFAULT '[]'::jsonb,
    result_urls       JSONB NOT NULL DEFAULT '[]'::jsonb,
    total_cost_micros BIGINT NOT NULL DEFAULT 0,
    currency          TEXT NOT NULL DEFAULT 'USD',
    error_message     TEXT,
    created_at        TIMESTAMPTZ NOT NULL,
    completed_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_composition_jobs_store ON composition_jobs (store_id, created_at DESC);
`

// JobRepositoryPG persists composition job snapshots in PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// EnsureSchema creates the jobs table when it does not exist yet.
func (r *JobRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, jobsSchema); err != nil {
		return fmt.Errorf("repo: ensure jobs schema: %w", err)
	}
	return nil
}

// Save upserts the current job snapshot. The orchestrator calls it on every
// terminal transition, so the row always reflects the latest state.
func (r *JobRepositoryPG) Save(ctx context.Context, job *domain.CompositionJob) error {
	requestJSON, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("repo: marshal request: %w", err)
	}
	stepsJSON, err := json.Marshal(job.Steps)
	if err != nil {
		return fmt.Errorf("repo: marshal steps: %w", err)
	}
	urlsJSON, err := json.Marshal(job.ResultURLs)
	if err != nil {
		return fmt.Errorf("repo: marshal result urls: %w", err)
	}

	query := `--sql 82cf4b7a-d019-4f5e-a6c2-3b98e1d7f063
INSERT INTO composition_jobs
    (id, store_id, state, request_json, steps_json, result_urls, total_cost_micros, currency, error_message, created_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, NULLIF($11, '0001-01-01T00:00:00Z'::timestamptz))
ON CONFLICT (id) DO UPDATE SET
    state             = EXCLUDED.state,
    steps_json        = EXCLUDED.steps_json,
    result_urls       = EXCLUDED.result_urls,
    total_cost_micros = EXCLUDED.total_cost_micros,
    currency          = EXCLUDED.currency,
    error_message     = EXCLUDED.error_message,
    completed_at      = EXCLUDED.completed_at;
`
	currency := job.TotalCost.Currency
	if currency == "" {
		currency = "USD"
	}
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.Request.StoreID,
		job.State,
		requestJSON,
		stepsJSON,
		urlsJSON,
		job.TotalCost.Micros,
		currency,
		job.ErrorDetail,
		job.CreatedAt,
		job.CompletedAt,
	)
	return err
}

// GetByID loads one job snapshot.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.CompositionJob, error) {
	query := `--sql c1d84e92-7a3f-4b06-95ce-48f2a6b0d711
SELECT id, state, request_json, steps_json, result_urls, total_cost_micros, currency, COALESCE(error_message, ''), created_at, COALESCE(completed_at, '0001-01-01T00:00:00Z'::timestamptz)
FROM composition_jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	return scanJob(row)
}

// ListByStore returns the most recent jobs for one tenant.
func (r *JobRepositoryPG) ListByStore(ctx context.Context, storeID string, limit int) ([]*domain.CompositionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `--sql 5b09d3c7-e8f1-4a24-b6d0-92c75e4a8f36
SELECT id, state, request_json, steps_json, result_urls, total_cost_micros, currency, COALESCE(error_message, ''), created_at, COALESCE(completed_at, '0001-01-01T00:00:00Z'::timestamptz)
FROM composition_jobs
WHERE store_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, query, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.CompositionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.CompositionJob, error) {
	var (
		job         domain.CompositionJob
		requestJSON []byte
		stepsJSON   []byte
		urlsJSON    []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.State,
		&requestJSON,
		&stepsJSON,
		&urlsJSON,
		&job.TotalCost.Micros,
		&job.TotalCost.Currency,
		&job.ErrorDetail,
		&job.CreatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(requestJSON, &job.Request); err != nil {
		return nil, fmt.Errorf("repo: unmarshal request: %w", err)
	}
	if err := json.Unmarshal(stepsJSON, &job.Steps); err != nil {
		return nil, fmt.Errorf("repo: unmarshal steps: %w", err)
	}
	if err := json.Unmarshal(urlsJSON, &job.ResultURLs); err != nil {
		return nil, fmt.Errorf("repo: unmarshal result urls: %w", err)
	}
	return &job, nil
}
