package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitstudio/internal/infra"
)

const costEventsSchema = `--sql 3f6c1d6e-8a42-4b0c-9477-5f2e9a1b6c0d
CREATE TABLE IF NOT EXISTS cost_events (
	id         UUID PRIMARY KEY,
	store_id   TEXT NOT NULL,
	job_id     TEXT,
	provider   TEXT NOT NULL,
	operation  TEXT NOT NULL,
	amount     BIGINT NOT NULL,
	currency   TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS cost_events_job_idx ON cost_events (job_id);
`

const insertCostEvent = `--sql 9b7d2c41-55aa-4e83-b1fd-06c4a7d92e18
INSERT INTO cost_events (id, store_id, job_id, provider, operation, amount, currency, occurred_at, metadata)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9);
`

// Postgres appends cost events to the cost_events table. Writes are fire and
// forget: a failed insert is logged and dropped, the pipeline never sees it.
type Postgres struct {
	pool   *pgxpool.Pool
	logger infra.Logger
}

// NewPostgres creates a postgres-backed recorder.
func NewPostgres(pool *pgxpool.Pool, logger infra.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

// EnsureSchema creates the cost_events table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, costEventsSchema)
	return err
}

// Record implements Recorder.
func (p *Postgres) Record(ctx context.Context, ev CostEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		metadata = []byte("{}")
	}
	_, err = p.pool.Exec(ctx, insertCostEvent,
		ev.ID,
		ev.StoreID,
		ev.JobID,
		ev.Provider,
		ev.Operation,
		ev.Amount.Micros,
		ev.Amount.Currency,
		ev.OccurredAt,
		metadata,
	)
	if err != nil {
		p.logger.Error().Err(err).
			Str("job_id", ev.JobID).
			Str("provider", ev.Provider).
			Msg("ledger: cost event write failed")
	}
}

var _ Recorder = (*Postgres)(nil)
