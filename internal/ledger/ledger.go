// Package ledger records monetary events emitted by provider invocations.
// Events are append-only facts; job totals are always derived by summing
// them, never stored as a second source of truth.
package ledger

import (
	"context"
	"time"

	"fitstudio/internal/domain"
)

// CostEvent is one immutable monetary fact.
type CostEvent struct {
	ID         string
	StoreID    string
	JobID      string // empty for operations outside a job
	Provider   string
	Operation  string
	Amount     domain.Money
	OccurredAt time.Time
	Metadata   map[string]any
}

// Recorder appends cost events. Recording is a best-effort side channel: the
// method returns nothing, implementations log failures locally and never
// propagate them into the pipeline.
type Recorder interface {
	Record(ctx context.Context, ev CostEvent)
}
