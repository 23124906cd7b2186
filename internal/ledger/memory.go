package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"fitstudio/internal/domain"
)

// Memory keeps cost events in process memory. Used in tests and when the
// service runs without a database.
type Memory struct {
	mu     sync.Mutex
	events []CostEvent
}

// NewMemory constructs an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{}
}

// Record implements Recorder.
func (m *Memory) Record(ctx context.Context, ev CostEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

// Events returns a copy of every recorded event.
func (m *Memory) Events() []CostEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CostEvent, len(m.events))
	copy(out, m.events)
	return out
}

// EventsForJob returns the events recorded against one job.
func (m *Memory) EventsForJob(jobID string) []CostEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CostEvent
	for _, ev := range m.events {
		if ev.JobID == jobID {
			out = append(out, ev)
		}
	}
	return out
}

// TotalForJob sums the recorded amounts for one job.
func (m *Memory) TotalForJob(jobID string) domain.Money {
	var total domain.Money
	for _, ev := range m.EventsForJob(jobID) {
		if sum, err := total.Add(ev.Amount); err == nil {
			total = sum
		}
	}
	return total
}

var _ Recorder = (*Memory)(nil)
