package repo

import (
	"context"
	"sort"
	"sync"

	"fitstudio/internal/domain"
)

// JobMemory keeps job snapshots in process memory for runs without a
// database. Snapshots are deep enough copies that later orchestrator writes
// never race with readers.
type JobMemory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.CompositionJob
}

// NewJobMemory constructs an empty in-memory job store.
func NewJobMemory() *JobMemory {
	return &JobMemory{jobs: make(map[string]*domain.CompositionJob)}
}

// Save stores the current snapshot.
func (m *JobMemory) Save(ctx context.Context, job *domain.CompositionJob) error {
	snapshot := *job
	snapshot.Steps = append([]domain.StepRecord(nil), job.Steps...)
	snapshot.ResultURLs = append([]string(nil), job.ResultURLs...)
	m.mu.Lock()
	m.jobs[job.ID] = &snapshot
	m.mu.Unlock()
	return nil
}

// GetByID loads one job snapshot.
func (m *JobMemory) GetByID(ctx context.Context, jobID string) (*domain.CompositionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	snapshot := *job
	return &snapshot, nil
}

// ListByStore returns the most recent jobs for one tenant.
func (m *JobMemory) ListByStore(ctx context.Context, storeID string, limit int) ([]*domain.CompositionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	var jobs []*domain.CompositionJob
	for _, job := range m.jobs {
		if job.Request.StoreID == storeID {
			snapshot := *job
			jobs = append(jobs, &snapshot)
		}
	}
	m.mu.RUnlock()
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}
