// Package jobstore persists ingestion job state.
package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

// Memory keeps jobs in process memory. Terminal jobs are forgotten after
// the retention period.
type Memory struct {
	retention time.Duration

	mu   sync.RWMutex
	jobs map[string]*domain.IngestionJob
}

func NewMemory(retention time.Duration) *Memory {
	return &Memory{retention: retention, jobs: make(map[string]*domain.IngestionJob)}
}

func (m *Memory) Save(_ context.Context, job *domain.IngestionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	m.evictLocked(time.Now())
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*domain.IngestionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.Errorf(domain.KindNotFound, "job %q not found", id)
	}
	return job.Clone(), nil
}

func (m *Memory) evictLocked(now time.Time) {
	if m.retention <= 0 {
		return
	}
	for id, j := range m.jobs {
		if j.Status.Terminal() && now.Sub(j.UpdatedAt) > m.retention {
			delete(m.jobs, id)
		}
	}
}
