// Package jobs runs analyses in the background behind durable job handles.
package jobs

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

// Store persists job records. Get returns nil, nil for an unknown id.
type Store interface {
	Create(ctx context.Context, job *types.Job) error
	Update(ctx context.Context, job *types.Job) error
	Get(ctx context.Context, id uuid.UUID) (*types.Job, error)
	List(ctx context.Context, limit int) ([]*types.Job, error)
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*types.Job
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]*types.Job)}
}

// Create stores a new job.
func (s *MemoryStore) Create(_ context.Context, job *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return &StoreError{Message: "job already exists", JobID: job.ID}
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Update replaces a stored job.
func (s *MemoryStore) Update(_ context.Context, job *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return &StoreError{Message: "job not found", JobID: job.ID}
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns a copy of the job, or nil if it does not exist.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id].Clone(), nil
}

// List returns the most recently created jobs first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*types.Job, error) {
	s.mu.RLock()
	out := make([]*types.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
