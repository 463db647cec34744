// Package jobs persists scheduled tasks created by the scheduler tool.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status is the lifecycle state of a scheduled job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Job is one scheduled task: deliver Message to Principal at RunAt. A
// non-empty CronSpec makes the job recurring; delivery reschedules it to
// the expression's next fire time instead of completing it.
type Job struct {
	ID          string    `json:"id"`
	Principal   string    `json:"principal"`
	Message     string    `json:"message"`
	RunAt       time.Time `json:"run_at"`
	CronSpec    string    `json:"cron_spec,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Store persists job records. Implementations must be safe for
// concurrent use.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Update(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, limit, offset int) ([]*Job, error)

	// Due returns pending jobs whose RunAt is at or before now.
	Due(ctx context.Context, now time.Time) ([]*Job, error)

	// Prune removes finished jobs older than the given duration and
	// reports how many were removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)

	// Cancel marks a pending job cancelled.
	Cancel(ctx context.Context, id string) error

	Close() error
}

// MemoryStore keeps jobs in memory. Used in tests and when no database
// path is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	keys []string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func cloneJob(j *Job) *Job {
	copied := *j
	return &copied
}

// Create stores a job.
func (s *MemoryStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		s.keys = append(s.keys, job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// Update replaces a job record.
func (s *MemoryStore) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		s.keys = append(s.keys, job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// Get returns a job by id, or nil when absent.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(job), nil
}

// List returns jobs in insertion order.
func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.keys) {
		return nil, nil
	}
	end := len(s.keys)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*Job, 0, end-offset)
	for _, id := range s.keys[offset:end] {
		if job, ok := s.jobs[id]; ok {
			out = append(out, cloneJob(job))
		}
	}
	return out, nil
}

// Due returns pending jobs scheduled at or before now, earliest first.
func (s *MemoryStore) Due(ctx context.Context, now time.Time) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Job
	for _, job := range s.jobs {
		if job.Status == StatusPending && !job.RunAt.After(now) {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	return out, nil
}

// Prune removes finished jobs older than olderThan.
func (s *MemoryStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned int64
	kept := s.keys[:0]
	for _, id := range s.keys {
		job := s.jobs[id]
		if job != nil && job.Status != StatusPending && job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			pruned++
			continue
		}
		kept = append(kept, id)
	}
	s.keys = kept
	return pruned, nil
}

// Cancel marks a pending job cancelled. Cancelling a finished or unknown
// job is a no-op.
func (s *MemoryStore) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != StatusPending {
		return nil
	}
	job.Status = StatusCancelled
	job.CompletedAt = time.Now()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
