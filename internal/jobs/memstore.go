package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store used by tests and the
// inline development setup. It is an explicit object with no
// package-level state; construct one per service instance.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	byKey map[string]string // idempotency key -> job id
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]*Job),
		byKey: make(map[string]string),
	}
}

func (s *MemoryStore) CreateOrGet(ctx context.Context, job *Job) (*Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.IdempotencyKey != "" {
		if existingID, ok := s.byKey[job.IdempotencyKey]; ok {
			existing := *s.jobs[existingID]
			return &existing, false, nil
		}
		s.byKey[job.IdempotencyKey] = job.ID
	}

	stored := *job
	s.jobs[job.ID] = &stored

	out := stored
	return &out, true, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, jobID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	snapshot := *job
	return &snapshot, nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.JobType != "" && job.JobType != filter.JobType {
			continue
		}
		all = append(all, *job)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if filter.Cursor != nil {
		trimmed := all[:0]
		for _, job := range all {
			if job.CreatedAt.Before(filter.Cursor.CreatedAt) ||
				(job.CreatedAt.Equal(filter.Cursor.CreatedAt) && job.ID < filter.Cursor.JobID) {
				trimmed = append(trimmed, job)
			}
		}
		all = trimmed
	}

	if filter.PageSize > 0 && len(all) > filter.PageSize+1 {
		all = all[:filter.PageSize+1]
	}

	return all, nil
}

func (s *MemoryStore) Claim(ctx context.Context, jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.Status != StatusPending {
		return nil, ErrJobNotClaimable
	}

	now := time.Now()
	job.Status = StatusProcessing
	job.StartedAt = &now
	job.UpdatedAt = now

	snapshot := *job
	return &snapshot, nil
}

func (s *MemoryStore) SetTotal(ctx context.Context, jobID string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Counters.Total = total
	job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ApplyDelta(ctx context.Context, jobID string, delta Delta, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	job.Counters.Processed += delta.Processed
	job.Counters.Added += delta.Added
	job.Counters.Skipped += delta.Skipped
	job.Counters.Failed += delta.Failed
	if errMsg != "" {
		job.ErrorMessage = errMsg
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Transition(ctx context.Context, jobID string, status string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if IsTerminal(job.Status) {
		return ErrJobTerminal
	}

	now := time.Now()
	job.Status = status
	job.UpdatedAt = now
	if IsTerminal(status) {
		job.CompletedAt = &now
	}
	if errMsg != "" {
		job.ErrorMessage = errMsg
	}
	return nil
}

func (s *MemoryStore) RequestCancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if IsTerminal(job.Status) {
		return ErrJobTerminal
	}

	job.CancelRequested = true
	job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return false, ErrJobNotFound
	}
	return job.CancelRequested, nil
}
