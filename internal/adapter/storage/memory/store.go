package memory

import (
	"database/sql"
	"sync"
	"time"

	"smelt/internal/domain"
	"smelt/internal/port"
)

// Store is a mutex-guarded in-memory job store. It backs the "memory" store
// backend for throwaway deployments and gives tests a store without disk or
// migration setup. Semantics mirror the SQLite store, including the guarded
// monotonic transitions.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*domain.Job
	order []string // submission order for FIFO claim
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*domain.Job),
	}
}

func (s *Store) Create(job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *job
	s.jobs[job.ID] = &clone
	s.order = append(s.order, job.ID)
	return nil
}

func (s *Store) Get(id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *Store) CountBacklog() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusQueued {
			n++
		}
	}
	return n, nil
}

func (s *Store) Claim() (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		job, ok := s.jobs[id]
		if !ok || job.Status != domain.JobStatusQueued {
			continue
		}
		now := time.Now().UTC()
		job.Status = domain.JobStatusRunning
		job.Attempts++
		job.StartedAt = sql.NullTime{Time: now, Valid: true}
		job.UpdatedAt = now
		clone := *job
		return &clone, nil
	}
	return nil, nil
}

func (s *Store) MarkSucceeded(id string, artifact domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || !domain.ValidTransition(job.Status, domain.JobStatusSucceeded) {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusSucceeded
	job.Artifact = &artifact
	job.UpdatedAt = now
	job.CompletedAt = sql.NullTime{Time: now, Valid: true}
	return nil
}

func (s *Store) MarkFailed(id string, kind domain.FailureKind, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || !domain.ValidTransition(job.Status, domain.JobStatusFailed) {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusFailed
	job.FailureKind = kind
	job.ErrorMessage = detail
	job.UpdatedAt = now
	job.CompletedAt = sql.NullTime{Time: now, Valid: true}
	return nil
}

func (s *Store) CancelQueued(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != domain.JobStatusQueued {
		return false, nil
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusFailed
	job.FailureKind = domain.FailureCancelled
	job.ErrorMessage = "cancelled before running"
	job.UpdatedAt = now
	job.CompletedAt = sql.NullTime{Time: now, Valid: true}
	return true, nil
}

func (s *Store) ResetStalled() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.Status == domain.JobStatusRunning {
			job.Status = domain.JobStatusQueued
			job.StartedAt = sql.NullTime{}
			job.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (s *Store) ListExpired(ttl time.Duration) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-ttl)
	var expired []*domain.Job
	for _, job := range s.jobs {
		if job.Status.Terminal() && job.CompletedAt.Valid && job.CompletedAt.Time.Before(cutoff) {
			clone := *job
			expired = append(expired, &clone)
		}
	}
	return expired, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

var _ port.JobStore = (*Store)(nil)
