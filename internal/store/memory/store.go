// Package memory provides an in-memory JobStore for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xenlix/aeoscan/internal/scan"
)

// Store keeps jobs in a map guarded by a mutex. It enforces the same
// transition rules as the postgres store: progress never decreases and
// terminal states are immutable.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*scan.Job
}

// New constructs an empty Store.
func New() *Store {
	return &Store{jobs: make(map[string]*scan.Job)}
}

// CreateJob implements scan.JobStore.
func (s *Store) CreateJob(_ context.Context, job scan.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return scan.ErrAlreadyExists
	}
	s.jobs[job.ID] = &job
	return nil
}

// GetJob implements scan.JobStore.
func (s *Store) GetJob(_ context.Context, jobID string) (scan.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scan.Job{}, scan.ErrNotFound
	}
	return *job, nil
}

// UpdateState implements scan.JobStore. Updates against terminal jobs are
// silently ignored so reprocessing a finished job is a no-op, and progress
// is clamped to be non-decreasing.
func (s *Store) UpdateState(_ context.Context, jobID string, state scan.JobState, step scan.Step, progress int, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scan.ErrNotFound
	}
	if job.State.IsTerminal() {
		return nil
	}
	job.State = state
	job.Step = step
	if progress > job.Progress {
		job.Progress = progress
	}
	job.ErrorText = errText
	now := time.Now().UTC()
	job.Updated = now
	if state == scan.StateRunning && job.Started == nil {
		started := now
		job.Started = &started
	}
	if state.IsTerminal() {
		finished := now
		job.Finished = &finished
	}
	return nil
}

// SaveTeaser implements scan.JobStore.
func (s *Store) SaveTeaser(_ context.Context, jobID string, teaser scan.TeaserPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scan.ErrNotFound
	}
	job.Teaser = &teaser
	job.Updated = time.Now().UTC()
	return nil
}

// SaveFull implements scan.JobStore.
func (s *Store) SaveFull(_ context.Context, jobID string, full scan.FullPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scan.ErrNotFound
	}
	job.Full = &full
	job.Updated = time.Now().UTC()
	return nil
}

// DeleteExpired implements scan.JobStore.
func (s *Store) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, job := range s.jobs {
		if !job.ExpiresAt.IsZero() && job.ExpiresAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

// FailStuck implements scan.JobStore. Jobs still running whose last update
// is older than the cutoff are failed so clients stop polling forever.
func (s *Store) FailStuck(_ context.Context, cutoff time.Time, errText string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := time.Now().UTC()
	for _, job := range s.jobs {
		if job.State != scan.StateRunning || !job.Updated.Before(cutoff) {
			continue
		}
		job.State = scan.StateErrorAnalyze
		job.ErrorText = errText
		job.Updated = now
		finished := now
		job.Finished = &finished
		n++
	}
	return n, nil
}

// Len reports the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
