package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/raphaelgruber/deepresearch/internal/models"
)

// entry holds one job's state together with its own lock, so that updates to
// different jobs never contend.
type entry struct {
	mu     sync.Mutex
	job    models.Job
	result *models.Result
}

// Memory is an in-memory Store. The outer lock only guards the map; each job
// carries its own mutex.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*entry
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*entry)}
}

// Create registers a new job in the queued state.
func (m *Memory) Create(_ context.Context, id, query string) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[id]; exists {
		return models.Job{}, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	now := time.Now()
	job := models.Job{
		ID:        id,
		Query:     query,
		Status:    models.JobStatusQueued,
		Progress:  0,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.jobs[id] = &entry{job: job}
	return job, nil
}

// lookup returns the entry for id or ErrNotFound.
func (m *Memory) lookup(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Get returns a snapshot of the job.
func (m *Memory) Get(_ context.Context, id string) (models.Job, error) {
	e, err := m.lookup(id)
	if err != nil {
		return models.Job{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job, nil
}

// List returns all jobs, most recently created first.
func (m *Memory) List(_ context.Context) ([]models.Job, error) {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.jobs))
	for _, e := range m.jobs {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	jobs := make([]models.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		jobs = append(jobs, e.job)
		e.mu.Unlock()
	}

	slices.SortFunc(jobs, func(a, b models.Job) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return jobs, nil
}

// UpdateStatus applies a status/progress/message mutation.
func (m *Memory) UpdateStatus(_ context.Context, id string, status models.JobStatus, progress int, message string) (models.Job, error) {
	e, err := m.lookup(id)
	if err != nil {
		return models.Job{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !models.CanTransition(e.job.Status, status) {
		return models.Job{}, fmt.Errorf("%w: %s -> %s", ErrConflict, e.job.Status, status)
	}

	if status == models.JobStatusFailed {
		progress = 0
	} else if progress < e.job.Progress {
		// Progress is monotonic outside of failure; keep the high-water mark.
		progress = e.job.Progress
	}

	e.job.Status = status
	e.job.Progress = progress
	e.job.Message = message
	e.job.UpdatedAt = time.Now()
	return e.job, nil
}

// Requeue moves a failed job back to queued for another attempt.
func (m *Memory) Requeue(_ context.Context, id, message string) (models.Job, error) {
	e, err := m.lookup(id)
	if err != nil {
		return models.Job{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status != models.JobStatusFailed {
		return models.Job{}, fmt.Errorf("%w: cannot requeue job in status %s", ErrConflict, e.job.Status)
	}

	e.job.Status = models.JobStatusQueued
	e.job.Progress = 0
	e.job.Message = message
	e.job.UpdatedAt = time.Now()
	return e.job, nil
}

// PutResult stores the terminal artifact for a job.
func (m *Memory) PutResult(_ context.Context, id string, result models.Result) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.result != nil {
		return fmt.Errorf("%w: result already stored for %s", ErrConflict, id)
	}
	switch e.job.Status {
	case models.JobStatusAnalyzing, models.JobStatusCompleted:
		// Result is produced at the end of the analyzing stage; storing it
		// just before the completed transition is the normal path.
	default:
		return fmt.Errorf("%w: cannot store result in status %s", ErrConflict, e.job.Status)
	}

	e.result = &result
	e.job.UpdatedAt = time.Now()
	return nil
}

// GetResult returns the stored result of a completed job.
func (m *Memory) GetResult(_ context.Context, id string) (models.Result, error) {
	e, err := m.lookup(id)
	if err != nil {
		return models.Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status != models.JobStatusCompleted || e.result == nil {
		return models.Result{}, fmt.Errorf("%w: %s is %s", ErrNotReady, id, e.job.Status)
	}
	return *e.result, nil
}

// Stats returns per-status job counts.
func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	jobs, err := m.List(ctx)
	if err != nil {
		return Stats{}, err
	}

	var s Stats
	for _, job := range jobs {
		switch job.Status {
		case models.JobStatusQueued:
			s.Queued++
		case models.JobStatusCompleted:
			s.Completed++
		case models.JobStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
		s.Total++
	}
	return s, nil
}
