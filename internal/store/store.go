// Package store provides job state storage for the research pipeline.
// The default implementation keeps everything in memory; a SurrealDB-backed
// implementation is available for deployments that need jobs to survive a
// process restart.
package store

import (
	"context"
	"errors"

	"github.com/raphaelgruber/deepresearch/internal/models"
)

// Sentinel errors for store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyExists indicates a job with the same ID already exists.
	ErrAlreadyExists = errors.New("job already exists")

	// ErrNotFound indicates the requested job does not exist.
	ErrNotFound = errors.New("job not found")

	// ErrNotReady indicates the job has not completed, so no result is
	// available yet.
	ErrNotReady = errors.New("job not completed")

	// ErrConflict indicates an update that would violate the job state
	// machine: a transition out of a terminal state, a result stored twice,
	// or a result stored before the analyzing stage.
	ErrConflict = errors.New("conflicting job update")
)

// Stats holds per-status job counts.
type Stats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"` // expanding, searching, processing, analyzing
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Store is the authoritative record of every submitted job and its result.
// Implementations must serialize concurrent access per job ID; operations on
// different job IDs must not contend.
type Store interface {
	// Create registers a new job in the queued state with progress 0.
	Create(ctx context.Context, id, query string) (models.Job, error)

	// Get returns a snapshot of the job.
	Get(ctx context.Context, id string) (models.Job, error)

	// List returns snapshots of all jobs, most recently created first.
	List(ctx context.Context) ([]models.Job, error)

	// UpdateStatus applies a status/progress/message mutation and bumps
	// UpdatedAt. Transitions out of a terminal state fail with ErrConflict.
	// Progress never regresses except when entering the failed state, where
	// it is forced to 0.
	UpdateStatus(ctx context.Context, id string, status models.JobStatus, progress int, message string) (models.Job, error)

	// Requeue moves a failed job back to queued for another attempt. This is
	// the only legal way out of the failed state and exists solely for the
	// scheduler's retry policy. Progress resets to 0.
	Requeue(ctx context.Context, id, message string) (models.Job, error)

	// PutResult stores the terminal artifact for a job. The job must have
	// reached the analyzing stage and must not already hold a result.
	PutResult(ctx context.Context, id string, result models.Result) error

	// GetResult returns the stored result. Unknown job IDs fail with
	// ErrNotFound; jobs that have not completed fail with ErrNotReady.
	GetResult(ctx context.Context, id string) (models.Result, error)

	// Stats returns per-status job counts.
	Stats(ctx context.Context) (Stats, error)
}
