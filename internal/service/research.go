// Package service provides the orchestration facade: the only entry point
// the transport layers use to submit research jobs and read their state.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/raphaelgruber/deepresearch/internal/models"
	"github.com/raphaelgruber/deepresearch/internal/store"
)

// ErrInvalidArgument marks a rejected submission input.
var ErrInvalidArgument = errors.New("invalid argument")

// Enqueuer admits a created job for asynchronous execution.
type Enqueuer interface {
	Enqueue(job models.Job) error
}

// Research is the orchestration facade over the job store and scheduler.
type Research struct {
	store store.Store
	queue Enqueuer
	log   *slog.Logger
}

// New creates the facade.
func New(s store.Store, queue Enqueuer, log *slog.Logger) *Research {
	if log == nil {
		log = slog.Default()
	}
	return &Research{store: s, queue: queue, log: log}
}

// Submit validates the query, creates the job in Queued state, and admits it
// to the scheduler. It returns immediately with the new job id.
func (r *Research) Submit(ctx context.Context, query string) (models.Job, error) {
	if strings.TrimSpace(query) == "" {
		return models.Job{}, fmt.Errorf("%w: query must not be empty", ErrInvalidArgument)
	}

	// Short ID for convenience, matching what the CLI prints.
	id := uuid.New().String()[:8]

	job, err := r.store.Create(ctx, id, query)
	if err != nil {
		return models.Job{}, fmt.Errorf("create job: %w", err)
	}

	if err := r.queue.Enqueue(job); err != nil {
		// The job exists but will never run; surface that in its state.
		if _, uerr := r.store.UpdateStatus(ctx, id, models.JobStatusFailed, 0, "could not be scheduled: "+err.Error()); uerr != nil {
			r.log.Error("failed to mark unschedulable job", "job_id", id, "error", uerr)
		}
		return models.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	r.log.Info("job submitted", "job_id", id, "query_len", len(query))
	return job, nil
}

// GetStatus returns the current snapshot of one job.
func (r *Research) GetStatus(ctx context.Context, id string) (models.Job, error) {
	return r.store.Get(ctx, id)
}

// GetResults returns the completed result. store.ErrNotReady is returned
// while the job has not reached Completed.
func (r *Research) GetResults(ctx context.Context, id string) (models.Result, error) {
	return r.store.GetResult(ctx, id)
}

// ListJobs returns all known jobs, most recent first.
func (r *Research) ListJobs(ctx context.Context) ([]models.Job, error) {
	return r.store.List(ctx)
}

// Stats returns aggregate job counts by status.
func (r *Research) Stats(ctx context.Context) (store.Stats, error) {
	return r.store.Stats(ctx)
}
