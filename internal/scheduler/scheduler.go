// Package scheduler owns the durable work queue: it admits submitted jobs in
// FIFO order, dispatches them to a bounded pool of pipeline workers, and
// enforces the retry, backoff, and wall-clock budget policy.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/deepresearch/internal/models"
	"github.com/raphaelgruber/deepresearch/internal/store"
)

// ErrStopped is returned by Enqueue after Stop has begun.
var ErrStopped = errors.New("scheduler: stopped")

// Runner executes one job's pipeline to a terminal state. A non-nil error is
// a fatal attempt failure subject to retry policy.
type Runner interface {
	Run(ctx context.Context, job models.Job) error
}

// Config tunes the scheduler.
type Config struct {
	// Workers is the maximum number of concurrently executing jobs.
	Workers int
	// QueueSize bounds admitted-but-not-dispatched work.
	QueueSize int
	// MaxAttempts is the total attempt count per job, first run included.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// BackoffMultiplier scales the delay after every failed attempt.
	BackoffMultiplier float64
	// JobBudget is the wall-clock limit for a single attempt. Zero disables
	// the budget.
	JobBudget time.Duration
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		QueueSize:         256,
		MaxAttempts:       3,
		InitialBackoff:    2 * time.Second,
		BackoffMultiplier: 2.0,
		JobBudget:         10 * time.Minute,
	}
}

// attempt tracks retry bookkeeping for one job. It is scheduler-internal and
// never visible to callers of the job store.
type attempt struct {
	count        int
	nextEligible time.Time
	lastErr      error
}

// Scheduler dispatches queued jobs to a bounded worker pool.
type Scheduler struct {
	store  store.Store
	runner Runner
	cfg    Config
	log    *slog.Logger

	queue chan models.Job
	done  chan struct{}
	wg    sync.WaitGroup

	mu       sync.Mutex
	attempts map[string]*attempt
	stopped  bool
}

// New builds a scheduler. Call Start before enqueuing.
func New(s store.Store, runner Runner, cfg Config, log *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:    s,
		runner:   runner,
		cfg:      cfg,
		log:      log,
		queue:    make(chan models.Job, cfg.QueueSize),
		done:     make(chan struct{}),
		attempts: make(map[string]*attempt),
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.log.Info("scheduler started", "workers", s.cfg.Workers, "max_attempts", s.cfg.MaxAttempts, "job_budget", s.cfg.JobBudget)
}

// Enqueue admits one job. Admitted work is dispatched in FIFO order once a
// worker is free.
func (s *Scheduler) Enqueue(job models.Job) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.mu.Unlock()

	select {
	case s.queue <- job:
		return nil
	case <-s.done:
		return ErrStopped
	}
}

// Stop refuses new work, waits for in-flight jobs and pending retries, then
// returns. A cancelled ctx abandons the wait.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.done)

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: shutdown wait: %w", ctx.Err())
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case job := <-s.queue:
			s.execute(id, job)
		}
	}
}

// execute runs one attempt and applies retry policy on failure.
func (s *Scheduler) execute(workerID int, job models.Job) {
	n := s.beginAttempt(job.ID)
	s.log.Info("dispatching job", "worker", workerID, "job_id", job.ID, "attempt", n, "max_attempts", s.cfg.MaxAttempts)

	ctx := context.Background()
	if s.cfg.JobBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobBudget)
		defer cancel()
	}

	err := s.runner.Run(ctx, job)
	if err == nil {
		s.clearAttempts(job.ID)
		return
	}

	s.log.Warn("job attempt failed", "worker", workerID, "job_id", job.ID, "attempt", n, "error", err)

	if n >= s.cfg.MaxAttempts {
		s.log.Error("job failed permanently", "job_id", job.ID, "attempts", n, "error", err)
		return
	}

	s.scheduleRetry(job, n, err)
}

// scheduleRetry re-admits a failed job after the backoff delay. The delay
// grows by the configured multiplier per completed attempt.
func (s *Scheduler) scheduleRetry(job models.Job, completedAttempts int, cause error) {
	delay := s.backoff(completedAttempts)

	s.mu.Lock()
	a := s.attempts[job.ID]
	if a != nil {
		a.nextEligible = time.Now().Add(delay)
		a.lastErr = cause
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.done:
			return
		case <-time.After(delay):
		}

		msg := fmt.Sprintf("retrying (attempt %d/%d): %v", completedAttempts+1, s.cfg.MaxAttempts, cause)
		requeued, err := s.store.Requeue(context.Background(), job.ID, msg)
		if err != nil {
			s.log.Error("requeue failed", "job_id", job.ID, "error", err)
			return
		}

		select {
		case s.queue <- requeued:
		case <-s.done:
		}
	}()
}

// backoff returns the delay before the next attempt: initial delay scaled by
// the multiplier once per completed attempt beyond the first.
func (s *Scheduler) backoff(completedAttempts int) time.Duration {
	d := float64(s.cfg.InitialBackoff)
	for i := 1; i < completedAttempts; i++ {
		d *= s.cfg.BackoffMultiplier
	}
	return time.Duration(d)
}

func (s *Scheduler) beginAttempt(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.attempts[jobID]
	if a == nil {
		a = &attempt{}
		s.attempts[jobID] = a
	}
	a.count++
	return a.count
}

func (s *Scheduler) clearAttempts(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, jobID)
}
