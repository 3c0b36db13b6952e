package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/deepresearch/internal/models"
	"github.com/raphaelgruber/deepresearch/internal/store"
)

// scriptedRunner fails the first failFirst attempts per job, then succeeds.
// It mirrors the executor's contract: a failed attempt leaves the job Failed
// in the store, a successful one leaves it Completed.
type scriptedRunner struct {
	st        store.Store
	failFirst int
	block     func(ctx context.Context) error

	mu       sync.Mutex
	attempts map[string]int
	order    []string
	terminal chan string
}

func newScriptedRunner(st store.Store, failFirst int) *scriptedRunner {
	return &scriptedRunner{
		st:        st,
		failFirst: failFirst,
		attempts:  map[string]int{},
		terminal:  make(chan string, 64),
	}
}

func (r *scriptedRunner) Run(ctx context.Context, job models.Job) error {
	r.mu.Lock()
	r.attempts[job.ID]++
	n := r.attempts[job.ID]
	r.order = append(r.order, job.ID)
	r.mu.Unlock()

	if r.block != nil {
		if err := r.block(ctx); err != nil {
			_, _ = r.st.UpdateStatus(context.Background(), job.ID, models.JobStatusFailed, 0, err.Error())
			r.terminal <- job.ID
			return err
		}
	}

	if n <= r.failFirst {
		err := errors.New("collaborator unavailable")
		_, _ = r.st.UpdateStatus(context.Background(), job.ID, models.JobStatusFailed, 0, err.Error())
		r.terminal <- job.ID
		return err
	}

	_, _ = r.st.UpdateStatus(context.Background(), job.ID, models.JobStatusCompleted, 100, "analysis complete")
	r.terminal <- job.ID
	return nil
}

func (r *scriptedRunner) attemptCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[id]
}

func (r *scriptedRunner) runOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// waitTerminal blocks until n terminal signals or the test deadline.
func waitTerminal(t *testing.T, r *scriptedRunner, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.terminal:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for terminal attempt %d/%d", i+1, n)
		}
	}
}

func testConfig() Config {
	return Config{
		Workers:           2,
		QueueSize:         16,
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func submit(t *testing.T, st store.Store, s *Scheduler, id string) models.Job {
	t.Helper()
	job, err := st.Create(context.Background(), id, "query for "+id)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Enqueue(job); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestScheduler_FailTwiceThenSucceed(t *testing.T) {
	st := store.NewMemory()
	runner := newScriptedRunner(st, 2)
	s := New(st, runner, testConfig(), nil)
	s.Start()
	defer s.Stop(context.Background())

	submit(t, st, s, "retry-ok")

	// Two failed attempts plus the successful third.
	waitTerminal(t, runner, 3)

	if got := runner.attemptCount("retry-ok"); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}

	final, err := st.Get(context.Background(), "retry-ok")
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Errorf("final status = %s, want completed", final.Status)
	}
}

func TestScheduler_ExhaustedAttemptsStayFailed(t *testing.T) {
	st := store.NewMemory()
	runner := newScriptedRunner(st, 99)
	s := New(st, runner, testConfig(), nil)
	s.Start()
	defer s.Stop(context.Background())

	submit(t, st, s, "always-fails")
	waitTerminal(t, runner, 3)

	// No retry is scheduled after the last attempt; give one backoff period
	// for a bug to manifest.
	time.Sleep(20 * time.Millisecond)

	if got := runner.attemptCount("always-fails"); got != 3 {
		t.Errorf("attempts = %d, want exactly 3", got)
	}

	final, err := st.Get(context.Background(), "always-fails")
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != models.JobStatusFailed {
		t.Errorf("final status = %s, want failed", final.Status)
	}
	if final.Progress != 0 {
		t.Errorf("failed progress = %d, want 0", final.Progress)
	}
}

func TestScheduler_FIFODispatchOrder(t *testing.T) {
	st := store.NewMemory()
	runner := newScriptedRunner(st, 0)

	cfg := testConfig()
	cfg.Workers = 1
	s := New(st, runner, cfg, nil)

	ids := []string{"first", "second", "third", "fourth"}
	for _, id := range ids {
		submit(t, st, s, id)
	}

	// Workers start after admission so the queue is fully ordered.
	s.Start()
	defer s.Stop(context.Background())
	waitTerminal(t, runner, len(ids))

	got := runner.runOrder()
	for i, id := range ids {
		if got[i] != id {
			t.Fatalf("dispatch order = %v, want %v", got, ids)
		}
	}
}

func TestScheduler_WallClockBudget(t *testing.T) {
	st := store.NewMemory()
	runner := newScriptedRunner(st, 0)
	runner.block = func(ctx context.Context) error {
		// Simulates a hung collaborator that only the budget can unstick.
		<-ctx.Done()
		return ctx.Err()
	}

	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.JobBudget = 10 * time.Millisecond
	s := New(st, runner, cfg, nil)
	s.Start()
	defer s.Stop(context.Background())

	submit(t, st, s, "hung")
	waitTerminal(t, runner, 1)

	final, err := st.Get(context.Background(), "hung")
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != models.JobStatusFailed {
		t.Errorf("final status = %s, want failed", final.Status)
	}
	if final.Message != context.DeadlineExceeded.Error() {
		t.Errorf("message = %q, want deadline exceeded", final.Message)
	}
}

func TestScheduler_RequeueMessageRecordsAttempt(t *testing.T) {
	st := store.NewMemory()
	runner := newScriptedRunner(st, 1)

	cfg := testConfig()
	// Long enough backoff to observe the requeued state before attempt 2.
	cfg.InitialBackoff = 30 * time.Millisecond
	s := New(st, runner, cfg, nil)
	s.Start()
	defer s.Stop(context.Background())

	submit(t, st, s, "observed")
	waitTerminal(t, runner, 1)

	// Poll until the retry goroutine requeues the job.
	deadline := time.Now().Add(2 * time.Second)
	for {
		job, err := st.Get(context.Background(), "observed")
		if err != nil {
			t.Fatal(err)
		}
		if job.Status == models.JobStatusQueued {
			if job.Message == "" || job.Progress != 0 {
				t.Errorf("requeued job = %q/%d, want retry message and progress 0", job.Message, job.Progress)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never requeued, status=%s", job.Status)
		}
		time.Sleep(time.Millisecond)
	}

	waitTerminal(t, runner, 1)
	final, _ := st.Get(context.Background(), "observed")
	if final.Status != models.JobStatusCompleted {
		t.Errorf("final status = %s, want completed", final.Status)
	}
}

func TestScheduler_StopRefusesNewWork(t *testing.T) {
	st := store.NewMemory()
	runner := newScriptedRunner(st, 0)
	s := New(st, runner, testConfig(), nil)
	s.Start()

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	job, err := st.Create(context.Background(), "late", "q")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Enqueue(job); !errors.Is(err, ErrStopped) {
		t.Errorf("Enqueue after stop = %v, want ErrStopped", err)
	}
}

func TestBackoffGrowth(t *testing.T) {
	cfg := testConfig()
	cfg.InitialBackoff = 100 * time.Millisecond
	cfg.BackoffMultiplier = 3.0
	s := New(store.NewMemory(), nil, cfg, nil)

	tests := []struct {
		completed int
		want      time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 300 * time.Millisecond},
		{3, 900 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := s.backoff(tt.completed); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.completed, got, tt.want)
		}
	}
}
