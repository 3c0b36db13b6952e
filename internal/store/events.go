package store

import (
	"context"
	"sync"

	"github.com/raphaelgruber/deepresearch/internal/models"
)

// subscriberBuffer is the channel buffer size for watch subscribers. A slow
// subscriber drops updates rather than stalling the pipeline.
const subscriberBuffer = 64

// Watched wraps a Store and broadcasts every job mutation to subscribers.
// The server's websocket watch endpoint and the CLI progress display consume
// these snapshots.
type Watched struct {
	Store

	mu   sync.Mutex
	subs []chan models.Job
}

var _ Store = (*Watched)(nil)

// Watch wraps a store with snapshot broadcasting.
func Watch(inner Store) *Watched {
	return &Watched{Store: inner}
}

// Create registers the job and notifies subscribers of the initial snapshot.
func (w *Watched) Create(ctx context.Context, id, query string) (models.Job, error) {
	job, err := w.Store.Create(ctx, id, query)
	if err != nil {
		return job, err
	}
	w.notify(job)
	return job, nil
}

// UpdateStatus applies the mutation and notifies subscribers.
func (w *Watched) UpdateStatus(ctx context.Context, id string, status models.JobStatus, progress int, message string) (models.Job, error) {
	job, err := w.Store.UpdateStatus(ctx, id, status, progress, message)
	if err != nil {
		return job, err
	}
	w.notify(job)
	return job, nil
}

// Requeue applies the retry transition and notifies subscribers.
func (w *Watched) Requeue(ctx context.Context, id, message string) (models.Job, error) {
	job, err := w.Store.Requeue(ctx, id, message)
	if err != nil {
		return job, err
	}
	w.notify(job)
	return job, nil
}

// Subscribe returns a buffered channel receiving job snapshots. The caller
// must Unsubscribe when done; the channel is not closed by this package.
func (w *Watched) Subscribe() chan models.Job {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan models.Job, subscriberBuffer)
	w.subs = append(w.subs, ch)
	return ch
}

// Unsubscribe removes a subscriber channel. The channel is not closed here,
// so an in-flight notify can never panic on a closed channel.
func (w *Watched) Unsubscribe(ch chan models.Job) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, sub := range w.subs {
		if sub == ch {
			w.subs = append(w.subs[:i], w.subs[i+1:]...)
			return
		}
	}
}

// notify delivers a snapshot to all subscribers without blocking.
func (w *Watched) notify(job models.Job) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, ch := range w.subs {
		select {
		case ch <- job:
		default:
			// Subscriber is slow; drop rather than stall.
		}
	}
}
