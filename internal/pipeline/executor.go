package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/raphaelgruber/deepresearch/internal/models"
	"github.com/raphaelgruber/deepresearch/internal/store"
)

// Progress checkpoints per stage. Only monotonicity and the terminal values
// (100 on success, 0 on failure) are contractual; the intermediate numbers
// are display policy.
const (
	progressExpanding  = 10
	progressSearching  = 20
	progressSearchDone = 70
	progressExtracted  = 85
	progressAnalyzing  = 90
	progressCompleted  = 100
)

// Config tunes the executor's fan-out and search breadth.
type Config struct {
	// SearchLimit is the per-topic document limit passed to the provider.
	SearchLimit int
	// SearchFanOut bounds concurrent per-topic search calls.
	SearchFanOut int
	// ExtractFanOut bounds concurrent document text extractions.
	ExtractFanOut int
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		SearchLimit:   5,
		SearchFanOut:  3,
		ExtractFanOut: 4,
	}
}

// Executor runs the staged pipeline for one job end-to-end. A single
// executor instance is shared by all workers; it holds no per-job state.
type Executor struct {
	store       store.Store
	expander    TopicExpander
	searcher    DocumentSearchProvider
	processor   DocumentProcessor
	synthesizer AnalysisSynthesizer
	cfg         Config
}

// NewExecutor wires the executor with its collaborators.
func NewExecutor(s store.Store, expander TopicExpander, searcher DocumentSearchProvider, processor DocumentProcessor, synthesizer AnalysisSynthesizer, cfg Config) *Executor {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultConfig().SearchLimit
	}
	if cfg.SearchFanOut <= 0 {
		cfg.SearchFanOut = DefaultConfig().SearchFanOut
	}
	if cfg.ExtractFanOut <= 0 {
		cfg.ExtractFanOut = DefaultConfig().ExtractFanOut
	}
	return &Executor{
		store:       s,
		expander:    expander,
		searcher:    searcher,
		processor:   processor,
		synthesizer: synthesizer,
		cfg:         cfg,
	}
}

// Run executes the stage sequence for one job and drives its state machine.
// On a fatal failure the job is marked failed (progress 0, summarized cause)
// and the fault is returned for the scheduler's retry evaluation.
func (e *Executor) Run(ctx context.Context, job models.Job) error {
	topics, err := e.expand(ctx, job)
	if err != nil {
		return e.fail(job.ID, err)
	}

	byTopic, err := e.search(ctx, job, topics)
	if err != nil {
		return e.fail(job.ID, err)
	}

	if err := e.process(ctx, job, byTopic); err != nil {
		return e.fail(job.ID, err)
	}

	analysis, err := e.analyze(ctx, job, byTopic)
	if err != nil {
		return e.fail(job.ID, err)
	}

	result := models.Result{
		Query:    job.Query,
		Topics:   topics,
		ByTopic:  byTopic,
		Analysis: analysis,
	}
	if err := e.store.PutResult(ctx, job.ID, result); err != nil {
		return e.fail(job.ID, newFault(KindInternal, models.JobStatusAnalyzing, err))
	}
	if _, err := e.store.UpdateStatus(ctx, job.ID, models.JobStatusCompleted, progressCompleted, "analysis complete"); err != nil {
		return e.fail(job.ID, newFault(KindInternal, models.JobStatusCompleted, err))
	}

	slog.Info("job completed", "job_id", job.ID, "topics", len(topics), "documents", result.DocumentCount())
	return nil
}

// expand runs the expanding stage. Zero topics or an expander error is fatal.
func (e *Executor) expand(ctx context.Context, job models.Job) ([]string, error) {
	if _, err := e.store.UpdateStatus(ctx, job.ID, models.JobStatusExpanding, progressExpanding, "expanding query into search topics"); err != nil {
		return nil, newFault(KindInternal, models.JobStatusExpanding, err)
	}

	topics, err := e.expander.Expand(ctx, job.Query)
	if err != nil {
		return nil, e.classify(KindExpansion, models.JobStatusExpanding, err)
	}

	topics = dedupeTopics(topics)
	if len(topics) == 0 {
		return nil, newFault(KindExpansion, models.JobStatusExpanding, errors.New("expander produced no topics"))
	}

	slog.Debug("topics expanded", "job_id", job.ID, "count", len(topics))
	return topics, nil
}

// search runs the searching stage: every topic is attempted, per-topic
// failures degrade to an empty document set, and only a zero total across
// all topics is fatal.
func (e *Executor) search(ctx context.Context, job models.Job, topics []string) ([]models.TopicDocuments, error) {
	if _, err := e.store.UpdateStatus(ctx, job.ID, models.JobStatusSearching, progressSearching, fmt.Sprintf("searching literature across %d topics", len(topics))); err != nil {
		return nil, newFault(KindInternal, models.JobStatusSearching, err)
	}

	byTopic := make([]models.TopicDocuments, len(topics))
	var attempted atomic.Int32

	topicChan := make(chan int, len(topics))
	var wg sync.WaitGroup

	for w := 0; w < e.cfg.SearchFanOut; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range topicChan {
				if ctx.Err() != nil {
					byTopic[i] = models.TopicDocuments{Topic: topics[i], Documents: []models.Document{}}
					continue
				}

				docs, err := e.searcher.Search(ctx, topics[i], e.cfg.SearchLimit)
				if err != nil {
					// Per-topic failure is non-fatal: keep the topic with an
					// empty document set and move on.
					slog.Warn("topic search failed", "job_id", job.ID, "topic", topics[i], "error", err)
					docs = nil
				}
				for d := range docs {
					if docs[d].Citation == "" {
						docs[d].Citation = docs[d].FormatCitation()
					}
				}
				if docs == nil {
					docs = []models.Document{}
				}
				byTopic[i] = models.TopicDocuments{Topic: topics[i], Documents: docs}

				done := int(attempted.Add(1))
				progress := progressSearching + (progressSearchDone-progressSearching)*done/len(topics)
				if _, err := e.store.UpdateStatus(ctx, job.ID, models.JobStatusSearching, progress, fmt.Sprintf("searched topic %d/%d", done, len(topics))); err != nil {
					slog.Warn("failed to update search progress", "job_id", job.ID, "error", err)
				}
			}
		}()
	}

	for i := range topics {
		topicChan <- i
	}
	close(topicChan)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, e.classify(KindInternal, models.JobStatusSearching, err)
	}

	total := 0
	for _, td := range byTopic {
		total += len(td.Documents)
	}
	if total == 0 {
		return nil, newFault(KindNoMaterial, models.JobStatusSearching, fmt.Errorf("0 documents across %d topics", len(topics)))
	}

	slog.Debug("search complete", "job_id", job.ID, "documents", total)
	return byTopic, nil
}

// process runs the processing stage: best-effort full-text extraction for
// every document with a source link. This stage cannot fail the job; only a
// cancelled context aborts it.
func (e *Executor) process(ctx context.Context, job models.Job, byTopic []models.TopicDocuments) error {
	if _, err := e.store.UpdateStatus(ctx, job.ID, models.JobStatusProcessing, progressSearchDone, "extracting document text"); err != nil {
		return newFault(KindInternal, models.JobStatusProcessing, err)
	}

	// Collect pointers to every document with a retrievable source link.
	var targets []*models.Document
	for t := range byTopic {
		for d := range byTopic[t].Documents {
			doc := &byTopic[t].Documents[d]
			if doc.SourceURL != "" {
				targets = append(targets, doc)
			}
		}
	}

	var extracted atomic.Int32
	docChan := make(chan *models.Document, len(targets))
	var wg sync.WaitGroup

	for w := 0; w < e.cfg.ExtractFanOut; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range docChan {
				if ctx.Err() != nil {
					return
				}
				if text, ok := e.processor.Extract(ctx, doc.SourceURL); ok {
					doc.FullText = text
					extracted.Add(1)
				}
			}
		}()
	}

	for _, doc := range targets {
		docChan <- doc
	}
	close(docChan)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return e.classify(KindInternal, models.JobStatusProcessing, err)
	}

	msg := fmt.Sprintf("extracted full text for %d/%d documents", extracted.Load(), len(targets))
	if _, err := e.store.UpdateStatus(ctx, job.ID, models.JobStatusProcessing, progressExtracted, msg); err != nil {
		return newFault(KindInternal, models.JobStatusProcessing, err)
	}

	slog.Debug("processing complete", "job_id", job.ID, "extracted", extracted.Load(), "targets", len(targets))
	return nil
}

// analyze runs the analyzing stage. Any synthesizer failure is fatal: there
// is no partial analysis result.
func (e *Executor) analyze(ctx context.Context, job models.Job, byTopic []models.TopicDocuments) (models.Analysis, error) {
	if _, err := e.store.UpdateStatus(ctx, job.ID, models.JobStatusAnalyzing, progressAnalyzing, "synthesizing analysis"); err != nil {
		return models.Analysis{}, newFault(KindInternal, models.JobStatusAnalyzing, err)
	}

	analysis, err := e.synthesizer.Synthesize(ctx, job.Query, byTopic)
	if err != nil {
		return models.Analysis{}, e.classify(KindSynthesis, models.JobStatusAnalyzing, err)
	}
	return analysis, nil
}

// classify wraps a collaborator error as a fault, promoting context deadline
// errors to the timeout kind so retry policy can see them distinctly.
func (e *Executor) classify(kind Kind, stage models.JobStatus, err error) *Fault {
	if errors.Is(err, context.DeadlineExceeded) {
		return newFault(KindTimeout, stage, err)
	}
	return newFault(kind, stage, err)
}

// fail records the fatal failure on the job and passes the fault upward.
// The failure update deliberately uses a fresh context: the job context may
// already be cancelled or past its deadline.
func (e *Executor) fail(jobID string, err error) error {
	var f *Fault
	if !errors.As(err, &f) {
		f = newFault(KindInternal, models.JobStatusFailed, err)
	}

	if _, updateErr := e.store.UpdateStatus(context.Background(), jobID, models.JobStatusFailed, 0, f.Summary()); updateErr != nil {
		slog.Error("failed to mark job failed", "job_id", jobID, "error", updateErr)
	}

	slog.Error("job failed", "job_id", jobID, "kind", f.Kind, "stage", f.Stage, "error", f.Err)
	return f
}

// dedupeTopics trims whitespace and keeps the first occurrence of each
// topic, preserving order.
func dedupeTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		key := strings.ToLower(topic)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, topic)
	}
	return out
}
