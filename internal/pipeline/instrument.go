package pipeline

import (
	"context"

	"github.com/raphaelgruber/deepresearch/internal/metrics"
	"github.com/raphaelgruber/deepresearch/internal/models"
)

// Instrument wraps the collaborators with metrics collection. Call timing
// and failure counts land in the collector under the pipeline op names.
func Instrument(c *metrics.Collector, expander TopicExpander, searcher DocumentSearchProvider, processor DocumentProcessor, synthesizer AnalysisSynthesizer) (TopicExpander, DocumentSearchProvider, DocumentProcessor, AnalysisSynthesizer) {
	return &timedExpander{c: c, inner: expander},
		&timedSearcher{c: c, inner: searcher},
		&timedProcessor{c: c, inner: processor},
		&timedSynthesizer{c: c, inner: synthesizer}
}

type timedExpander struct {
	c     *metrics.Collector
	inner TopicExpander
}

func (t *timedExpander) Expand(ctx context.Context, query string) ([]string, error) {
	done := t.c.Timed(metrics.OpExpand)
	topics, err := t.inner.Expand(ctx, query)
	done(err != nil)
	return topics, err
}

type timedSearcher struct {
	c     *metrics.Collector
	inner DocumentSearchProvider
}

func (t *timedSearcher) Search(ctx context.Context, topic string, limit int) ([]models.Document, error) {
	done := t.c.Timed(metrics.OpSearch)
	docs, err := t.inner.Search(ctx, topic, limit)
	done(err != nil)
	return docs, err
}

type timedProcessor struct {
	c     *metrics.Collector
	inner DocumentProcessor
}

func (t *timedProcessor) Extract(ctx context.Context, sourceURL string) (string, bool) {
	done := t.c.Timed(metrics.OpExtract)
	text, ok := t.inner.Extract(ctx, sourceURL)
	done(!ok)
	return text, ok
}

type timedSynthesizer struct {
	c     *metrics.Collector
	inner AnalysisSynthesizer
}

func (t *timedSynthesizer) Synthesize(ctx context.Context, query string, byTopic []models.TopicDocuments) (models.Analysis, error) {
	done := t.c.Timed(metrics.OpSynthesize)
	analysis, err := t.inner.Synthesize(ctx, query, byTopic)
	done(err != nil)
	return analysis, err
}
