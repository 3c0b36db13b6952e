package pipeline

import (
	"context"

	"github.com/raphaelgruber/deepresearch/internal/models"
)

// TopicExpander expands a free-form research query into an ordered set of
// distinct search topics.
type TopicExpander interface {
	Expand(ctx context.Context, query string) ([]string, error)
}

// DocumentSearchProvider retrieves documents matching one topic. Errors are
// caught per topic by the executor; they never fail the job on their own.
type DocumentSearchProvider interface {
	Search(ctx context.Context, topic string, limit int) ([]models.Document, error)
}

// DocumentProcessor extracts plain text from a document's source link.
// Extraction never fails fatally: any internal failure resolves to ok=false
// and the document is kept without full text.
type DocumentProcessor interface {
	Extract(ctx context.Context, sourceURL string) (text string, ok bool)
}

// AnalysisSynthesizer produces the final analysis from the query and the
// documents gathered per topic.
type AnalysisSynthesizer interface {
	Synthesize(ctx context.Context, query string, byTopic []models.TopicDocuments) (models.Analysis, error)
}
