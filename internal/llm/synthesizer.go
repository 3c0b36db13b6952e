package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raphaelgruber/deepresearch/internal/models"
)

// Synthesizer produces the final analysis over all gathered documents.
type Synthesizer struct {
	gen generator
}

// NewSynthesizer creates an analysis synthesizer over the model.
func NewSynthesizer(gen generator) *Synthesizer {
	return &Synthesizer{gen: gen}
}

const synthesizeSystemPrompt = `You are a research analyst. Synthesize the provided literature into a structured analysis of the user's research question.

Respond with a single JSON object, no prose around it:
{
  "summary": "<2-4 paragraph synthesis>",
  "key_findings": ["<finding>", ...],
  "themes": ["<recurring theme>", ...],
  "gaps": ["<gap in the literature>", ...],
  "future_work": ["<suggested direction>", ...]
}

Base every statement on the provided documents. If the material is thin for a field, return an empty list for it rather than inventing content.`

// Synthesize builds the analysis from the per-topic document sets. An
// unparseable model response is an error: there is no partial analysis.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, byTopic []models.TopicDocuments) (models.Analysis, error) {
	userPrompt := buildCorpusPrompt(query, byTopic)

	response, err := s.gen.GenerateWithSystem(ctx, synthesizeSystemPrompt, userPrompt)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("synthesize analysis: %w", err)
	}

	analysis, err := parseAnalysis(response)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("synthesize analysis: %w", err)
	}

	analysis.Bibliography = buildBibliography(byTopic)
	return analysis, nil
}

// buildCorpusPrompt renders the gathered material for the model. Full text is
// truncated per document so a handful of long papers cannot crowd out the
// rest of the corpus.
func buildCorpusPrompt(query string, byTopic []models.TopicDocuments) string {
	const maxFullText = 4000

	var b strings.Builder
	fmt.Fprintf(&b, "Research question: %s\n\n", query)

	for _, td := range byTopic {
		fmt.Fprintf(&b, "## Topic: %s\n\n", td.Topic)
		if len(td.Documents) == 0 {
			b.WriteString("(no documents found)\n\n")
			continue
		}
		for _, doc := range td.Documents {
			fmt.Fprintf(&b, "### %s\n", doc.Citation)
			if doc.Abstract != "" {
				fmt.Fprintf(&b, "Abstract: %s\n", doc.Abstract)
			}
			if doc.FullText != "" {
				text := doc.FullText
				if len(text) > maxFullText {
					text = text[:maxFullText]
				}
				fmt.Fprintf(&b, "Full text (may be truncated): %s\n", text)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("Analysis JSON:")
	return b.String()
}

// parseAnalysis decodes the model's JSON, tolerating a markdown code fence
// around it.
func parseAnalysis(response string) (models.Analysis, error) {
	raw := extractJSON(response)
	if raw == "" {
		return models.Analysis{}, fmt.Errorf("no JSON object in model output")
	}

	var analysis models.Analysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return models.Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	if strings.TrimSpace(analysis.Summary) == "" {
		return models.Analysis{}, fmt.Errorf("analysis has no summary")
	}
	return analysis, nil
}

// extractJSON returns the outermost {...} span of the response.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return ""
	}
	return response[start : end+1]
}

// buildBibliography collects the citation of every gathered document once,
// in topic order.
func buildBibliography(byTopic []models.TopicDocuments) []string {
	seen := make(map[string]bool)
	var bib []string
	for _, td := range byTopic {
		for _, doc := range td.Documents {
			if doc.Citation == "" || seen[doc.Citation] {
				continue
			}
			seen[doc.Citation] = true
			bib = append(bib, doc.Citation)
		}
	}
	return bib
}
