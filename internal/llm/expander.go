package llm

import (
	"context"
	"fmt"
	"strings"
)

// generator is the slice of Model the collaborators need.
type generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const defaultMaxTopics = 5

// Expander turns a research query into an ordered set of search topics.
type Expander struct {
	gen       generator
	maxTopics int
}

// NewExpander creates a topic expander over the model.
func NewExpander(gen generator, maxTopics int) *Expander {
	if maxTopics <= 0 {
		maxTopics = defaultMaxTopics
	}
	return &Expander{gen: gen, maxTopics: maxTopics}
}

const expandSystemPrompt = `You are a research librarian. Decompose the user's research question into distinct literature search topics.

Output format: one topic per line, nothing else.

Guidelines:
- Each topic is a short search phrase, not a sentence
- Topics must be distinct aspects of the question, not rephrasings
- Order topics from most to least central`

// Expand produces search topics for the query. The model's free-form output
// is parsed line by line; list markers and numbering are stripped.
func (e *Expander) Expand(ctx context.Context, query string) ([]string, error) {
	userPrompt := fmt.Sprintf("Research question: %s\n\nSearch topics:", query)

	response, err := e.gen.GenerateWithSystem(ctx, expandSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("expand topics: %w", err)
	}

	topics := parseTopicLines(response)
	if len(topics) == 0 {
		return nil, fmt.Errorf("expand topics: model output contained no topics")
	}
	if len(topics) > e.maxTopics {
		topics = topics[:e.maxTopics]
	}
	return topics, nil
}

// parseTopicLines extracts topic phrases from model output, tolerating the
// usual list decorations.
func parseTopicLines(response string) []string {
	var topics []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		line = trimNumbering(line)
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		topics = append(topics, line)
	}
	return topics
}

// trimNumbering strips a leading "1." / "2)" style marker.
func trimNumbering(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) {
		return line
	}
	if line[i] == '.' || line[i] == ')' {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}
