package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/raphaelgruber/deepresearch/internal/models"
)

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  bool
		summary  string
	}{
		{
			"bare json",
			`{"summary": "S", "key_findings": ["f1"], "themes": ["t1"]}`,
			false,
			"S",
		},
		{
			"fenced json",
			"```json\n{\"summary\": \"fenced\"}\n```",
			false,
			"fenced",
		},
		{
			"json with surrounding prose",
			"Here is the analysis:\n{\"summary\": \"prosaic\"}\nHope that helps!",
			false,
			"prosaic",
		},
		{
			"no json at all",
			"I could not produce an analysis.",
			true,
			"",
		},
		{
			"malformed json",
			`{"summary": "broken`,
			true,
			"",
		},
		{
			"missing summary",
			`{"key_findings": ["f"]}`,
			true,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAnalysis(tt.response)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAnalysis() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got.Summary != tt.summary {
				t.Errorf("summary = %q, want %q", got.Summary, tt.summary)
			}
		})
	}
}

func TestSynthesize(t *testing.T) {
	ctx := context.Background()
	byTopic := []models.TopicDocuments{
		{Topic: "a", Documents: []models.Document{
			{Title: "One", Citation: "Author (2024). One."},
			{Title: "Two", Citation: "Author (2023). Two."},
		}},
		{Topic: "b", Documents: []models.Document{
			{Title: "One", Citation: "Author (2024). One."}, // duplicate across topics
		}},
	}

	t.Run("bibliography deduplicated", func(t *testing.T) {
		s := NewSynthesizer(&fakeGenerator{response: `{"summary": "S"}`})
		analysis, err := s.Synthesize(ctx, "q", byTopic)
		if err != nil {
			t.Fatal(err)
		}
		if len(analysis.Bibliography) != 2 {
			t.Errorf("bibliography = %v, want 2 entries", analysis.Bibliography)
		}
	})

	t.Run("generation error", func(t *testing.T) {
		cause := errors.New("model offline")
		s := NewSynthesizer(&fakeGenerator{err: cause})
		if _, err := s.Synthesize(ctx, "q", byTopic); !errors.Is(err, cause) {
			t.Errorf("Synthesize() error = %v, want wrapped %v", err, cause)
		}
	})

	t.Run("unparseable output is an error", func(t *testing.T) {
		s := NewSynthesizer(&fakeGenerator{response: "not json"})
		if _, err := s.Synthesize(ctx, "q", byTopic); err == nil {
			t.Error("Synthesize() succeeded on unparseable output")
		}
	})
}

func TestBuildCorpusPrompt(t *testing.T) {
	long := make([]byte, 10000)
	for i := range long {
		long[i] = 'x'
	}

	byTopic := []models.TopicDocuments{
		{Topic: "t", Documents: []models.Document{
			{Title: "Long", Citation: "C", FullText: string(long), Abstract: "A"},
		}},
		{Topic: "empty", Documents: nil},
	}

	prompt := buildCorpusPrompt("q", byTopic)
	if len(prompt) > 6000 {
		t.Errorf("prompt length = %d, full text was not truncated", len(prompt))
	}
}
