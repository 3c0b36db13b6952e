package models

import (
	"fmt"
	"strings"
)

// Document is one retrieved work. FullText is empty when extraction was not
// possible; the document is still valid with metadata only.
type Document struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors,omitempty"`
	Year      int      `json:"year,omitempty"`
	Venue     string   `json:"venue,omitempty"`
	Abstract  string   `json:"abstract,omitempty"`
	SourceURL string   `json:"source_url,omitempty"`
	FullText  string   `json:"full_text,omitempty"`
	Citation  string   `json:"citation"`
}

// FormatCitation derives a human-readable citation string from the
// document's metadata. Missing fields are simply omitted.
func (d Document) FormatCitation() string {
	var parts []string

	switch {
	case len(d.Authors) > 3:
		parts = append(parts, d.Authors[0]+" et al.")
	case len(d.Authors) > 0:
		parts = append(parts, strings.Join(d.Authors, ", "))
	}
	if d.Year > 0 {
		parts = append(parts, fmt.Sprintf("(%d)", d.Year))
	}
	if d.Title != "" {
		parts = append(parts, d.Title+".")
	}
	if d.Venue != "" {
		parts = append(parts, d.Venue+".")
	}
	if d.SourceURL != "" {
		parts = append(parts, d.SourceURL)
	}

	return strings.Join(parts, " ")
}

// TopicDocuments groups the documents retrieved for one topic. Topics keep
// the order produced by the expander; a topic whose search failed has an
// empty Documents slice.
type TopicDocuments struct {
	Topic     string     `json:"topic"`
	Documents []Document `json:"documents"`
}

// Analysis is the synthesized output of the analyzing stage.
type Analysis struct {
	Summary      string   `json:"summary"`
	KeyFindings  []string `json:"key_findings,omitempty"`
	Themes       []string `json:"themes,omitempty"`
	Gaps         []string `json:"gaps,omitempty"`
	FutureWork   []string `json:"future_work,omitempty"`
	Bibliography []string `json:"bibliography,omitempty"`
}

// Result is the terminal artifact of a completed job. Immutable once stored.
type Result struct {
	Query    string           `json:"query"`
	Topics   []string         `json:"topics"`
	ByTopic  []TopicDocuments `json:"documents_by_topic"`
	Analysis Analysis         `json:"analysis"`
}

// DocumentCount returns the total number of documents across all topics.
func (r Result) DocumentCount() int {
	n := 0
	for _, td := range r.ByTopic {
		n += len(td.Documents)
	}
	return n
}
