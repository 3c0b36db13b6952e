// Package search provides the literature search collaborator, backed by a
// Semantic Scholar compatible HTTP API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/raphaelgruber/deepresearch/internal/models"
)

const (
	defaultBaseURL = "https://api.semanticscholar.org/graph/v1"
	defaultTimeout = 30 * time.Second

	// paperFields is the field selection requested per paper.
	paperFields = "title,abstract,year,venue,authors,url,openAccessPdf"
)

// Scholar searches a paper index over HTTP.
type Scholar struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the Scholar provider.
type Option func(*Scholar)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scholar) { s.httpClient = c }
}

// WithAPIKey sets the x-api-key request header.
func WithAPIKey(key string) Option {
	return func(s *Scholar) { s.apiKey = key }
}

// NewScholar creates the provider. An empty baseURL selects the public
// Semantic Scholar endpoint.
func NewScholar(baseURL string, opts ...Option) *Scholar {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	s := &Scholar{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// paper is the wire shape of one search hit.
type paper struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Year     int    `json:"year"`
	Venue    string `json:"venue"`
	URL      string `json:"url"`
	Authors  []struct {
		Name string `json:"name"`
	} `json:"authors"`
	OpenAccessPdf *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
}

type searchResponse struct {
	Total int     `json:"total"`
	Data  []paper `json:"data"`
}

// Search queries the index for one topic. An empty result set is returned as
// success with zero documents; the caller decides whether that matters.
func (s *Scholar) Search(ctx context.Context, topic string, limit int) ([]models.Document, error) {
	q := url.Values{}
	q.Set("query", topic)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", paperFields)
	endpoint := s.baseURL + "/paper/search?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", topic, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %q: %s - %s", topic, resp.Status, string(body))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]models.Document, 0, len(parsed.Data))
	for _, p := range parsed.Data {
		if p.Title == "" {
			continue
		}
		docs = append(docs, toDocument(p))
	}

	slog.Debug("topic searched", "topic", topic, "hits", len(docs), "duration_ms", time.Since(start).Milliseconds())
	return docs, nil
}

// toDocument maps a wire paper to the domain document. The open-access PDF
// link wins over the landing page URL since only it yields extractable text.
func toDocument(p paper) models.Document {
	authors := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	sourceURL := p.URL
	if p.OpenAccessPdf != nil && p.OpenAccessPdf.URL != "" {
		sourceURL = p.OpenAccessPdf.URL
	}

	return models.Document{
		Title:     p.Title,
		Authors:   authors,
		Year:      p.Year,
		Venue:     p.Venue,
		Abstract:  p.Abstract,
		SourceURL: sourceURL,
	}
}
