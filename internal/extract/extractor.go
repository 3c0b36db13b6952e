// Package extract provides the document text extraction collaborator. It
// fetches a document's source URL and strips HTML down to readable text.
// Extraction is strictly best effort: callers get (text, ok), never an error.
package extract

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	defaultTimeout = 20 * time.Second

	// maxBodyBytes caps how much of a document is read. Papers hosted as
	// full HTML pages can be arbitrarily large.
	maxBodyBytes = 2 << 20

	// minTextLength below which an extraction is considered junk (cookie
	// walls, archive stubs, bare error pages).
	minTextLength = 200
)

// Extractor fetches and extracts document text over HTTP.
type Extractor struct {
	httpClient *http.Client
	userAgent  string
}

// Option configures the extractor.
type Option func(*Extractor)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) { e.httpClient = c }
}

// New creates an extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  "deepresearch/1.0",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract fetches the source URL and returns its readable text. Any failure
// (network, status, content type, junk content) returns ok=false.
func (e *Extractor) Extract(ctx context.Context, sourceURL string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		slog.Debug("extract: bad source url", "url", sourceURL, "error", err)
		return "", false
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		slog.Debug("extract: fetch failed", "url", sourceURL, "error", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("extract: non-200 response", "url", sourceURL, "status", resp.StatusCode)
		return "", false
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "html") && !strings.Contains(contentType, "text/plain") {
		// PDFs and other binary formats need a dedicated extractor.
		slog.Debug("extract: unsupported content type", "url", sourceURL, "content_type", contentType)
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		slog.Debug("extract: read failed", "url", sourceURL, "error", err)
		return "", false
	}

	var text string
	if strings.Contains(contentType, "text/plain") {
		text = strings.TrimSpace(string(body))
	} else {
		text = htmlToText(string(body))
	}

	if len(text) < minTextLength {
		slog.Debug("extract: content too short", "url", sourceURL, "length", len(text))
		return "", false
	}
	return text, true
}

// htmlToText walks the parse tree collecting visible text. Script, style,
// and navigation chrome are skipped.
func htmlToText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "header", "footer", "aside":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		// Paragraph-level elements get a line break so sentence boundaries
		// survive the flattening.
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "section", "article", "br", "h1", "h2", "h3", "h4", "li":
				b.WriteString("\n")
			}
		}
	}
	walk(doc)

	return collapseWhitespace(b.String())
}

// collapseWhitespace squeezes runs of blank lines and trailing spaces.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
