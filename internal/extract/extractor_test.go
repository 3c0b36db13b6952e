package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// testPage is long enough to clear the junk threshold.
const testPage = `<!DOCTYPE html>
<html>
<head><title>Paper</title><style>body { color: red }</style></head>
<body>
<nav>Home | About | Contact</nav>
<script>trackVisitor();</script>
<article>
<h1>Sleep and Memory Consolidation</h1>
<p>This study examines the relationship between sleep architecture and
declarative memory consolidation in healthy adults over many nights of
polysomnographic observation in a controlled laboratory environment.</p>
<p>We found that slow-wave sleep duration predicted recall performance
across all tested conditions, and that the effect persisted after
controlling for total sleep time and circadian phase.</p>
</article>
<footer>Copyright 2024</footer>
</body>
</html>`

func TestExtract(t *testing.T) {
	ctx := context.Background()

	t.Run("html page", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(testPage))
		}))
		defer srv.Close()

		text, ok := New().Extract(ctx, srv.URL)
		if !ok {
			t.Fatal("Extract() ok = false")
		}
		if !strings.Contains(text, "slow-wave sleep duration") {
			t.Errorf("text missing article content: %q", text)
		}
		for _, junk := range []string{"trackVisitor", "color: red", "Home | About", "Copyright 2024"} {
			if strings.Contains(text, junk) {
				t.Errorf("text contains chrome %q", junk)
			}
		}
	})

	t.Run("plain text", func(t *testing.T) {
		content := strings.Repeat("plain text paper content. ", 20)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte(content))
		}))
		defer srv.Close()

		text, ok := New().Extract(ctx, srv.URL)
		if !ok || !strings.Contains(text, "plain text paper content") {
			t.Errorf("Extract() = %q, %v", text, ok)
		}
	})

	t.Run("failures never error", func(t *testing.T) {
		notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.NotFound(w, nil)
		}))
		defer notFound.Close()

		pdf := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4"))
		}))
		defer pdf.Close()

		short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><body><p>stub</p></body></html>"))
		}))
		defer short.Close()

		tests := []struct {
			name string
			url  string
		}{
			{"404", notFound.URL},
			{"pdf content type", pdf.URL},
			{"junk-short page", short.URL},
			{"unreachable host", "http://127.0.0.1:1"},
			{"malformed url", "::not-a-url"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if text, ok := New().Extract(ctx, tt.url); ok {
					t.Errorf("Extract(%s) ok = true, text %q", tt.name, text)
				}
			})
		}
	})
}

func TestHTMLToText(t *testing.T) {
	got := htmlToText("<p>one</p><p>two</p><script>x()</script>")
	if got != "one\ntwo" {
		t.Errorf("htmlToText() = %q, want %q", got, "one\ntwo")
	}
}
