package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("maps papers to documents", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("query"); got != "sleep stages" {
				t.Errorf("query = %q", got)
			}
			if got := r.URL.Query().Get("limit"); got != "2" {
				t.Errorf("limit = %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"total": 2,
				"data": [
					{
						"title": "REM and recall",
						"abstract": "We study...",
						"year": 2021,
						"venue": "Sleep",
						"url": "https://example.org/landing/1",
						"authors": [{"name": "A. One"}, {"name": "B. Two"}],
						"openAccessPdf": {"url": "https://example.org/pdf/1"}
					},
					{
						"title": "No PDF paper",
						"year": 2019,
						"url": "https://example.org/landing/2",
						"authors": []
					}
				]
			}`))
		}))
		defer srv.Close()

		s := NewScholar(srv.URL)
		docs, err := s.Search(ctx, "sleep stages", 2)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(docs) != 2 {
			t.Fatalf("got %d documents, want 2", len(docs))
		}

		// Open-access PDF wins over the landing page.
		if docs[0].SourceURL != "https://example.org/pdf/1" {
			t.Errorf("doc[0] source = %q", docs[0].SourceURL)
		}
		if docs[1].SourceURL != "https://example.org/landing/2" {
			t.Errorf("doc[1] source = %q", docs[1].SourceURL)
		}
		if len(docs[0].Authors) != 2 || docs[0].Year != 2021 || docs[0].Venue != "Sleep" {
			t.Errorf("doc[0] = %+v", docs[0])
		}
	})

	t.Run("untitled hits are dropped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"total": 2, "data": [{"title": ""}, {"title": "Kept"}]}`))
		}))
		defer srv.Close()

		docs, err := NewScholar(srv.URL).Search(ctx, "t", 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(docs) != 1 || docs[0].Title != "Kept" {
			t.Errorf("docs = %+v", docs)
		}
	})

	t.Run("empty result set is success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"total": 0, "data": []}`))
		}))
		defer srv.Close()

		docs, err := NewScholar(srv.URL).Search(ctx, "t", 5)
		if err != nil {
			t.Fatalf("Search() error = %v, want success with zero docs", err)
		}
		if len(docs) != 0 {
			t.Errorf("docs = %+v", docs)
		}
	})

	t.Run("server error surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		if _, err := NewScholar(srv.URL).Search(ctx, "t", 5); err == nil {
			t.Error("Search() succeeded on a 429 response")
		}
	})

	t.Run("api key header", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("x-api-key"); got != "secret" {
				t.Errorf("x-api-key = %q", got)
			}
			w.Write([]byte(`{"total": 0, "data": []}`))
		}))
		defer srv.Close()

		if _, err := NewScholar(srv.URL, WithAPIKey("secret")).Search(ctx, "t", 1); err != nil {
			t.Fatal(err)
		}
	})
}
