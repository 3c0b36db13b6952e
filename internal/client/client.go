// Package client provides an HTTP client for the deepresearch server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/deepresearch/internal/models"
	"github.com/raphaelgruber/deepresearch/internal/store"
)

// ErrNotFound is returned for unknown job ids.
var ErrNotFound = errors.New("job not found")

// ErrNotReady is returned when results are requested before completion.
var ErrNotReady = errors.New("job not completed")

// Client talks to the deepresearch HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. If baseURL is empty, DEEPRESEARCH_SERVER_URL is
// consulted, then the localhost default.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("DEEPRESEARCH_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := 30 * time.Second
	if t := os.Getenv("DEEPRESEARCH_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Submit creates a research job and returns its id.
func (c *Client) Submit(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var out struct {
		JobID string `json:"job_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/research", bytes.NewReader(body), http.StatusAccepted, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// GetJob fetches the current status snapshot of one job.
func (c *Client) GetJob(ctx context.Context, id string) (models.Job, error) {
	var job models.Job
	err := c.do(ctx, http.MethodGet, "/research/"+id, nil, http.StatusOK, &job)
	return job, err
}

// GetResults fetches the completed result of one job.
func (c *Client) GetResults(ctx context.Context, id string) (models.Result, error) {
	var result models.Result
	err := c.do(ctx, http.MethodGet, "/research/"+id+"/results", nil, http.StatusOK, &result)
	return result, err
}

// ListJobs fetches all jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	err := c.do(ctx, http.MethodGet, "/research", nil, http.StatusOK, &jobs)
	return jobs, err
}

// Stats holds the server's aggregate counters.
type Stats struct {
	Jobs       store.Stats     `json:"jobs"`
	Operations json.RawMessage `json:"operations"`
}

// GetStats fetches aggregate job statistics.
func (c *Client) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := c.do(ctx, http.MethodGet, "/research/stats", nil, http.StatusOK, &stats)
	return stats, err
}

// Watch subscribes to a job's snapshot stream. Snapshots are delivered on
// the returned channel until the job reaches a terminal state, the context
// is cancelled, or the connection drops; the channel is then closed.
func (c *Client) Watch(ctx context.Context, id string) (<-chan models.Job, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/research/" + id + "/watch"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dial watch: %w", err)
	}

	ch := make(chan models.Job, 16)
	go func() {
		defer close(ch)
		defer conn.Close()

		// Close the socket when the caller gives up.
		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		for {
			var job models.Job
			if err := conn.ReadJSON(&job); err != nil {
				return
			}
			select {
			case ch <- job:
			case <-ctx.Done():
				return
			}
			if job.Status.Terminal() {
				return
			}
		}
	}()
	return ch, nil
}

// do executes one API request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, wantStatus int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusConflict:
			return ErrNotReady
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, apiErrorMessage(data))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// apiErrorMessage extracts the error field from an API error body, falling
// back to the raw body.
func apiErrorMessage(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(data)
}
