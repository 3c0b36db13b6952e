package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/deepresearch/internal/metrics"
	"github.com/raphaelgruber/deepresearch/internal/models"
	"github.com/raphaelgruber/deepresearch/internal/pipeline"
	"github.com/raphaelgruber/deepresearch/internal/scheduler"
	"github.com/raphaelgruber/deepresearch/internal/server"
	"github.com/raphaelgruber/deepresearch/internal/service"
	"github.com/raphaelgruber/deepresearch/internal/store"
)

// Collaborator fakes driving a deterministic happy-path pipeline.

type stubExpander struct{ gate chan struct{} }

func (s *stubExpander) Expand(ctx context.Context, _ string) ([]string, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []string{"topic one", "topic two"}, nil
}

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, topic string, _ int) ([]models.Document, error) {
	return []models.Document{{
		Title:   "Paper on " + topic,
		Authors: []string{"T. Author"},
		Year:    2024,
	}}, nil
}

type stubProcessor struct{}

func (stubProcessor) Extract(_ context.Context, _ string) (string, bool) { return "", false }

type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(_ context.Context, _ string, _ []models.TopicDocuments) (models.Analysis, error) {
	return models.Analysis{Summary: "synthesized summary"}, nil
}

type testEnv struct {
	ts       *httptest.Server
	expander *stubExpander
}

func newTestEnv(t *testing.T, gated bool) *testEnv {
	t.Helper()

	watched := store.Watch(store.NewMemory())
	collector := metrics.NewCollector()

	expander := &stubExpander{}
	if gated {
		expander.gate = make(chan struct{})
	}

	exp, sea, pro, syn := pipeline.Instrument(collector, expander, stubSearcher{}, stubProcessor{}, stubSynthesizer{})
	exec := pipeline.NewExecutor(watched, exp, sea, pro, syn, pipeline.DefaultConfig())

	sched := scheduler.New(watched, exec, scheduler.Config{
		Workers:        2,
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
	}, nil)
	sched.Start()
	t.Cleanup(func() { sched.Stop(context.Background()) })

	research := service.New(watched, sched, nil)
	srv := server.New(":0", research, watched, collector, nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, expander: expander}
}

func (e *testEnv) submit(t *testing.T, query string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"query": query})
	resp, err := http.Post(e.ts.URL+"/research", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.JobID)
	return out.JobID
}

func (e *testEnv) waitCompleted(t *testing.T, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(e.ts.URL + "/research/" + id)
		require.NoError(t, err)
		var job models.Job
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
		resp.Body.Close()

		if job.Status == models.JobStatusCompleted {
			return
		}
		require.NotEqual(t, models.JobStatusFailed, job.Status, "job failed: %s", job.Message)
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never completed")
}

func TestSubmitAndPoll(t *testing.T) {
	env := newTestEnv(t, false)

	id := env.submit(t, "caffeine and attention")
	env.waitCompleted(t, id)

	resp, err := http.Get(env.ts.URL + "/research/" + id + "/results")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result models.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "caffeine and attention", result.Query)
	assert.Len(t, result.Topics, 2)
	assert.Equal(t, "synthesized summary", result.Analysis.Summary)
	for _, td := range result.ByTopic {
		require.Len(t, td.Documents, 1)
		assert.NotEmpty(t, td.Documents[0].Citation)
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty query", `{"query": ""}`, http.StatusBadRequest},
		{"whitespace query", `{"query": "   "}`, http.StatusBadRequest},
		{"malformed json", `{"query": `, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(env.ts.URL+"/research", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestUnknownJob(t *testing.T) {
	env := newTestEnv(t, false)

	for _, path := range []string{"/research/nope", "/research/nope/results", "/research/nope/watch"} {
		resp, err := http.Get(env.ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestResultsBeforeCompletion(t *testing.T) {
	env := newTestEnv(t, true) // expander blocked, job cannot progress

	id := env.submit(t, "q")

	resp, err := http.Get(env.ts.URL + "/research/" + id + "/results")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(env.expander.gate)
	env.waitCompleted(t, id)
}

func TestListAndStats(t *testing.T) {
	env := newTestEnv(t, false)

	first := env.submit(t, "first query")
	second := env.submit(t, "second query")
	env.waitCompleted(t, first)
	env.waitCompleted(t, second)

	resp, err := http.Get(env.ts.URL + "/research")
	require.NoError(t, err)
	var jobs []models.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	resp.Body.Close()
	assert.Len(t, jobs, 2)

	resp, err = http.Get(env.ts.URL + "/research/stats")
	require.NoError(t, err)
	var stats struct {
		Jobs struct {
			Total     int `json:"total"`
			Completed int `json:"completed"`
		} `json:"jobs"`
		Operations struct {
			Expand *struct {
				Count int `json:"count"`
			} `json:"expand"`
		} `json:"operations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()

	assert.Equal(t, 2, stats.Jobs.Total)
	assert.Equal(t, 2, stats.Jobs.Completed)
	require.NotNil(t, stats.Operations.Expand)
	assert.Equal(t, 2, stats.Operations.Expand.Count)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWatchStreamsToCompletion(t *testing.T) {
	env := newTestEnv(t, true)

	id := env.submit(t, "watched query")

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/research/" + id + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	close(env.expander.gate)

	var last models.Job
	lastProgress := -1
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "watch stream never reached a terminal state")
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		var snap models.Job
		require.NoError(t, conn.ReadJSON(&snap))
		assert.Equal(t, id, snap.ID)
		assert.GreaterOrEqual(t, snap.Progress, lastProgress, "progress regressed")
		lastProgress = snap.Progress
		last = snap

		if snap.Status.Terminal() {
			break
		}
	}

	assert.Equal(t, models.JobStatusCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)
}
