//go:build integration

package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/deepresearch/internal/models"
)

var testStore *Surreal
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testStore, err = NewSurreal(ctx, SurrealConfig{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	code := m.Run()

	_ = testStore.Close(ctx)
	_ = testContainer.Terminate(ctx)
	os.Exit(code)
}

func TestSurreal_JobLifecycle(t *testing.T) {
	ctx := context.Background()

	job, err := testStore.Create(ctx, "life-1", "graph neural networks for drug discovery")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)

	// Duplicate ID is rejected.
	_, err = testStore.Create(ctx, "life-1", "other")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Walk the stage sequence.
	for _, st := range []models.JobStatus{
		models.JobStatusExpanding, models.JobStatusSearching,
		models.JobStatusProcessing, models.JobStatusAnalyzing,
	} {
		job, err = testStore.UpdateStatus(ctx, "life-1", st, 50, string(st))
		require.NoError(t, err)
		assert.Equal(t, st, job.Status)
	}

	// Result stored during analyzing, visible after completion.
	result := models.Result{
		Query:  "graph neural networks for drug discovery",
		Topics: []string{"gnn architectures", "molecular property prediction"},
		ByTopic: []models.TopicDocuments{
			{Topic: "gnn architectures", Documents: []models.Document{{Title: "A survey"}}},
		},
		Analysis: models.Analysis{Summary: "summary"},
	}
	require.NoError(t, testStore.PutResult(ctx, "life-1", result))
	assert.ErrorIs(t, testStore.PutResult(ctx, "life-1", result), ErrConflict)

	_, err = testStore.GetResult(ctx, "life-1")
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = testStore.UpdateStatus(ctx, "life-1", models.JobStatusCompleted, 100, "done")
	require.NoError(t, err)

	got, err := testStore.GetResult(ctx, "life-1")
	require.NoError(t, err)
	assert.Equal(t, result.Query, got.Query)
	assert.Equal(t, result.Topics, got.Topics)
	assert.Equal(t, "summary", got.Analysis.Summary)

	// Terminal protection.
	_, err = testStore.UpdateStatus(ctx, "life-1", models.JobStatusExpanding, 10, "again")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSurreal_FailureResetsProgress(t *testing.T) {
	ctx := context.Background()

	_, err := testStore.Create(ctx, "fail-1", "q")
	require.NoError(t, err)

	_, err = testStore.UpdateStatus(ctx, "fail-1", models.JobStatusSearching, 40, "searching")
	require.NoError(t, err)

	job, err := testStore.UpdateStatus(ctx, "fail-1", models.JobStatusFailed, 40, "no material found")
	require.NoError(t, err)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, "no material found", job.Message)
}

func TestSurreal_NotFound(t *testing.T) {
	ctx := context.Background()

	_, err := testStore.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = testStore.UpdateStatus(ctx, "missing", models.JobStatusExpanding, 1, "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = testStore.GetResult(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
