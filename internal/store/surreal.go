package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/raphaelgruber/deepresearch/internal/models"
)

func init() {
	// Force HTTP/1.1 for WSS connections to prevent HTTP/2 ALPN negotiation.
	// WebSocket upgrade requires HTTP/1.1 semantics which fail under HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// SurrealConfig holds SurrealDB connection configuration.
type SurrealConfig struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

// jobSchema initializes the research_job table.
const jobSchema = `
	DEFINE TABLE IF NOT EXISTS research_job SCHEMAFULL;
	DEFINE FIELD IF NOT EXISTS query ON research_job TYPE string;
	DEFINE FIELD IF NOT EXISTS status ON research_job TYPE string;
	DEFINE FIELD IF NOT EXISTS progress ON research_job TYPE int;
	DEFINE FIELD IF NOT EXISTS message ON research_job TYPE string;
	DEFINE FIELD IF NOT EXISTS result ON research_job FLEXIBLE TYPE option<object>;
	DEFINE FIELD IF NOT EXISTS created_at ON research_job TYPE datetime;
	DEFINE FIELD IF NOT EXISTS updated_at ON research_job TYPE datetime;
	DEFINE INDEX IF NOT EXISTS research_job_created ON research_job FIELDS created_at;
`

// jobRecord is the persisted shape of a job row.
type jobRecord struct {
	ID        surrealmodels.RecordID `json:"id,omitempty"`
	Query     string                 `json:"query"`
	Status    string                 `json:"status"`
	Progress  int                    `json:"progress"`
	Message   string                 `json:"message"`
	Result    *models.Result         `json:"result,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func (r jobRecord) toJob() models.Job {
	id, _ := r.ID.ID.(string)
	return models.Job{
		ID:        id,
		Query:     r.Query,
		Status:    models.JobStatus(r.Status),
		Progress:  r.Progress,
		Message:   r.Message,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// Surreal is a SurrealDB-backed Store with auto-reconnecting WebSocket.
// It is the durable substitute for Memory; the pipeline and scheduler are
// oblivious to which one they run against.
type Surreal struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	logger logger.Logger
}

var _ Store = (*Surreal)(nil)

// NewSurreal connects to SurrealDB and initializes the job schema.
func NewSurreal(ctx context.Context, cfg SurrealConfig, log *slog.Logger) (*Surreal, error) {
	var sdkLogger logger.Logger
	if log != nil {
		sdkLogger = logger.New(log.Handler())
	} else {
		sdkLogger = logger.New(slog.Default().Handler())
	}

	// surrealcbor handles SurrealDB custom CBOR tags.
	codec := surrealcbor.New()

	// gorillaws requires the base URL without the /rpc suffix (it adds it).
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			ws := gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			})
			return ws, nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 1 * time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	sdkLogger.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}

	if cfg.AuthLevel == "database" {
		_, err = db.SignIn(ctx, surrealdb.Auth{
			Namespace: cfg.Namespace,
			Database:  cfg.Database,
			Username:  cfg.Username,
			Password:  cfg.Password,
		})
	} else {
		_, err = db.SignIn(ctx, surrealdb.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("signin: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use: %w", err)
	}

	if _, err := surrealdb.Query[any](ctx, db, jobSchema, nil); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("init schema: %w", err)
	}

	sdkLogger.Info("SurrealDB job store ready")
	return &Surreal{conn: conn, db: db, logger: sdkLogger}, nil
}

// Close closes the SurrealDB connection.
func (s *Surreal) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

// wrapQueryError maps SurrealDB query errors onto store sentinel errors.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}
	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) && strings.Contains(queryErr.Message, "already exists") {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, queryErr.Message)
	}
	return err
}

// Create registers a new job in the queued state.
func (s *Surreal) Create(ctx context.Context, id, query string) (models.Job, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, s.db, `
		CREATE ONLY type::record("research_job", $id) SET
			query = $query,
			status = "queued",
			progress = 0,
			message = "queued",
			created_at = time::now(),
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": id, "query": query})
	if err != nil {
		return models.Job{}, fmt.Errorf("create job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.Job{}, fmt.Errorf("create job %s: empty result", id)
	}
	return (*results)[0].Result[0].toJob(), nil
}

// get fetches the raw record for id.
func (s *Surreal) get(ctx context.Context, id string) (*jobRecord, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, s.db, `
		SELECT * FROM type::record("research_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &(*results)[0].Result[0], nil
}

// Get returns a snapshot of the job.
func (s *Surreal) Get(ctx context.Context, id string) (models.Job, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return models.Job{}, err
	}
	return rec.toJob(), nil
}

// List returns all jobs, most recently created first.
func (s *Surreal) List(ctx context.Context) ([]models.Job, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, s.db, `
		SELECT * FROM research_job ORDER BY created_at DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var jobs []models.Job
	if results != nil && len(*results) > 0 {
		for _, rec := range (*results)[0].Result {
			jobs = append(jobs, rec.toJob())
		}
	}
	return jobs, nil
}

// UpdateStatus applies a status/progress/message mutation. Terminal
// protection and progress monotonicity are enforced inside the query so
// concurrent writers cannot interleave incorrectly.
func (s *Surreal) UpdateStatus(ctx context.Context, id string, status models.JobStatus, progress int, message string) (models.Job, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, s.db, `
		UPDATE type::record("research_job", $id) SET
			status = $status,
			progress = IF $status = "failed" THEN 0 ELSE math::max([progress, $progress]) END,
			message = $message,
			updated_at = time::now()
		WHERE status NOT IN ["completed", "failed"]
		RETURN AFTER
	`, map[string]any{
		"id":       id,
		"status":   string(status),
		"progress": progress,
		"message":  message,
	})
	if err != nil {
		return models.Job{}, fmt.Errorf("update job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		// Nothing matched: either the job does not exist or it is terminal.
		if _, getErr := s.get(ctx, id); getErr != nil {
			return models.Job{}, getErr
		}
		return models.Job{}, fmt.Errorf("%w: job %s is terminal", ErrConflict, id)
	}
	return (*results)[0].Result[0].toJob(), nil
}

// Requeue moves a failed job back to queued for another attempt.
func (s *Surreal) Requeue(ctx context.Context, id, message string) (models.Job, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, s.db, `
		UPDATE type::record("research_job", $id) SET
			status = "queued",
			progress = 0,
			message = $message,
			updated_at = time::now()
		WHERE status = "failed"
		RETURN AFTER
	`, map[string]any{"id": id, "message": message})
	if err != nil {
		return models.Job{}, fmt.Errorf("requeue job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		if _, getErr := s.get(ctx, id); getErr != nil {
			return models.Job{}, getErr
		}
		return models.Job{}, fmt.Errorf("%w: job %s is not failed", ErrConflict, id)
	}
	return (*results)[0].Result[0].toJob(), nil
}

// PutResult stores the terminal artifact for a job.
func (s *Surreal) PutResult(ctx context.Context, id string, result models.Result) error {
	results, err := surrealdb.Query[[]jobRecord](ctx, s.db, `
		UPDATE type::record("research_job", $id) SET
			result = $result,
			updated_at = time::now()
		WHERE result = NONE AND status IN ["analyzing", "completed"]
		RETURN AFTER
	`, map[string]any{"id": id, "result": result})
	if err != nil {
		return fmt.Errorf("put result: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		if _, getErr := s.get(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: result rejected for %s", ErrConflict, id)
	}
	return nil
}

// GetResult returns the stored result of a completed job.
func (s *Surreal) GetResult(ctx context.Context, id string) (models.Result, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return models.Result{}, err
	}
	if models.JobStatus(rec.Status) != models.JobStatusCompleted || rec.Result == nil {
		return models.Result{}, fmt.Errorf("%w: %s is %s", ErrNotReady, id, rec.Status)
	}
	return *rec.Result, nil
}

// Stats returns per-status job counts.
func (s *Surreal) Stats(ctx context.Context) (Stats, error) {
	jobs, err := s.List(ctx)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	for _, job := range jobs {
		switch job.Status {
		case models.JobStatusQueued:
			st.Queued++
		case models.JobStatusCompleted:
			st.Completed++
		case models.JobStatusFailed:
			st.Failed++
		default:
			st.Running++
		}
		st.Total++
	}
	return st, nil
}
