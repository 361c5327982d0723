package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/pneutrack/console/internal/platform/httpx"
)

// Client enqueues console tasks from the web process.
type Client struct {
	client *asynq.Client
}

// NewClient constructs a Client on the worker's Redis.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueSessionSweep asks the worker for an immediate sweep. Requests within
// a minute of each other collapse into one task.
func (c *Client) EnqueueSessionSweep(ctx context.Context, source string) (*asynq.TaskInfo, error) {
	task, err := NewSessionSweepTask(source)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.Unique(time.Minute), asynq.MaxRetry(0))
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Inspector reads queue state.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Sweeper requests an out-of-band session sweep.
type Sweeper interface {
	EnqueueSessionSweep(ctx context.Context, source string) (*asynq.TaskInfo, error)
}

// QueueStatus is the queue health payload.
type QueueStatus struct {
	Queue     string `json:"queue"`
	Paused    bool   `json:"paused"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// Handler exposes queue health and a manual sweep trigger.
type Handler struct {
	inspector Inspector
	sweeper   Sweeper
	logger    *slog.Logger
}

// NewHandler constructs the jobs HTTP handler. A nil inspector reports an
// empty queue; a nil sweeper disables the trigger.
func NewHandler(inspector Inspector, sweeper Sweeper, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, sweeper: sweeper, logger: logger}
}

// MountRoutes attaches the jobs routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/sweep", h.sweep)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := QueueStatus{Queue: QueueDefault}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, status)
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("inspect queue", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "job queue cannot be inspected")
		return
	}
	if info != nil {
		status = QueueStatus{
			Queue:     info.Queue,
			Paused:    info.Paused,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
		}
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "job queue is not configured")
		return
	}
	info, err := h.sweeper.EnqueueSessionSweep(r.Context(), "http")
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			httpx.JSON(w, http.StatusAccepted, map[string]any{"task": TaskSessionSweep, "duplicate": true})
			return
		}
		h.logger.Error("enqueue session sweep", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "session sweep could not be queued")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"task": TaskSessionSweep, "id": info.ID})
}
