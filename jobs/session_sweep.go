package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pneutrack/console/internal/jobs"
	"github.com/pneutrack/console/internal/session"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Ticker runs one refresh pass over every stored session.
type Ticker interface {
	Tick(ctx context.Context) session.TickReport
}

// SessionSweepJob runs the refresh pass from the worker process.
type SessionSweepJob struct {
	Ticker  Ticker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSessionSweepJob wires dependencies for the sweep handler.
func NewSessionSweepJob(ticker Ticker, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepJob {
	return &SessionSweepJob{Ticker: ticker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskSessionSweep tasks. Individual refresh failures end
// those sessions and are not retried; the task fails only when every due
// session failed.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ticker == nil {
		return errors.New("session sweep: handler not configured")
	}
	var payload SessionSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("session sweep: decode payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskSessionSweep)
	start := time.Now()
	report := j.Ticker.Tick(ctx)
	j.metrics().AddSweep(report.Checked, report.Refreshed, report.Failed)

	var err error
	if report.Failed > 0 && report.Refreshed == 0 {
		err = fmt.Errorf("session sweep: %d refreshes failed", report.Failed)
	}
	j.logger().Info("session sweep finished",
		slog.String("source", payload.Source),
		slog.Int("checked", report.Checked),
		slog.Int("refreshed", report.Refreshed),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	return tracker.End(err)
}

func (j *SessionSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *SessionSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
