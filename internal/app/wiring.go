package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/pneutrack/console/internal/audit"
	"github.com/pneutrack/console/internal/platform/db"
	"github.com/pneutrack/console/internal/rbac"
	"github.com/pneutrack/console/internal/session"
)

// Services is the session machinery shared by the web and worker processes.
type Services struct {
	Resolver  *rbac.Resolver
	Sessions  *session.Manager
	Scheduler *session.Scheduler
}

// NewServices builds the Redis-backed session manager and its refresh
// scheduler. recorder and observer may be nil.
func NewServices(cfg *Config, client *redis.Client, logger *slog.Logger, recorder session.EventRecorder, observer session.RefreshObserver) *Services {
	resolver := rbac.NewResolver()
	store := session.NewRedisStore(client, cfg.SessionTTL)
	authClient := session.NewAuthClient(session.AuthEndpoints{
		BaseURL:        cfg.AuthBaseURL,
		LoginPath:      cfg.AuthLoginPath,
		ActorLoginPath: cfg.AuthActorLoginPath,
		RefreshPath:    cfg.AuthRefreshPath,
	}, nil)

	manager := session.NewManager(store, authClient, resolver, logger.With(slog.String("component", "session")))
	if recorder != nil {
		manager.WithRecorder(recorder)
	}
	if observer != nil {
		manager.WithObserver(observer)
	}
	scheduler := session.NewScheduler(manager, session.SchedulerConfig{
		Period:    cfg.RefreshPeriod,
		Threshold: cfg.RefreshThreshold,
	}, logger.With(slog.String("component", "refresh")))

	return &Services{Resolver: resolver, Sessions: manager, Scheduler: scheduler}
}

// OpenAudit connects the login audit trail when PG_DSN is set. It returns a nil
// recorder and a no-op closer otherwise.
func OpenAudit(ctx context.Context, cfg *Config, logger *slog.Logger) (session.EventRecorder, func(), error) {
	if !cfg.AuditEnabled() {
		logger.Info("PG_DSN not set, login audit disabled")
		return nil, func() {}, nil
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, func() {}, err
	}
	if err := audit.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, func() {}, fmt.Errorf("audit schema: %w", err)
	}
	return audit.NewRecorder(pool), pool.Close, nil
}
