package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pneutrack/console/internal/token"
)

// SchedulerConfig tunes the background refresh loop.
type SchedulerConfig struct {
	Period    time.Duration
	Threshold time.Duration
}

// DefaultSchedulerConfig checks every minute and refreshes tokens with less than
// five minutes left.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Period: time.Minute, Threshold: 5 * time.Minute}
}

// TickReport summarises one pass over the stored profiles.
type TickReport struct {
	Checked   int
	Refreshed int
	Failed    int
}

// Scheduler refreshes access tokens shortly before they expire. It never gates a
// request; expired tokens are left to Manager.IsValid.
type Scheduler struct {
	manager *Manager
	cfg     SchedulerConfig
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler constructs a stopped Scheduler.
func NewScheduler(manager *Manager, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if cfg.Period <= 0 {
		cfg.Period = defaults.Period
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{manager: manager, cfg: cfg, logger: logger}
}

// Start launches the loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// Stop cancels the loop and waits for the running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := s.Tick(ctx)
			if report.Refreshed > 0 || report.Failed > 0 {
				s.logger.Info("session refresh tick",
					slog.Int("checked", report.Checked),
					slog.Int("refreshed", report.Refreshed),
					slog.Int("failed", report.Failed))
			}
		}
	}
}

// Tick inspects every stored session once.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	var report TickReport
	profiles, err := s.manager.store.Profiles(ctx)
	if err != nil {
		s.logger.Error("list session profiles", slog.Any("error", err))
		return report
	}
	for _, profile := range profiles {
		if ctx.Err() != nil {
			break
		}
		report.Checked++
		if !s.dueForRefresh(ctx, profile) {
			continue
		}
		if err := s.manager.Refresh(ctx, profile); err != nil {
			if ctx.Err() != nil {
				break
			}
			if !errors.Is(err, ErrNoSession) {
				report.Failed++
			}
			continue
		}
		report.Refreshed++
	}
	return report
}

// dueForRefresh is true when the access token is still live but within the
// threshold of its expiry.
func (s *Scheduler) dueForRefresh(ctx context.Context, profile string) bool {
	sess, err := s.manager.store.Get(ctx, profile)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			s.logger.Warn("load session for refresh", slog.String("profile", profile), slog.Any("error", err))
		}
		return false
	}
	claims, err := token.Decode(sess.AccessToken)
	if err != nil {
		return false
	}
	ttl := claims.TTL(s.manager.now())
	return ttl > 0 && ttl < s.cfg.Threshold
}
