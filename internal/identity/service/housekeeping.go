package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/session"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
)

// Sweeper drops idle in-memory state, such as rate limiter buckets.
type Sweeper interface {
	Sweep() int
}

// HousekeepingService periodically deletes expired authorization codes,
// refresh tokens, account tokens and sessions.
type HousekeepingService struct {
	Store    store.Store
	Sessions session.Store
	Sweepers []Sweeper
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults the interval to one hour.
func NewHousekeepingService(st store.Store, sessions session.Store, logger *slog.Logger, interval time.Duration, sweepers ...Sweeper) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Sessions: sessions,
		Sweepers: sweepers,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs a cleanup immediately and then on every tick. Call Stop to
// shut the worker down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background(), time.Now())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background(), time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup performs one pass. Each step is independent; a failure is logged
// and the rest still run. It returns the number of removed records.
func (s *HousekeepingService) Cleanup(ctx context.Context, now time.Time) int64 {
	var total int64

	steps := []struct {
		name string
		fn   func(context.Context, time.Time) (int64, error)
	}{
		{"authorization codes", s.Store.AuthorizationCodes().DeleteExpiredAuthorizationCodes},
		{"refresh tokens", s.Store.RefreshTokens().DeleteExpiredRefreshTokens},
		{"user tokens", s.Store.UserTokens().DeleteExpiredUserTokens},
	}
	for _, step := range steps {
		n, err := step.fn(ctx, now)
		if err != nil {
			s.Logger.Error("failed to delete expired "+step.name, "error", err)
			continue
		}
		total += n
	}

	if s.Sessions != nil {
		n, err := s.Sessions.Sweep(ctx, now)
		if err != nil {
			s.Logger.Error("failed to sweep sessions", "error", err)
		} else {
			total += int64(n)
		}
	}
	for _, sw := range s.Sweepers {
		sw.Sweep()
	}

	s.Logger.Info("housekeeping cleanup completed", "deleted", total)
	return total
}
