package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/sessionauth/internal/auth/store"
)

// HousekeepingService periodically deletes expired refresh tokens. Expiry is
// always enforced at read time, so this only bounds storage growth.
type HousekeepingService struct {
	RefreshTokens store.RefreshTokens
	Logger        *slog.Logger
	Interval      time.Duration
	Now           func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewHousekeepingService creates a reaper running every interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(tokens store.RefreshTokens, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}

	return &HousekeepingService{
		RefreshTokens: tokens,
		Logger:        logger,
		Interval:      interval,
		Now:           time.Now,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the background worker. Call Stop to shut it down. Starting
// twice, or after Stop, does nothing.
func (s *HousekeepingService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress sweep has finished. It is safe to call
// more than once, and on a service that was never started.
func (s *HousekeepingService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	running := s.started
	s.mu.Unlock()

	if running {
		<-s.doneCh
		s.Logger.Info("housekeeping service stopped")
	}
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep deletes every refresh token expired as of now and returns the count.
func (s *HousekeepingService) Sweep(ctx context.Context) int64 {
	n, err := s.RefreshTokens.DeleteExpiredRefreshTokens(ctx, s.Now().UTC())
	if err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
		return 0
	}
	s.Logger.Info("housekeeping sweep completed", "deleted_refresh_tokens", n)
	return n
}
