package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/redletterlabs/vouchsafe/internal/issuer/store"
)

// DefaultTokenRetention is how long expired or revoked refresh token
// records are kept before housekeeping deletes them. The retention window
// preserves the rotation history long enough to investigate a reuse alert.
const DefaultTokenRetention = 30 * 24 * time.Hour

// HousekeepingService periodically deletes refresh token records of dead
// sessions that are long past their expiry, to prevent unbounded growth of
// the token table. Sessions with a live token are never touched, so the
// record a stolen token would match is always still there.
type HousekeepingService struct {
	Store     store.Store
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour. If retention
// is 0 or negative, defaults to DefaultTokenRetention.
func NewHousekeepingService(
	st store.Store,
	logger *slog.Logger,
	interval, retention time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if retention <= 0 {
		retention = DefaultTokenRetention
	}

	return &HousekeepingService{
		Store:     st,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// This is non-blocking and should be called after the database is ready.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "retention", s.Retention)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

// run is the main background worker loop.
func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup performs the actual deletion of stale records.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	s.Logger.Info("starting housekeeping cleanup")

	if err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, s.Retention); err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
		return
	}

	s.Logger.Info("housekeeping cleanup completed")
}
