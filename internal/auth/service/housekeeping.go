package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/auth/store"
)

const (
	// DefaultCredentialRetention keeps expired credential records around
	// briefly for audit before pruning.
	DefaultCredentialRetention = 24 * time.Hour

	// DefaultDedupWindow bounds how long idempotency keys are kept. It must
	// outlive the longest redelivery delay on the sync streams.
	DefaultDedupWindow = 7 * 24 * time.Hour
)

// HousekeepingService periodically prunes expired credential records and
// old sync idempotency keys.
type HousekeepingService struct {
	Store               store.Store
	Logger              *slog.Logger
	Interval            time.Duration
	CredentialRetention time.Duration
	DedupWindow         time.Duration
	Now                 func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults interval to 1 hour when not positive.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:               store,
		Logger:              logger.With("module", "housekeeping"),
		Interval:            interval,
		CredentialRetention: DefaultCredentialRetention,
		DedupWindow:         DefaultDedupWindow,
		Now:                 time.Now,
		stopCh:              make(chan struct{}),
		doneCh:              make(chan struct{}),
	}
}

// Start runs Cleanup now and then every Interval until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress cleanup finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one pass. Each step is independent; a failure in one does
// not skip the other.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	now := s.Now()

	credentials, err := s.Store.Credentials().DeleteExpired(ctx, now.Add(-s.CredentialRetention))
	if err != nil {
		s.Logger.Error("failed to delete expired credentials", "event", "cleanup", "error", err)
	}

	processed, err := s.Store.SyncLog().PruneProcessed(ctx, now.Add(-s.DedupWindow))
	if err != nil {
		s.Logger.Error("failed to prune processed messages", "event", "cleanup", "error", err)
	}

	s.Logger.Info("housekeeping cleanup completed",
		"event", "cleanup",
		"credentials_deleted", credentials,
		"processed_messages_deleted", processed,
	)
}
