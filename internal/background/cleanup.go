package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/metered-finance/internal/metrics"
)

// RateWindowRetention is how long a rate window row is kept after it starts
const RateWindowRetention = 2 * time.Minute

// RateWindowCleaner deletes rate windows that started before a cutoff
type RateWindowCleaner interface {
	CleanupRateWindows(ctx context.Context, before time.Time) (int64, error)
}

// CleanupManager periodically removes expired rate windows from the database
type CleanupManager struct {
	cleaner  RateWindowCleaner
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	cleaner RateWindowCleaner,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		cleaner:  cleaner,
		logger:   logger.With(slog.String("component", "background")),
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup removes rate windows older than the retention period
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := cm.now().UTC().Add(-RateWindowRetention)
	rowsDeleted, err := cm.cleaner.CleanupRateWindows(cleanupCtx, cutoff)
	if err != nil {
		metrics.RecordJob("rate_window_cleanup", metrics.JobFailed)
		cm.logger.Warn("failed to cleanup expired rate windows", slog.Any("error", err))
		return
	}
	metrics.RecordJob("rate_window_cleanup", metrics.JobOK)

	if rowsDeleted > 0 {
		cm.logger.Info("expired rate window cleanup completed", slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
