package background

import (
	"context"
	"log/slog"
	"time"
)

// SessionPurger removes sessions created before the cutoff.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically evicts expired sessions from stores that do
// not expire entries on their own.
type CleanupManager struct {
	purger     SessionPurger
	logger     *slog.Logger
	interval   time.Duration
	sessionTTL time.Duration
	stopCh     chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(purger SessionPurger, logger *slog.Logger, interval, sessionTTL time.Duration) *CleanupManager {
	return &CleanupManager{
		purger:     purger,
		logger:     logger,
		interval:   interval,
		sessionTTL: sessionTTL,
		stopCh:     make(chan struct{}),
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

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-cm.sessionTTL)
	purged, err := cm.purger.PurgeExpired(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to purge expired sessions", slog.Any("error", err))
		return
	}

	if purged > 0 {
		cm.logger.Info("expired session cleanup completed", slog.Int64("sessions_purged", purged))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
