package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/services"
)

// SecuritySweeper prunes expired in-memory security state
type SecuritySweeper interface {
	Cleanup() services.CleanupResult
}

// ArchivePurger deletes archived security events past their retention
type ArchivePurger interface {
	Purge(ctx context.Context, retentionDays int) (int64, error)
}

// CleanupManager periodically sweeps expired security state and, when an
// archive is configured, purges archived events past retention.
type CleanupManager struct {
	sweeper       SecuritySweeper
	archive       ArchivePurger
	retentionDays int
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewCleanupManager creates a new cleanup manager. archive may be nil.
func NewCleanupManager(
	sweeper SecuritySweeper,
	archive ArchivePurger,
	retentionDays int,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sweeper:       sweeper,
		archive:       archive,
		retentionDays: retentionDays,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single sweep
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	result := cm.sweeper.Cleanup()
	if result != (services.CleanupResult{}) {
		cm.logger.Info("security cleanup completed",
			slog.Int("expired_csrf_tokens", result.ExpiredCSRFTokens),
			slog.Int("pruned_entries", result.PrunedEntries),
			slog.Int("cleared_limits", result.ClearedLimits),
			slog.Int("expired_sessions", result.ExpiredSessions))
	}

	if cm.archive == nil {
		return
	}

	purgeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := cm.archive.Purge(purgeCtx, cm.retentionDays)
	if err != nil {
		cm.logger.Error("failed to purge security event archive", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("security event archive purged", slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() {
		close(cm.stopCh)
	})
}
