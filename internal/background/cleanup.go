package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/authguard/internal/ratelimit"
)

// RateLimitSweeper removes expired rate-limit and failed-login records
type RateLimitSweeper interface {
	Sweep(ctx context.Context) (ratelimit.SweepResult, error)
}

// ResetTokenCleaner removes expired password reset tokens
type ResetTokenCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CleanupManager periodically sweeps the rate-limit store and deletes expired
// reset tokens. Either target may be nil.
type CleanupManager struct {
	limiter  RateLimitSweeper
	tokens   ResetTokenCleaner
	logger   *slog.Logger
	interval time.Duration
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(limiter RateLimitSweeper, tokens ResetTokenCleaner, logger *slog.Logger, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CleanupManager{
		limiter:  limiter,
		tokens:   tokens,
		logger:   logger,
		interval: interval,
	}
}

// Start runs a cleanup immediately and then on every tick until ctx is done.
func (cm *CleanupManager) Start(ctx context.Context) error {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-ctx.Done():
			cm.logger.Info("cleanup manager stopped")
			return nil
		}
	}
}

// RunOnce performs a single cleanup pass. Failures are logged.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if cm.limiter != nil {
		result, err := cm.limiter.Sweep(cleanupCtx)
		if err != nil {
			cm.logger.Error("failed to sweep rate limit store", slog.Any("error", err))
		} else if result.Entries > 0 || result.FailedLogins > 0 {
			cm.logger.Info("rate limit sweep completed",
				slog.Int("entries", result.Entries),
				slog.Int("failed_logins", result.FailedLogins))
		}
	}

	if cm.tokens != nil {
		rowsDeleted, err := cm.tokens.CleanupExpired(cleanupCtx)
		if err != nil {
			cm.logger.Error("failed to cleanup expired reset tokens", slog.Any("error", err))
			return
		}
		if rowsDeleted > 0 {
			cm.logger.Info("expired reset token cleanup completed", slog.Int64("rows_deleted", rowsDeleted))
		}
	}
}
