package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/authguard/internal/clock"
)

const (
	// FailureStreakTTL is the gap after which a failed-login streak starts over
	FailureStreakTTL = time.Hour
	// FailedLoginIdleTTL is how long an idle failed-login record is retained
	FailedLoginIdleTTL = 24 * time.Hour

	maxProgressiveSteps = 5
	maxProgressiveDelay = 30 * time.Second
)

// Limiter decides whether a request is admitted and keeps the bookkeeping for
// quotas and progressive login delays.
//
// Check and Update are separate calls, so two concurrent requests from the same
// identity can both pass Check before either Update lands. Limiting is best
// effort; each individual store operation is atomic.
type Limiter struct {
	store     Store
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *Metrics
	lazySweep bool
}

// NewLimiter creates a Limiter. metrics may be nil.
func NewLimiter(store Store, clk clock.Clock, logger *slog.Logger, metrics *Metrics) *Limiter {
	if clk == nil {
		clk = clock.System()
	}
	return &Limiter{
		store:     store,
		clock:     clk,
		logger:    logger,
		metrics:   metrics,
		lazySweep: true,
	}
}

// SetLazySweep toggles the sweep performed on every check. Disable it when a
// background task calls Sweep instead.
func (l *Limiter) SetLazySweep(enabled bool) {
	l.lazySweep = enabled
}

// Check reports whether the next counted request for identity would breach the
// quota. It never increments; it only (re)initializes a missing or expired entry.
func (l *Limiter) Check(ctx context.Context, identity string, cfg Config) (Result, error) {
	now := l.clock.Now()
	l.maybeSweep(ctx, now)

	key := entryKey(cfg.Class, identity)
	entry, err := l.store.GetEntry(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Result{}, fmt.Errorf("failed to get rate limit entry: %w", err)
	}

	if entry == nil || now.After(entry.ResetAt) {
		entry = &Entry{ResetAt: now.Add(cfg.Window)}
		if err := l.store.SetEntry(ctx, key, entry, cfg.Window); err != nil {
			return Result{}, fmt.Errorf("failed to reset rate limit entry: %w", err)
		}
	}

	result := Result{
		Limited:    entry.Count >= cfg.MaxAttempts,
		Limit:      cfg.MaxAttempts,
		Remaining:  max(0, cfg.MaxAttempts-entry.Count),
		ResetAt:    entry.ResetAt,
		RetryAfter: entry.ResetAt.Sub(now),
	}

	l.metrics.observeCheck(cfg.Class, result.Limited)
	if result.Limited {
		l.logger.Warn("rate limit exceeded",
			slog.String("class", string(cfg.Class)),
			slog.String("client", identity),
			slog.Int("count", entry.Count))
	}

	return result, nil
}

// Update records the outcome of a request admitted by Check. It is a no-op when
// no entry exists; callers must Check first.
func (l *Limiter) Update(ctx context.Context, identity string, cfg Config, success bool) error {
	now := l.clock.Now()
	key := entryKey(cfg.Class, identity)

	entry, err := l.store.GetEntry(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get rate limit entry: %w", err)
	}

	skip := (success && cfg.SkipSuccessfulRequests) || (!success && cfg.SkipFailedRequests)
	if skip && success {
		l.metrics.observeUpdate(cfg.Class, success)
		return nil
	}

	if !skip {
		entry.Count++
	}
	// failure bookkeeping is independent of whether the request was counted
	if !success {
		entry.FailedAttempts++
		entry.LastFailedAt = &now
	}

	if err := l.store.SetEntry(ctx, key, entry, entry.ResetAt.Sub(now)); err != nil {
		return fmt.Errorf("failed to update rate limit entry: %w", err)
	}

	l.metrics.observeUpdate(cfg.Class, success)
	return nil
}

// CalculateProgressiveDelay returns the enforced wait after the given number of
// consecutive failures: 1s, 2s, 4s, 8s, 16s, then a flat 30s.
func CalculateProgressiveDelay(attempts int) time.Duration {
	switch {
	case attempts <= 0:
		return 0
	case attempts <= maxProgressiveSteps:
		return time.Duration(1<<(attempts-1)) * time.Second
	default:
		return maxProgressiveDelay
	}
}

// CheckDelay reports whether identity is still cooling down after a failed login.
// An elapsed cooldown is not deleted here.
func (l *Limiter) CheckDelay(ctx context.Context, identity string) (DelayResult, error) {
	now := l.clock.Now()
	l.maybeSweep(ctx, now)

	fl, err := l.store.GetFailedLogin(ctx, identity)
	if errors.Is(err, ErrNotFound) {
		return DelayResult{}, nil
	}
	if err != nil {
		return DelayResult{}, fmt.Errorf("failed to get failed login record: %w", err)
	}

	if now.Before(fl.NextAllowedAt) {
		l.metrics.observeDelayRejection()
		return DelayResult{
			Delayed:       true,
			Delay:         fl.NextAllowedAt.Sub(now),
			NextAllowedAt: fl.NextAllowedAt,
		}, nil
	}

	return DelayResult{NextAllowedAt: fl.NextAllowedAt}, nil
}

// RecordFailedLogin extends the failure streak of identity and pushes out its
// next allowed attempt. A streak idle for over an hour starts again from zero.
func (l *Limiter) RecordFailedLogin(ctx context.Context, identity string) error {
	now := l.clock.Now()

	fl, err := l.store.GetFailedLogin(ctx, identity)
	if errors.Is(err, ErrNotFound) {
		fl = &FailedLogin{LastAttempt: now}
	} else if err != nil {
		return fmt.Errorf("failed to get failed login record: %w", err)
	}

	if now.Sub(fl.LastAttempt) > FailureStreakTTL {
		fl.Attempts = 0
	}

	fl.Attempts++
	fl.LastAttempt = now
	fl.NextAllowedAt = now.Add(CalculateProgressiveDelay(fl.Attempts))

	if err := l.store.SetFailedLogin(ctx, identity, fl, FailedLoginIdleTTL); err != nil {
		return fmt.Errorf("failed to record failed login: %w", err)
	}

	l.metrics.observeFailedLogin()
	l.logger.Info("failed login recorded",
		slog.String("client", identity),
		slog.Int("attempts", fl.Attempts),
		slog.Time("next_allowed_at", fl.NextAllowedAt))

	return nil
}

// ClearFailedLogins forgives the failure streak of identity
func (l *Limiter) ClearFailedLogins(ctx context.Context, identity string) error {
	if err := l.store.DeleteFailedLogin(ctx, identity); err != nil {
		return fmt.Errorf("failed to clear failed logins: %w", err)
	}
	return nil
}

// Sweep removes expired entries and idle failed-login records
func (l *Limiter) Sweep(ctx context.Context) (SweepResult, error) {
	result, err := l.store.Sweep(ctx, l.clock.Now(), FailedLoginIdleTTL)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to sweep rate limit store: %w", err)
	}
	l.metrics.observeSweep(result)
	return result, nil
}

func (l *Limiter) maybeSweep(ctx context.Context, now time.Time) {
	if !l.lazySweep {
		return
	}
	result, err := l.store.Sweep(ctx, now, FailedLoginIdleTTL)
	if err != nil {
		l.logger.Error("rate limit sweep failed", slog.Any("error", err))
		return
	}
	l.metrics.observeSweep(result)
}
