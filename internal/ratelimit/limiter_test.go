package ratelimit_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/authguard/internal/clock"
	"github.com/BradenHooton/authguard/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestLimiter() (*ratelimit.Limiter, *ratelimit.MemoryStore, *clock.Fake) {
	store := ratelimit.NewMemoryStore()
	clk := clock.NewFake(epoch)
	return ratelimit.NewLimiter(store, clk, slog.Default(), nil), store, clk
}

func TestCheck_FreshIdentityIsNotLimited(t *testing.T) {
	limiter, _, _ := newTestLimiter()
	cfg := ratelimit.LoginLimit()

	result, err := limiter.Check(context.Background(), "10.0.0.1", cfg)

	require.NoError(t, err)
	assert.False(t, result.Limited)
	assert.Equal(t, 5, result.Remaining)
	assert.Equal(t, 5, result.Limit)
	assert.Equal(t, epoch.Add(15*time.Minute), result.ResetAt)
	assert.Equal(t, 15*time.Minute, result.RetryAfter)
}

func TestCheck_DoesNotIncrement(t *testing.T) {
	limiter, _, _ := newTestLimiter()
	cfg := ratelimit.LoginLimit()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		result, err := limiter.Check(ctx, "10.0.0.1", cfg)
		require.NoError(t, err)
		assert.Equal(t, 5, result.Remaining)
	}
}

func TestCheck_QuotaMonotonicity(t *testing.T) {
	limiter, _, _ := newTestLimiter()
	cfg := ratelimit.PasswordResetLimit()
	ctx := context.Background()

	for count := 0; count < cfg.MaxAttempts; count++ {
		result, err := limiter.Check(ctx, "10.0.0.1", cfg)
		require.NoError(t, err)
		assert.False(t, result.Limited, "count %d", count)
		assert.Equal(t, cfg.MaxAttempts-count, result.Remaining)

		require.NoError(t, limiter.Update(ctx, "10.0.0.1", cfg, false))
	}

	result, err := limiter.Check(ctx, "10.0.0.1", cfg)
	require.NoError(t, err)
	assert.True(t, result.Limited)
	assert.Equal(t, 0, result.Remaining)
}

func TestCheck_WindowReset(t *testing.T) {
	limiter, _, clk := newTestLimiter()
	cfg := ratelimit.LoginLimit()
	ctx := context.Background()

	for i := 0; i < cfg.MaxAttempts; i++ {
		_, err := limiter.Check(ctx, "10.0.0.1", cfg)
		require.NoError(t, err)
		require.NoError(t, limiter.Update(ctx, "10.0.0.1", cfg, false))
	}
	result, err := limiter.Check(ctx, "10.0.0.1", cfg)
	require.NoError(t, err)
	require.True(t, result.Limited)

	// exactly at resetAt the window still holds
	clk.Advance(cfg.Window)
	result, err = limiter.Check(ctx, "10.0.0.1", cfg)
	require.NoError(t, err)
	assert.True(t, result.Limited)

	clk.Advance(time.Millisecond)
	result, err = limiter.Check(ctx, "10.0.0.1", cfg)
	require.NoError(t, err)
	assert.False(t, result.Limited)
	assert.Equal(t, cfg.MaxAttempts, result.Remaining)
	assert.Equal(t, clk.Now().Add(cfg.Window), result.ResetAt)
}

func TestCheck_ClassesAndIdentitiesAreIndependent(t *testing.T) {
	limiter, _, _ := newTestLimiter()
	ctx := context.Background()
	reset := ratelimit.PasswordResetLimit()

	for i := 0; i < reset.MaxAttempts; i++ {
		_, err := limiter.Check(ctx, "10.0.0.1", reset)
		require.NoError(t, err)
		require.NoError(t, limiter.Update(ctx, "10.0.0.1", reset, false))
	}

	limited, err := limiter.Check(ctx, "10.0.0.1", reset)
	require.NoError(t, err)
	assert.True(t, limited.Limited)

	otherClass, err := limiter.Check(ctx, "10.0.0.1", ratelimit.LoginLimit())
	require.NoError(t, err)
	assert.False(t, otherClass.Limited)

	otherClient, err := limiter.Check(ctx, "10.0.0.2", reset)
	require.NoError(t, err)
	assert.False(t, otherClient.Limited)
}

func TestUpdate_SkipSuccessfulRequests(t *testing.T) {
	limiter, store, _ := newTestLimiter()
	cfg := ratelimit.RegistrationLimit()
	ctx := context.Background()

	_, err := limiter.Check(ctx, "10.0.0.1", cfg)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, limiter.Update(ctx, "10.0.0.1", cfg, true))
	}

	entry, err := store.GetEntry(ctx, "registration:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Count)

	require.NoError(t, limiter.Update(ctx, "10.0.0.1", cfg, false))
	require.NoError(t, limiter.Update(ctx, "10.0.0.1", cfg, false))

	entry, err = store.GetEntry(ctx, "registration:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Count)
	assert.Equal(t, 2, entry.FailedAttempts)
	require.NotNil(t, entry.LastFailedAt)
	assert.Equal(t, epoch, *entry.LastFailedAt)
}

func TestUpdate_SkipFailedRequestsStillTracksFailures(t *testing.T) {
	limiter, store, _ := newTestLimiter()
	cfg := ratelimit.Config{
		Class:              "custom",
		Window:             time.Minute,
		MaxAttempts:        2,
		SkipFailedRequests: true,
	}
	ctx := context.Background()

	_, err := limiter.Check(ctx, "10.0.0.1", cfg)
	require.NoError(t, err)

	require.NoError(t, limiter.Update(ctx, "10.0.0.1", cfg, false))
	require.NoError(t, limiter.Update(ctx, "10.0.0.1", cfg, false))
	require.NoError(t, limiter.Update(ctx, "10.0.0.1", cfg, true))

	entry, err := store.GetEntry(ctx, "custom:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Count)
	assert.Equal(t, 2, entry.FailedAttempts)
}

func TestUpdate_NoEntryIsNoOp(t *testing.T) {
	limiter, store, _ := newTestLimiter()
	ctx := context.Background()

	err := limiter.Update(ctx, "10.0.0.1", ratelimit.LoginLimit(), false)

	require.NoError(t, err)
	entries, _ := store.Len()
	assert.Equal(t, 0, entries)
}

func TestCalculateProgressiveDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{-1, 0},
		{0, 0},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{50, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ratelimit.CalculateProgressiveDelay(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestCheckDelay_NoRecord(t *testing.T) {
	limiter, _, _ := newTestLimiter()

	result, err := limiter.CheckDelay(context.Background(), "10.0.0.1")

	require.NoError(t, err)
	assert.False(t, result.Delayed)
	assert.Zero(t, result.Delay)
}

func TestCheckDelay_DecaysWithoutClear(t *testing.T) {
	limiter, store, clk := newTestLimiter()
	ctx := context.Background()

	require.NoError(t, limiter.RecordFailedLogin(ctx, "10.0.0.1"))

	result, err := limiter.CheckDelay(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, result.Delayed)
	assert.Equal(t, time.Second, result.Delay)
	assert.Equal(t, epoch.Add(time.Second), result.NextAllowedAt)

	clk.Advance(time.Second)
	result, err = limiter.CheckDelay(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, result.Delayed)

	// the record survives the elapsed cooldown
	_, failed := store.Len()
	assert.Equal(t, 1, failed)
}

func TestRecordFailedLogin_Escalates(t *testing.T) {
	limiter, store, clk := newTestLimiter()
	ctx := context.Background()

	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, seconds := range want {
		require.NoError(t, limiter.RecordFailedLogin(ctx, "10.0.0.1"))

		fl, err := store.GetFailedLogin(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, i+1, fl.Attempts)
		assert.Equal(t, clk.Now().Add(seconds*time.Second), fl.NextAllowedAt)

		clk.Advance(time.Minute)
	}
}

func TestRecordFailedLogin_StaleStreakResets(t *testing.T) {
	limiter, store, clk := newTestLimiter()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, limiter.RecordFailedLogin(ctx, "10.0.0.1"))
	}

	clk.Advance(time.Hour + time.Millisecond)
	require.NoError(t, limiter.RecordFailedLogin(ctx, "10.0.0.1"))

	fl, err := store.GetFailedLogin(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1, fl.Attempts)
	assert.Equal(t, clk.Now(), fl.LastAttempt)
	assert.Equal(t, clk.Now().Add(time.Second), fl.NextAllowedAt)
}

func TestClearFailedLogins_ForgivesImmediately(t *testing.T) {
	limiter, _, _ := newTestLimiter()
	ctx := context.Background()

	require.NoError(t, limiter.RecordFailedLogin(ctx, "10.0.0.1"))
	require.NoError(t, limiter.RecordFailedLogin(ctx, "10.0.0.1"))
	require.NoError(t, limiter.ClearFailedLogins(ctx, "10.0.0.1"))

	result, err := limiter.CheckDelay(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, result.Delayed)
}

func TestSweep_RemovesExpiredRecords(t *testing.T) {
	limiter, store, clk := newTestLimiter()
	limiter.SetLazySweep(false)
	ctx := context.Background()

	_, err := limiter.Check(ctx, "10.0.0.1", ratelimit.LoginLimit())
	require.NoError(t, err)
	_, err = limiter.Check(ctx, "10.0.0.1", ratelimit.RegistrationLimit())
	require.NoError(t, err)
	require.NoError(t, limiter.RecordFailedLogin(ctx, "10.0.0.1"))

	clk.Advance(16 * time.Minute)
	result, err := limiter.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Entries)
	assert.Equal(t, 0, result.FailedLogins)

	clk.Advance(24 * time.Hour)
	result, err = limiter.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Entries)
	assert.Equal(t, 1, result.FailedLogins)

	entries, failed := store.Len()
	assert.Zero(t, entries)
	assert.Zero(t, failed)
}

func TestCheck_LazySweep(t *testing.T) {
	limiter, store, clk := newTestLimiter()
	ctx := context.Background()

	_, err := limiter.Check(ctx, "10.0.0.1", ratelimit.LoginLimit())
	require.NoError(t, err)

	clk.Advance(time.Hour)
	_, err = limiter.CheckDelay(ctx, "10.0.0.2")
	require.NoError(t, err)

	entries, _ := store.Len()
	assert.Zero(t, entries)
}

func TestLimiter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := ratelimit.NewMetrics(reg)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), clock.NewFake(epoch), slog.Default(), metrics)
	ctx := context.Background()
	cfg := ratelimit.Config{Class: "custom", Window: time.Minute, MaxAttempts: 1}

	_, err := limiter.Check(ctx, "10.0.0.1", cfg)
	require.NoError(t, err)
	require.NoError(t, limiter.Update(ctx, "10.0.0.1", cfg, false))
	_, err = limiter.Check(ctx, "10.0.0.1", cfg)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Checks.WithLabelValues("custom", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Checks.WithLabelValues("custom", "limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Updates.WithLabelValues("custom", "failure")))
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 0, ratelimit.RetryAfterSeconds(0))
	assert.Equal(t, 0, ratelimit.RetryAfterSeconds(-time.Second))
	assert.Equal(t, 1, ratelimit.RetryAfterSeconds(time.Millisecond))
	assert.Equal(t, 1, ratelimit.RetryAfterSeconds(time.Second))
	assert.Equal(t, 2, ratelimit.RetryAfterSeconds(1001*time.Millisecond))
	assert.Equal(t, 900, ratelimit.RetryAfterSeconds(15*time.Minute))
}
