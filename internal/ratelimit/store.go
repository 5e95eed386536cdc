package ratelimit

import (
	"context"
	"time"
)

// Store persists rate limit entries and failed-login streaks.
// ttl is a hint for stores with native expiry; the memory store relies on Sweep instead.
type Store interface {
	GetEntry(ctx context.Context, key string) (*Entry, error)
	SetEntry(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	DeleteEntry(ctx context.Context, key string) error

	GetFailedLogin(ctx context.Context, identity string) (*FailedLogin, error)
	SetFailedLogin(ctx context.Context, identity string, fl *FailedLogin, ttl time.Duration) error
	DeleteFailedLogin(ctx context.Context, identity string) error

	// Sweep removes entries past their reset time and failed-login streaks idle
	// for longer than idleTTL.
	Sweep(ctx context.Context, now time.Time, idleTTL time.Duration) (SweepResult, error)
}
