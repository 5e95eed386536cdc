package ratelimit

import (
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when no entry exists for a key
var ErrNotFound = errors.New("rate limit entry not found")

// Entry tracks counted requests for one (class, identity) pair within a window
type Entry struct {
	Count          int
	ResetAt        time.Time
	FailedAttempts int
	LastFailedAt   *time.Time
}

// FailedLogin tracks the consecutive failed logins of one identity, independent
// of endpoint class
type FailedLogin struct {
	Attempts      int
	LastAttempt   time.Time
	NextAllowedAt time.Time
}

// SweepResult reports how many expired records a sweep removed
type SweepResult struct {
	Entries      int
	FailedLogins int
}

// Result is the outcome of a quota check
type Result struct {
	Limited    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// DelayResult is the outcome of a progressive delay check
type DelayResult struct {
	Delayed       bool
	Delay         time.Duration
	NextAllowedAt time.Time
}

// RetryAfterSeconds rounds a wait up to whole seconds
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	return int((ms + 999) / 1000)
}
