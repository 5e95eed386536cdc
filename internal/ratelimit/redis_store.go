package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps failures talking to a shared store
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// RedisStore is a Store shared between processes. Records live in hashes whose
// TTL replaces the sweep performed by MemoryStore.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

type redisEntry struct {
	Count          int   `redis:"count"`
	ResetAt        int64 `redis:"reset_at"`
	FailedAttempts int   `redis:"failed_attempts"`
	LastFailedAt   int64 `redis:"last_failed_at"`
}

type redisFailedLogin struct {
	Attempts      int   `redis:"attempts"`
	LastAttempt   int64 `redis:"last_attempt"`
	NextAllowedAt int64 `redis:"next_allowed_at"`
}

// NewRedisStore creates a RedisStore; prefix namespaces every key
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "authguard"
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStore) entryKey(key string) string {
	return s.prefix + ":rl:" + key
}

func (s *RedisStore) failedKey(identity string) string {
	return s.prefix + ":fl:" + identity
}

func (s *RedisStore) GetEntry(ctx context.Context, key string) (*Entry, error) {
	cmd := s.redis.HGetAll(ctx, s.entryKey(key))
	fields, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	var raw redisEntry
	if err := cmd.Scan(&raw); err != nil {
		return nil, fmt.Errorf("decode rate limit entry: %w", err)
	}

	entry := &Entry{
		Count:          raw.Count,
		ResetAt:        time.UnixMilli(raw.ResetAt),
		FailedAttempts: raw.FailedAttempts,
	}
	if raw.LastFailedAt > 0 {
		t := time.UnixMilli(raw.LastFailedAt)
		entry.LastFailedAt = &t
	}
	return entry, nil
}

func (s *RedisStore) SetEntry(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	var lastFailedAt int64
	if entry.LastFailedAt != nil {
		lastFailedAt = entry.LastFailedAt.UnixMilli()
	}

	k := s.entryKey(key)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k,
			"count", entry.Count,
			"reset_at", entry.ResetAt.UnixMilli(),
			"failed_attempts", entry.FailedAttempts,
			"last_failed_at", lastFailedAt,
		)
		pipe.PExpire(ctx, k, minTTL(ttl))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) DeleteEntry(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.entryKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) GetFailedLogin(ctx context.Context, identity string) (*FailedLogin, error) {
	cmd := s.redis.HGetAll(ctx, s.failedKey(identity))
	fields, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	var raw redisFailedLogin
	if err := cmd.Scan(&raw); err != nil {
		return nil, fmt.Errorf("decode failed login: %w", err)
	}

	return &FailedLogin{
		Attempts:      raw.Attempts,
		LastAttempt:   time.UnixMilli(raw.LastAttempt),
		NextAllowedAt: time.UnixMilli(raw.NextAllowedAt),
	}, nil
}

func (s *RedisStore) SetFailedLogin(ctx context.Context, identity string, fl *FailedLogin, ttl time.Duration) error {
	k := s.failedKey(identity)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k,
			"attempts", fl.Attempts,
			"last_attempt", fl.LastAttempt.UnixMilli(),
			"next_allowed_at", fl.NextAllowedAt.UnixMilli(),
		)
		pipe.PExpire(ctx, k, minTTL(ttl))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) DeleteFailedLogin(ctx context.Context, identity string) error {
	if err := s.redis.Del(ctx, s.failedKey(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Sweep is a no-op: Redis expires keys on its own.
func (s *RedisStore) Sweep(ctx context.Context, now time.Time, idleTTL time.Duration) (SweepResult, error) {
	return SweepResult{}, nil
}

// minTTL keeps a key alive briefly even when it is already past due, since a
// zero expiry would make it permanent.
func minTTL(ttl time.Duration) time.Duration {
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
