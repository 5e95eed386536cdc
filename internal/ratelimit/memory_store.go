package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a single-process Store. Each map has its own lock; records are
// copied in and out so callers never share state with the store.
type MemoryStore struct {
	entriesMu sync.Mutex
	entries   map[string]Entry

	failedMu sync.Mutex
	failed   map[string]FailedLogin
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		failed:  make(map[string]FailedLogin),
	}
}

func (s *MemoryStore) GetEntry(ctx context.Context, key string) (*Entry, error) {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) SetEntry(ctx context.Context, key string, entry *Entry, _ time.Duration) error {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()

	s.entries[key] = *entry
	return nil
}

func (s *MemoryStore) DeleteEntry(ctx context.Context, key string) error {
	s.entriesMu.Lock()
	defer s.entriesMu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) GetFailedLogin(ctx context.Context, identity string) (*FailedLogin, error) {
	s.failedMu.Lock()
	defer s.failedMu.Unlock()

	fl, ok := s.failed[identity]
	if !ok {
		return nil, ErrNotFound
	}
	return &fl, nil
}

func (s *MemoryStore) SetFailedLogin(ctx context.Context, identity string, fl *FailedLogin, _ time.Duration) error {
	s.failedMu.Lock()
	defer s.failedMu.Unlock()

	s.failed[identity] = *fl
	return nil
}

func (s *MemoryStore) DeleteFailedLogin(ctx context.Context, identity string) error {
	s.failedMu.Lock()
	defer s.failedMu.Unlock()

	delete(s.failed, identity)
	return nil
}

func (s *MemoryStore) Sweep(ctx context.Context, now time.Time, idleTTL time.Duration) (SweepResult, error) {
	var result SweepResult

	s.entriesMu.Lock()
	for key, e := range s.entries {
		if now.After(e.ResetAt) {
			delete(s.entries, key)
			result.Entries++
		}
	}
	s.entriesMu.Unlock()

	s.failedMu.Lock()
	for identity, fl := range s.failed {
		if now.Sub(fl.LastAttempt) > idleTTL {
			delete(s.failed, identity)
			result.FailedLogins++
		}
	}
	s.failedMu.Unlock()

	return result, nil
}

// Len reports the number of live rate limit entries and failed-login streaks
func (s *MemoryStore) Len() (entries, failedLogins int) {
	s.entriesMu.Lock()
	entries = len(s.entries)
	s.entriesMu.Unlock()

	s.failedMu.Lock()
	failedLogins = len(s.failed)
	s.failedMu.Unlock()

	return entries, failedLogins
}
