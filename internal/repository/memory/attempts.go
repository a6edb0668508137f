package memory

import (
	"context"
	"sync"
	"time"
)

type attemptEntry struct {
	count     int
	expiresAt time.Time
}

// AttemptStore is the in-process fallback counter used when Redis is not
// configured. Counters are per-instance and lost on restart, which is an
// accepted degradation for single-node deployments.
type AttemptStore struct {
	mu      sync.Mutex
	entries map[string]attemptEntry
	now     func() time.Time
}

// NewAttemptStore constructs an empty in-memory attempt store.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		entries: make(map[string]attemptEntry),
		now:     time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *AttemptStore) WithClock(now func() time.Time) *AttemptStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Increment bumps the counter for the identifier and returns the new count.
func (s *AttemptStore) Increment(_ context.Context, identifier string, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[identifier]
	if !ok || now.After(entry.expiresAt) {
		entry = attemptEntry{}
	}

	entry.count++
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	} else {
		entry.expiresAt = now.Add(24 * time.Hour)
	}
	s.entries[identifier] = entry

	return entry.count, nil
}

// Reset clears the counter for the identifier.
func (s *AttemptStore) Reset(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identifier)
	return nil
}
