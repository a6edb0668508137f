package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"
)

const defaultAttemptPrefix = "hosp:login_attempts"

// AttemptStore counts failed logins for identifiers with no backing user
// row. Counters live in Redis with a TTL equal to the lockout window, so an
// attacker probing unknown usernames sees the same lockout behavior as for
// real accounts without the system ever materializing a principal.
type AttemptStore struct {
	client *red.Client
	prefix string
}

// NewAttemptStore wires Redis storage for login attempt counters.
func NewAttemptStore(client *red.Client, prefix string) *AttemptStore {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		trimmed = defaultAttemptPrefix
	}
	return &AttemptStore{client: client, prefix: trimmed}
}

func (s *AttemptStore) key(identifier string) string {
	return s.prefix + ":" + identifier
}

// Increment bumps the counter for the identifier and returns the new count.
// The expiry is refreshed on every failure so the window slides with the
// most recent attempt.
func (s *AttemptStore) Increment(ctx context.Context, identifier string, ttl time.Duration) (int, error) {
	if s == nil || s.client == nil {
		return 0, fmt.Errorf("attempt store not configured")
	}

	key := s.key(identifier)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis increment attempts: %w", err)
	}

	return int(incr.Val()), nil
}

// Reset clears the counter for the identifier.
func (s *AttemptStore) Reset(ctx context.Context, identifier string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("attempt store not configured")
	}

	if err := s.client.Del(ctx, s.key(identifier)).Err(); err != nil {
		return fmt.Errorf("redis reset attempts: %w", err)
	}

	return nil
}
