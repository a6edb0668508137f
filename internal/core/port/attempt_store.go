package port

import (
	"context"
	"time"
)

// AttemptStore counts login failures for identifiers that do not resolve to
// a user row. Counters are capped and expire with the lockout window; no
// persistent principal record is ever created from a failed login.
type AttemptStore interface {
	// Increment bumps the counter for the raw identifier and returns the new
	// count. The counter expires after ttl.
	Increment(ctx context.Context, identifier string, ttl time.Duration) (int, error)
	// Reset clears the counter for the identifier.
	Reset(ctx context.Context, identifier string) error
}
