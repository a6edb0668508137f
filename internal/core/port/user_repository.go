package port

import (
	"context"
	"time"

	"github.com/nycmed/hospital-records/internal/core/domain"
)

// UserRepository exposes persistence behavior for hospital users.
//
// IncrementFailedAttempts and the lock transitions are single-statement
// read-modify-writes on the user row; concurrent failures against the same
// user must not under-count.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)

	// IncrementFailedAttempts atomically bumps the failure counter and
	// returns the new count.
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	// Lock transitions the user to the locked state at the given instant.
	Lock(ctx context.Context, id string, at time.Time) error
	// Unlock clears the lock state and resets the failure counter.
	Unlock(ctx context.Context, id string) error
	// RecordLogin stamps a successful login and resets the failure counter.
	RecordLogin(ctx context.Context, id string, at time.Time) error

	// UpdatePassword persists the new hash, the history push, the history
	// trim, the cleared force-change flag, and the change timestamp in a
	// single transaction.
	UpdatePassword(ctx context.Context, id string, passwordHash string, passwordAlgo string, changedAt time.Time) error
	SetForcePasswordReset(ctx context.Context, id string, force bool) error
	ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error)
}
