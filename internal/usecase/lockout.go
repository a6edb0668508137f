package usecase

import (
	"context"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/core/port"
)

const (
	// DefaultMaxLoginAttempts locks an account after this many consecutive
	// failures.
	DefaultMaxLoginAttempts = 3
	// DefaultLockoutDuration is how long a lock holds before it expires on
	// its own.
	DefaultLockoutDuration = 15 * time.Minute
)

// LockoutService applies the account lockout policy: consecutive failures
// lock an account, and locks expire transparently on the next interaction
// after the window elapses. No unlock job exists; expiry is evaluated lazily.
type LockoutService struct {
	users    port.UserRepository
	attempts port.AttemptStore
	events   port.EventPublisher
	logger   *zap.Logger

	maxAttempts int
	duration    time.Duration
	now         func() time.Time
}

// NewLockoutService constructs a LockoutService.
func NewLockoutService(users port.UserRepository, attempts port.AttemptStore, events port.EventPublisher, maxAttempts int, duration time.Duration, logger *zap.Logger) *LockoutService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxLoginAttempts
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockoutService{
		users:       users,
		attempts:    attempts,
		events:      events,
		logger:      logger,
		maxAttempts: maxAttempts,
		duration:    duration,
		now:         time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *LockoutService) WithClock(now func() time.Time) *LockoutService {
	if now != nil {
		s.now = now
	}
	return s
}

// EnsureUnlocked reports whether the account is effectively locked right
// now. An expired lock is cleared in storage and on the in-memory user
// before returning, so callers downstream see a consistent unlocked state.
// The boundary is inclusive: a lock placed exactly one window ago has
// expired.
func (s *LockoutService) EnsureUnlocked(ctx context.Context, user *domain.User) (bool, error) {
	if !user.Locked() {
		return false, nil
	}

	if user.LockedAt == nil {
		// Locked with no timestamp is corrupt data; stay locked until an
		// admin unlocks.
		return true, nil
	}

	if s.now().Sub(*user.LockedAt) < s.duration {
		return true, nil
	}

	if err := s.users.Unlock(ctx, user.ID); err != nil {
		return true, fmt.Errorf("clear expired lock: %w", err)
	}

	user.LockState = domain.LockStateUnlocked
	user.LockedAt = nil
	user.FailedAttempts = 0

	s.logger.Info("expired lock cleared",
		zap.String("user_id", user.ID),
	)

	return false, nil
}

// RecordFailure counts one failed attempt against a known account and locks
// it when the threshold is reached. It returns whether this failure tripped
// the lock.
func (s *LockoutService) RecordFailure(ctx context.Context, user *domain.User, ip *string) (bool, error) {
	attempts, err := s.users.IncrementFailedAttempts(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("increment failed attempts: %w", err)
	}
	user.FailedAttempts = attempts

	if attempts < s.maxAttempts {
		return false, nil
	}

	lockedAt := s.now().UTC()
	if err := s.users.Lock(ctx, user.ID, lockedAt); err != nil {
		return false, fmt.Errorf("lock account: %w", err)
	}

	user.LockState = domain.LockStateLocked
	user.LockedAt = &lockedAt

	s.logger.Warn("account locked after repeated failures",
		zap.String("user_id", user.ID),
		zap.Int("failed_attempts", attempts),
	)

	if s.events != nil {
		event := domain.AccountLockedEvent{
			EventID:        uuid.NewString(),
			UserID:         user.ID,
			Username:       user.Username,
			LockedAt:       lockedAt,
			FailedAttempts: attempts,
			IPAddress:      ip,
		}
		if err := s.events.PublishAccountLocked(ctx, event); err != nil {
			s.logger.Warn("publish account locked event failed", zap.Error(err))
		}
	}

	return true, nil
}

// RecordUnknownFailure counts a failure for an identifier with no backing
// account. The counter expires with the lockout window and never creates a
// user row; it only equalizes observable behavior between real and unknown
// identifiers.
func (s *LockoutService) RecordUnknownFailure(ctx context.Context, identifier string) (int, error) {
	if s.attempts == nil {
		return 0, nil
	}

	count, err := s.attempts.Increment(ctx, identifier, s.duration)
	if err != nil {
		return 0, fmt.Errorf("count unknown identifier failure: %w", err)
	}
	return count, nil
}

// RecordSuccess resets failure state after a successful authentication.
func (s *LockoutService) RecordSuccess(ctx context.Context, user *domain.User) error {
	at := s.now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, at); err != nil {
		return fmt.Errorf("record login: %w", err)
	}

	user.FailedAttempts = 0
	user.LastLogin = &at

	if s.attempts != nil {
		if err := s.attempts.Reset(ctx, user.Username); err != nil {
			s.logger.Debug("reset attempt counter failed", zap.Error(err))
		}
	}

	return nil
}

// MaxAttempts exposes the configured threshold.
func (s *LockoutService) MaxAttempts() int {
	return s.maxAttempts
}

// Duration exposes the configured lockout window.
func (s *LockoutService) Duration() time.Duration {
	return s.duration
}
