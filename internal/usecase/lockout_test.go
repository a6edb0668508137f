package usecase

import (
	"context"
	"testing"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nycmed/hospital-records/internal/core/domain"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestThirdFailureLocksAccount(t *testing.T) {
	user := domain.User{
		ID:        uuid.NewString(),
		Username:  "drsmith",
		LockState: domain.LockStateUnlocked,
		IsActive:  true,
	}
	repo := newFakeUserRepo(user)
	events := &fakeEventPublisher{}
	svc := NewLockoutService(repo, newFakeAttemptStore(), events, 3, 15*time.Minute, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		current, err := repo.GetByID(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		tripped, err := svc.RecordFailure(ctx, current, nil)
		if err != nil {
			t.Fatalf("RecordFailure returned error: %v", err)
		}
		if tripped {
			t.Fatalf("failure %d should not trip the lock", i+1)
		}
	}

	current, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	tripped, err := svc.RecordFailure(ctx, current, nil)
	if err != nil {
		t.Fatalf("RecordFailure returned error: %v", err)
	}
	if !tripped {
		t.Fatal("third failure should lock the account")
	}

	stored := repo.get(user.ID)
	if !stored.Locked() {
		t.Fatal("expected account to be locked in storage")
	}
	if stored.LockedAt == nil {
		t.Fatal("expected locked_at to be stamped")
	}
	if len(events.locked) != 1 {
		t.Fatalf("expected one account locked event, got %d", len(events.locked))
	}
	if events.locked[0].FailedAttempts != 3 {
		t.Fatalf("expected event to carry 3 attempts, got %d", events.locked[0].FailedAttempts)
	}
}

func TestLockExpiresExactlyAtWindowBoundary(t *testing.T) {
	lockedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	user := domain.User{
		ID:        uuid.NewString(),
		Username:  "drsmith",
		LockState: domain.LockStateLocked,
		LockedAt:  &lockedAt,
		IsActive:  true,
	}
	repo := newFakeUserRepo(user)
	svc := NewLockoutService(repo, nil, nil, 3, 15*time.Minute, zap.NewNop())

	ctx := context.Background()

	// One second shy of the window: still locked.
	svc.WithClock(fixedClock(lockedAt.Add(15*time.Minute - time.Second)))
	current, _ := repo.GetByID(ctx, user.ID)
	locked, err := svc.EnsureUnlocked(ctx, current)
	if err != nil {
		t.Fatalf("EnsureUnlocked returned error: %v", err)
	}
	if !locked {
		t.Fatal("expected account to remain locked inside the window")
	}

	// Exactly the window: expired, cleared transparently.
	svc.WithClock(fixedClock(lockedAt.Add(15 * time.Minute)))
	current, _ = repo.GetByID(ctx, user.ID)
	locked, err = svc.EnsureUnlocked(ctx, current)
	if err != nil {
		t.Fatalf("EnsureUnlocked returned error: %v", err)
	}
	if locked {
		t.Fatal("expected lock to expire exactly at the boundary")
	}
	if current.Locked() || current.FailedAttempts != 0 {
		t.Fatal("expected in-memory user cleared")
	}

	stored := repo.get(user.ID)
	if stored.Locked() || stored.LockedAt != nil || stored.FailedAttempts != 0 {
		t.Fatal("expected stored lock state cleared")
	}
}

func TestRecordSuccessResetsCounter(t *testing.T) {
	user := domain.User{
		ID:             uuid.NewString(),
		Username:       "drsmith",
		FailedAttempts: 2,
		LockState:      domain.LockStateUnlocked,
		IsActive:       true,
	}
	repo := newFakeUserRepo(user)
	attempts := newFakeAttemptStore()
	svc := NewLockoutService(repo, attempts, nil, 3, 15*time.Minute, zap.NewNop())

	ctx := context.Background()
	current, _ := repo.GetByID(ctx, user.ID)
	if err := svc.RecordSuccess(ctx, current); err != nil {
		t.Fatalf("RecordSuccess returned error: %v", err)
	}

	stored := repo.get(user.ID)
	if stored.FailedAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", stored.FailedAttempts)
	}
	if stored.LastLogin == nil {
		t.Fatal("expected last login stamped")
	}
}

func TestRecordUnknownFailureNeverCreatesUser(t *testing.T) {
	repo := newFakeUserRepo()
	attempts := newFakeAttemptStore()
	svc := NewLockoutService(repo, attempts, nil, 3, 15*time.Minute, zap.NewNop())

	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		count, err := svc.RecordUnknownFailure(ctx, "ghost@nowhere.test")
		if err != nil {
			t.Fatalf("RecordUnknownFailure returned error: %v", err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
	}

	if _, err := repo.GetByIdentifier(ctx, "ghost@nowhere.test"); err == nil {
		t.Fatal("unknown identifier must not materialize a user")
	}
}
