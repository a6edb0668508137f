package domain

import "time"

// LockState enumerates the lockout states of an account.
type LockState string

const (
	LockStateUnlocked LockState = "unlocked"
	LockStateLocked   LockState = "locked"
)

// User mirrors the persisted representation in the hosp.users table.
//
// Invariants: LockState == LockStateLocked exactly when LockedAt != nil;
// FailedAttempts resets to zero whenever the account unlocks or a login
// succeeds.
type User struct {
	ID                 string
	Username           string
	Email              string
	Phone              *string
	PasswordHash       string
	PasswordAlgo       string
	Role               RoleName
	IsActive           bool
	FailedAttempts     int
	LockState          LockState
	LockedAt           *time.Time
	ForcePasswordReset bool
	RegisteredAt       time.Time
	LastLogin          *time.Time
	LastPasswordChange *time.Time
}

// Locked reports whether the account is currently in the locked state.
func (u *User) Locked() bool {
	return u.LockState == LockStateLocked
}

// PasswordHistoryEntry tracks a historical password hash for reuse prevention.
type PasswordHistoryEntry struct {
	ID           string
	UserID       string
	PasswordHash string
	SetAt        time.Time
}

// PasswordHistoryLimit bounds how many prior hashes are retained per user.
const PasswordHistoryLimit = 5
