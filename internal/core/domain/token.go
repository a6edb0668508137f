package domain

import "time"

// ResetTokenTTL is the fixed validity window for password reset tokens.
const ResetTokenTTL = 24 * time.Hour

// PasswordResetToken represents a single-use password reset token. Only the
// SHA-256 hash of the raw token is persisted.
//
// Invariant: a token is usable at most once and only before expiry; issuing
// a newer token for the same user supersedes (revokes) older outstanding ones.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
	RevokedAt *time.Time
	IP        *string
	UserAgent *string
}

// Usable reports whether the token can still redeem a reset at the given time.
func (t *PasswordResetToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Expired reports whether the validity window has elapsed.
func (t *PasswordResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
