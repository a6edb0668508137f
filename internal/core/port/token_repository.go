package port

import (
	"context"

	"github.com/nycmed/hospital-records/internal/core/domain"
)

// TokenRepository persists password reset tokens.
type TokenRepository interface {
	// CreatePasswordReset stores a new token and revokes any outstanding
	// usable tokens for the same user (supersession).
	CreatePasswordReset(ctx context.Context, token domain.PasswordResetToken) error
	GetPasswordResetByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error)
	// ConsumePasswordReset marks the token used; the used flag is one-way.
	ConsumePasswordReset(ctx context.Context, id string) error
}
