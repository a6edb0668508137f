package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/repository"
)

var resetTokenColumns = []string{
	"id",
	"user_id",
	"token_hash",
	"created_at",
	"expires_at",
	"used_at",
	"revoked_at",
	"ip_address",
	"user_agent",
}

// TokenRepository implements port.TokenRepository using PostgreSQL.
type TokenRepository struct {
	db      pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository wires a PostgreSQL-backed token repository.
func NewTokenRepository(db pgPool) *TokenRepository {
	return &TokenRepository{
		db:      db,
		exec:    db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreatePasswordReset stores a new token and revokes outstanding usable
// tokens for the same user in one transaction, so at most one token can
// redeem a reset at any time.
func (r *TokenRepository) CreatePasswordReset(ctx context.Context, token domain.PasswordResetToken) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create reset token tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmt, args, err := r.builder.Update("hosp.password_reset_tokens").
		Set("revoked_at", token.CreatedAt).
		Where(squirrel.Eq{"user_id": token.UserID, "used_at": nil, "revoked_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke outstanding tokens sql: %w", err)
	}

	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke outstanding tokens: %w", err)
	}

	stmt, args, err = r.builder.Insert("hosp.password_reset_tokens").
		Columns(resetTokenColumns...).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			token.CreatedAt,
			token.ExpiresAt,
			token.UsedAt,
			token.RevokedAt,
			token.IP,
			token.UserAgent,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert reset token sql: %w", err)
	}

	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create reset token tx: %w", err)
	}

	return nil
}

// GetPasswordResetByHash retrieves a token by its stored hash.
func (r *TokenRepository) GetPasswordResetByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error) {
	stmt, args, err := r.builder.
		Select(resetTokenColumns...).
		From("hosp.password_reset_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select reset token sql: %w", err)
	}

	var token domain.PasswordResetToken
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.RevokedAt,
		&token.IP,
		&token.UserAgent,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan reset token: %w", err)
	}

	return &token, nil
}

// ConsumePasswordReset marks the token used. The guard on used_at makes the
// transition one-way even under concurrent redemption.
func (r *TokenRepository) ConsumePasswordReset(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("hosp.password_reset_tokens").
		Set("used_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id, "used_at": nil, "revoked_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume reset token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}
