package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/repository"
)

type pgPool interface {
	pgExecutor
	txStarter
}

var userColumns = []string{
	"id",
	"username",
	"email",
	"phone",
	"password_hash",
	"password_algo",
	"role",
	"is_active",
	"failed_attempts",
	"lock_state",
	"locked_at",
	"force_password_reset",
	"registered_at",
	"last_login",
	"last_password_change",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	db      pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(db pgPool) *UserRepository {
	return &UserRepository{
		db:      db,
		exec:    db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	var phoneValue any
	if user.Phone != nil && *user.Phone != "" {
		phoneValue = *user.Phone
	}

	query := r.builder.Insert("hosp.users").
		Columns(userColumns...).
		Values(
			user.ID,
			user.Username,
			user.Email,
			phoneValue,
			user.PasswordHash,
			user.PasswordAlgo,
			user.Role,
			user.IsActive,
			user.FailedAttempts,
			user.LockState,
			user.LockedAt,
			user.ForcePasswordReset,
			user.RegisteredAt,
			user.LastLogin,
			user.LastPasswordChange,
		)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("hosp.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return user, nil
}

// GetByIdentifier retrieves a user by username or email.
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("hosp.users").
		Where(squirrel.Or{
			squirrel.Eq{"username": identifier},
			squirrel.Eq{"email": identifier},
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by identifier sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user by identifier: %w", err)
	}

	return user, nil
}

// IncrementFailedAttempts atomically bumps the failure counter and returns
// the new value. The single-statement form keeps concurrent failures from
// under-counting.
func (r *UserRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	stmt, args, err := r.builder.Update("hosp.users").
		Set("failed_attempts", squirrel.Expr("failed_attempts + 1")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING failed_attempts").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build increment failed attempts sql: %w", err)
	}

	var attempts int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&attempts); err != nil {
		if err == pgx.ErrNoRows {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}

	return attempts, nil
}

// Lock transitions the user to the locked state at the given instant.
func (r *UserRepository) Lock(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("hosp.users").
		Set("lock_state", domain.LockStateLocked).
		Set("locked_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build lock user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Unlock clears the lock state and resets the failure counter.
func (r *UserRepository) Unlock(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("hosp.users").
		Set("lock_state", domain.LockStateUnlocked).
		Set("locked_at", nil).
		Set("failed_attempts", 0).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build unlock user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("unlock user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RecordLogin stamps a successful login and resets the failure counter.
func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("hosp.users").
		Set("last_login", at).
		Set("failed_attempts", 0).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdatePassword persists the new credential atomically: the hash on the
// user row, the history push, the history trim, the cleared force-change
// flag, and the change timestamp all commit together or not at all.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, passwordAlgo string, changedAt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update password tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmt, args, err := r.builder.Update("hosp.users").
		Set("password_hash", passwordHash).
		Set("password_algo", passwordAlgo).
		Set("force_password_reset", false).
		Set("last_password_change", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := tx.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	stmt, args, err = r.builder.Insert("hosp.user_password_history").
		Columns("user_id", "password_hash", "set_at").
		Values(id, passwordHash, changedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert password history sql: %w", err)
	}

	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert password history: %w", err)
	}

	trimSQL := `DELETE FROM hosp.user_password_history
WHERE user_id = $1
  AND id NOT IN (
    SELECT id FROM hosp.user_password_history
    WHERE user_id = $1
    ORDER BY set_at DESC, id DESC
    LIMIT $2
  )`
	if _, err := tx.Exec(ctx, trimSQL, id, domain.PasswordHistoryLimit); err != nil {
		return fmt.Errorf("trim password history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update password tx: %w", err)
	}

	return nil
}

// SetForcePasswordReset toggles the must-change-password flag.
func (r *UserRepository) SetForcePasswordReset(ctx context.Context, id string, force bool) error {
	stmt, args, err := r.builder.Update("hosp.users").
		Set("force_password_reset", force).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set force password reset sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set force password reset: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListPasswordHistory returns retained hashes newest first.
func (r *UserRepository) ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	if limit <= 0 {
		limit = domain.PasswordHistoryLimit
	}

	stmt, args, err := r.builder.
		Select("id", "user_id", "password_hash", "set_at").
		From("hosp.user_password_history").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("set_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list password history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list password history: %w", err)
	}
	defer rows.Close()

	var entries []domain.PasswordHistoryEntry
	for rows.Next() {
		var entry domain.PasswordHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.PasswordHash, &entry.SetAt); err != nil {
			return nil, fmt.Errorf("scan password history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate password history: %w", err)
	}

	return entries, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user  domain.User
		phone sql.NullString
	)

	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&phone,
		&user.PasswordHash,
		&user.PasswordAlgo,
		&user.Role,
		&user.IsActive,
		&user.FailedAttempts,
		&user.LockState,
		&user.LockedAt,
		&user.ForcePasswordReset,
		&user.RegisteredAt,
		&user.LastLogin,
		&user.LastPasswordChange,
	); err != nil {
		return nil, err
	}

	if phone.Valid {
		val := phone.String
		user.Phone = &val
	}

	return &user, nil
}
