package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/repository"
)

func TestUserRepository_GetByIdentifier(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	registeredAt := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "username", "email", "phone", "password_hash", "password_algo", "role", "is_active",
		"failed_attempts", "lock_state", "locked_at", "force_password_reset", "registered_at", "last_login", "last_password_change",
	}).AddRow(
		"user-1", "drsmith", "drsmith@hospital.test", nil, "hash", "argon2id", domain.RoleDoctor, true,
		0, domain.LockStateUnlocked, nil, false, registeredAt, nil, nil,
	)

	mock.ExpectQuery(`SELECT .*FROM hosp\.users`).WithArgs("drsmith", "drsmith").WillReturnRows(rows)

	user, err := repo.GetByIdentifier(context.Background(), "drsmith")
	if err != nil {
		t.Fatalf("GetByIdentifier returned error: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("expected user id user-1, got %s", user.ID)
	}
	if user.Role != domain.RoleDoctor {
		t.Fatalf("expected doctor role, got %s", user.Role)
	}
	if user.Locked() {
		t.Fatal("expected user to be unlocked")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByIdentifierNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM hosp\.users`).
		WithArgs("ghost", "ghost").
		WillReturnRows(pgxmock.NewRows(userColumns))

	if _, err := repo.GetByIdentifier(context.Background(), "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_IncrementFailedAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	mock.ExpectQuery(`UPDATE hosp\.users SET failed_attempts = failed_attempts \+ 1`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"failed_attempts"}).AddRow(3))

	attempts, err := repo.IncrementFailedAttempts(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IncrementFailedAttempts returned error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_Unlock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	mock.ExpectExec(`UPDATE hosp\.users`).
		WithArgs(domain.LockStateUnlocked, nil, 0, "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Unlock(context.Background(), "user-1"); err != nil {
		t.Fatalf("Unlock returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_UpdatePasswordTransactional(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	changedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE hosp\.users`).
		WithArgs("new-hash", "argon2id", false, changedAt, "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO hosp\.user_password_history`).
		WithArgs("user-1", "new-hash", changedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM hosp\.user_password_history`).
		WithArgs("user-1", domain.PasswordHistoryLimit).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	if err := repo.UpdatePassword(context.Background(), "user-1", "new-hash", "argon2id", changedAt); err != nil {
		t.Fatalf("UpdatePassword returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_UpdatePasswordRollsBackOnHistoryFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	changedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE hosp\.users`).
		WithArgs("new-hash", "argon2id", false, changedAt, "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO hosp\.user_password_history`).
		WithArgs("user-1", "new-hash", changedAt).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := repo.UpdatePassword(context.Background(), "user-1", "new-hash", "argon2id", changedAt); err == nil {
		t.Fatal("expected error when history insert fails")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
