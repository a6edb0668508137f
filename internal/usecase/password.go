package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/core/port"
	"github.com/nycmed/hospital-records/internal/infra/security"
)

var (
	// ErrCurrentPasswordMismatch indicates the supplied current password is
	// wrong.
	ErrCurrentPasswordMismatch = errors.New("current password does not match")
	// ErrPasswordReused indicates the candidate matches the current password
	// or one of the retained historical hashes.
	ErrPasswordReused = errors.New("password was used recently")
)

// PolicyViolationError aggregates every failed password policy rule so the
// caller can present the complete list in one round trip.
type PolicyViolationError struct {
	Violations []string
}

// Error implements error.
func (e *PolicyViolationError) Error() string {
	return "password policy violated: " + strings.Join(e.Violations, "; ")
}

// PasswordChangeInput carries an authenticated password change request.
type PasswordChangeInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	IP              string
}

// PasswordService performs credential changes. Checks run in a fixed order:
// current-secret proof, policy, reuse; persistence of the hash, the history
// push, and the cleared force-change flag is a single transaction in the
// repository.
type PasswordService struct {
	users     port.UserRepository
	validator *security.PasswordValidator
	events    port.EventPublisher
	audit     *AuditTrail
	notifier  port.Notifier
	log       *zap.Logger

	historyLimit int
	now          func() time.Time
}

// NewPasswordService constructs a PasswordService.
func NewPasswordService(users port.UserRepository, validator *security.PasswordValidator, events port.EventPublisher, audit *AuditTrail, notifier port.Notifier, historyLimit int, log *zap.Logger) *PasswordService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if historyLimit <= 0 {
		historyLimit = domain.PasswordHistoryLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PasswordService{
		users:        users,
		validator:    validator,
		events:       events,
		audit:        audit,
		notifier:     notifier,
		log:          log,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *PasswordService) WithClock(now func() time.Time) *PasswordService {
	if now != nil {
		s.now = now
	}
	return s
}

// Change replaces the password of an authenticated user.
func (s *PasswordService) Change(ctx context.Context, input PasswordChangeInput) error {
	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	ok, err := security.VerifyPassword(input.CurrentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify current password: %w", err)
	}
	if !ok {
		s.recordAudit(ctx, user.Username, "password change rejected: current password mismatch", false, input.IP)
		return ErrCurrentPasswordMismatch
	}

	if result := s.validator.Validate(input.NewPassword); !result.Valid {
		s.recordAudit(ctx, user.Username, "password change rejected: policy violation", false, input.IP)
		return &PolicyViolationError{Violations: result.Errors}
	}

	reused, err := s.isReused(ctx, user, input.NewPassword)
	if err != nil {
		return err
	}
	if reused {
		s.recordAudit(ctx, user.Username, "password change rejected: recent reuse", false, input.IP)
		return ErrPasswordReused
	}

	return s.commit(ctx, user, input.NewPassword, user.ID, false, input.IP)
}

// CompleteReset replaces the password without the current-secret proof. The
// caller is responsible for having validated a reset token first.
func (s *PasswordService) CompleteReset(ctx context.Context, userID, newPassword, ip string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	if result := s.validator.Validate(newPassword); !result.Valid {
		s.recordAudit(ctx, user.Username, "password reset rejected: policy violation", false, ip)
		return &PolicyViolationError{Violations: result.Errors}
	}

	reused, err := s.isReused(ctx, user, newPassword)
	if err != nil {
		return err
	}
	if reused {
		s.recordAudit(ctx, user.Username, "password reset rejected: recent reuse", false, ip)
		return ErrPasswordReused
	}

	return s.commit(ctx, user, newPassword, user.ID, true, ip)
}

// ForceChange flags the target account so its next login is redirected to
// the password change flow before a session is granted.
func (s *PasswordService) ForceChange(ctx context.Context, targetID, actor, ip string) error {
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return fmt.Errorf("lookup target user: %w", err)
	}

	if err := s.users.SetForcePasswordReset(ctx, targetID, true); err != nil {
		return fmt.Errorf("set force password reset: %w", err)
	}

	if s.audit != nil {
		s.audit.Record(ctx, domain.AuditEvent{
			Category:   domain.AuditAdminAction,
			Actor:      actor,
			Detail:     "forced password change on next login",
			Success:    true,
			OriginIP:   optional(ip),
			TargetUser: &target.Username,
		})
	}

	return nil
}

// isReused checks the candidate against the live hash and the retained
// history. The live hash is checked separately because the history push
// happens after the change commits.
func (s *PasswordService) isReused(ctx context.Context, user *domain.User, candidate string) (bool, error) {
	match, err := security.VerifyPassword(candidate, user.PasswordHash)
	if err != nil {
		return false, fmt.Errorf("compare against current hash: %w", err)
	}
	if match {
		return true, nil
	}

	entries, err := s.users.ListPasswordHistory(ctx, user.ID, s.historyLimit)
	if err != nil {
		return false, fmt.Errorf("list password history: %w", err)
	}

	hashes := make([]string, 0, len(entries))
	for _, entry := range entries {
		hashes = append(hashes, entry.PasswordHash)
	}

	return security.IsPasswordInHistory(candidate, hashes)
}

func (s *PasswordService) commit(ctx context.Context, user *domain.User, newPassword, actorID string, forced bool, ip string) error {
	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	changedAt := s.now().UTC()
	if err := s.users.UpdatePassword(ctx, user.ID, hash, security.PasswordAlgo, changedAt); err != nil {
		return fmt.Errorf("persist new password: %w", err)
	}

	s.recordAudit(ctx, user.Username, "password changed", true, ip)
	s.log.Info("password changed", zap.String("user_id", user.ID), zap.Bool("via_reset", forced))

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:   uuid.NewString(),
			UserID:    user.ID,
			ChangedAt: changedAt,
			ChangedBy: actorID,
			Forced:    forced,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.log.Warn("publish password changed event failed", zap.Error(err))
		}
	}

	if s.notifier != nil && user.Email != "" {
		msg := port.Message{
			To:      user.Email,
			Subject: "Your password was changed",
			Body:    "Your hospital records account password was changed. If this was not you, contact the service desk immediately.",
		}
		if err := s.notifier.Deliver(ctx, msg); err != nil {
			s.log.Warn("password change notification failed", zap.Error(err))
		}
	}

	return nil
}

func (s *PasswordService) recordAudit(ctx context.Context, actor, detail string, success bool, ip string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, domain.AuditEvent{
		Category: domain.AuditPasswordChange,
		Actor:    actor,
		Detail:   detail,
		Success:  success,
		OriginIP: optional(ip),
	})
}
