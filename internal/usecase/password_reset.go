package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/core/port"
	"github.com/nycmed/hospital-records/internal/infra/logger"
	"github.com/nycmed/hospital-records/internal/infra/security"
	"github.com/nycmed/hospital-records/internal/repository"
)

var (
	// ErrResetTokenInvalid indicates an unknown, revoked, or already-used
	// token.
	ErrResetTokenInvalid = errors.New("password reset token invalid")
	// ErrResetTokenExpired indicates the validity window has elapsed.
	ErrResetTokenExpired = errors.New("password reset token expired")
)

const resetTokenBytes = 32

// PasswordResetRequestInput carries a forgot-password request.
type PasswordResetRequestInput struct {
	Identifier string
	IP         string
	UserAgent  string
}

// PasswordResetConfirmInput carries a reset redemption.
type PasswordResetConfirmInput struct {
	Token       string
	NewPassword string
	IP          string
}

// PasswordResetService issues and redeems single-use reset tokens. Request
// never discloses whether an account exists: the outcome is identical to
// the caller either way.
type PasswordResetService struct {
	users     port.UserRepository
	tokens    port.TokenRepository
	passwords *PasswordService
	events    port.EventPublisher
	notifier  port.Notifier
	audit     *AuditTrail
	log       *zap.Logger

	ttl time.Duration
	now func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(users port.UserRepository, tokens port.TokenRepository, passwords *PasswordService, events port.EventPublisher, notifier port.Notifier, audit *AuditTrail, ttl time.Duration, log *zap.Logger) *PasswordResetService {
	if ttl <= 0 {
		ttl = domain.ResetTokenTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PasswordResetService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		events:    events,
		notifier:  notifier,
		audit:     audit,
		log:       log,
		ttl:       ttl,
		now:       time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	if now != nil {
		s.now = now
	}
	return s
}

// Request issues a reset token for the identifier when it resolves to an
// account. Unknown identifiers return nil without side effects visible to
// the caller. Issuing a token revokes any outstanding ones for the user.
func (s *PasswordResetService) Request(ctx context.Context, input PasswordResetRequestInput) error {
	user, err := s.users.GetByIdentifier(ctx, input.Identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Debug("password reset requested for unknown identifier")
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	raw, err := security.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now().UTC()
	token := domain.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		IP:        optional(input.IP),
		UserAgent: optional(input.UserAgent),
	}

	if err := s.tokens.CreatePasswordReset(ctx, token); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	if s.audit != nil {
		s.audit.Record(ctx, domain.AuditEvent{
			Category: domain.AuditPasswordChange,
			Actor:    user.Username,
			Detail:   "password reset token issued",
			Success:  true,
			OriginIP: optional(input.IP),
		})
	}

	if s.events != nil {
		event := domain.PasswordResetRequestedEvent{
			EventID:           uuid.NewString(),
			UserID:            user.ID,
			RequestID:         token.ID,
			RequestedAt:       now,
			MaskedDestination: logger.MaskEmail(user.Email),
			ExpiresAt:         token.ExpiresAt,
			IPAddress:         optional(input.IP),
		}
		if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
			s.log.Warn("publish reset requested event failed", zap.Error(err))
		}
	}

	if s.notifier != nil && user.Email != "" {
		msg := port.Message{
			To:      user.Email,
			Subject: "Password reset requested",
			Body: fmt.Sprintf(
				"A password reset was requested for your account. Use this token within %s: %s\nIf you did not request this, ignore this message.",
				s.ttl, raw,
			),
		}
		if err := s.notifier.Deliver(ctx, msg); err != nil {
			// Delivery failure must not surface to the caller; that would
			// disclose account existence through the error path.
			s.log.Warn("reset token delivery failed",
				zap.String("email", logger.MaskEmail(user.Email)),
				zap.Error(err),
			)
		}
	}

	return nil
}

// Confirm redeems a reset token and sets the new password. The token is
// consumed only after the change commits, so a policy rejection leaves it
// usable for another attempt within the window.
func (s *PasswordResetService) Confirm(ctx context.Context, input PasswordResetConfirmInput) error {
	token, err := s.tokens.GetPasswordResetByHash(ctx, security.HashToken(input.Token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	now := s.now().UTC()
	if token.Expired(now) {
		return ErrResetTokenExpired
	}
	if !token.Usable(now) {
		return ErrResetTokenInvalid
	}

	if err := s.passwords.CompleteReset(ctx, token.UserID, input.NewPassword, input.IP); err != nil {
		return err
	}

	if err := s.tokens.ConsumePasswordReset(ctx, token.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// A concurrent redemption won the guarded update.
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	return nil
}
