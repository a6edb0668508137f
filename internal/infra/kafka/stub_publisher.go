package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when the
// broker is disabled in configuration.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAccountLocked logs security.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	payload := map[string]any{
		"user_id":         event.UserID,
		"username":        event.Username,
		"locked_at":       event.LockedAt,
		"failed_attempts": event.FailedAttempts,
		"ip_address":      event.IPAddress,
	}
	p.logEvent(topicAccountLocked, event.UserID, event.LockedAt, payload)
	return nil
}

// PublishPasswordChanged logs security.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"changed_at": event.ChangedAt,
		"changed_by": event.ChangedBy,
		"forced":     event.Forced,
	}
	p.logEvent(topicPasswordChange, event.UserID, event.ChangedAt, payload)
	return nil
}

// PublishPasswordResetRequested logs security.password.reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := map[string]any{
		"user_id":            event.UserID,
		"request_id":         event.RequestID,
		"requested_at":       event.RequestedAt,
		"masked_destination": event.MaskedDestination,
		"ip_address":         event.IPAddress,
		"expires_at":         event.ExpiresAt,
	}
	p.logEvent(topicResetRequested, event.UserID, event.RequestedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
