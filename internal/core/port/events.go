package port

import (
	"context"

	"github.com/nycmed/hospital-records/internal/core/domain"
)

// EventPublisher publishes security domain events to the message bus.
type EventPublisher interface {
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
}
