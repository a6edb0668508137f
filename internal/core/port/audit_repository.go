package port

import (
	"context"

	"github.com/nycmed/hospital-records/internal/core/domain"
)

// AuditRepository is the durable, append-only audit store. It is the system
// of record for compliance queries; the in-memory recent view is best-effort.
type AuditRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) error
	// ListRecent returns events newest first. A non-zero afterID restricts
	// the result to events with an identifier greater than the cursor,
	// supporting incremental polling.
	ListRecent(ctx context.Context, limit int, afterID int64) ([]domain.AuditEvent, error)
}
