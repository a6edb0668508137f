package domain

import "time"

// AuditCategory classifies security-relevant events.
type AuditCategory string

const (
	AuditAuthentication    AuditCategory = "AUTHENTICATION"
	AuditDataAccess        AuditCategory = "DATA_ACCESS"
	AuditSecurityViolation AuditCategory = "SECURITY_VIOLATION"
	AuditPasswordChange    AuditCategory = "PASSWORD_CHANGE"
	AuditAdminAction       AuditCategory = "ADMIN_ACTION"
)

// AuditEvent is an immutable record of a security-relevant occurrence.
// Events are ordered by creation time, newest first in any retrieval API.
type AuditEvent struct {
	ID         int64
	OccurredAt time.Time
	Category   AuditCategory
	Actor      string
	Detail     string
	EntityType *string
	EntityID   *string
	Success    bool
	OriginIP   *string
	TargetUser *string
}
