package domain

import "time"

// AccountLockedEvent is published when repeated failures lock an account.
type AccountLockedEvent struct {
	EventID        string         `json:"event_id"`
	UserID         string         `json:"user_id"`
	Username       string         `json:"username"`
	LockedAt       time.Time      `json:"locked_at"`
	FailedAttempts int            `json:"failed_attempts"`
	IPAddress      *string        `json:"ip_address,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// PasswordChangedEvent is published after a credential change commits.
type PasswordChangedEvent struct {
	EventID   string         `json:"event_id"`
	UserID    string         `json:"user_id"`
	ChangedAt time.Time      `json:"changed_at"`
	ChangedBy string         `json:"changed_by"`
	Forced    bool           `json:"forced"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PasswordResetRequestedEvent is published when a reset token is issued.
type PasswordResetRequestedEvent struct {
	EventID           string         `json:"event_id"`
	UserID            string         `json:"user_id"`
	RequestID         string         `json:"request_id"`
	RequestedAt       time.Time      `json:"requested_at"`
	MaskedDestination string         `json:"masked_destination"`
	ExpiresAt         time.Time      `json:"expires_at"`
	IPAddress         *string        `json:"ip_address,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}
