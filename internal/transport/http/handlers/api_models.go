package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// PolicyErrorResponse carries the full list of password policy violations.
type PolicyErrorResponse struct {
	Error   string   `json:"error"`
	Errors  []string `json:"errors"`
	TraceID string   `json:"trace_id,omitempty"`
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Role     string  `json:"role"`
	Email    *string `json:"email,omitempty"`
}

// AuthLoginRequest defines the payload for the login endpoint.
type AuthLoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// AuthLoginResponse describes the response returned for a successful login.
type AuthLoginResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	User         UserSummary `json:"user"`
	Capabilities []string    `json:"capabilities,omitempty"`
}

// PasswordChangeRequiredResponse is returned when the credentials were
// correct but the caller must change the password before receiving a token.
type PasswordChangeRequiredResponse struct {
	PasswordChangeRequired bool        `json:"password_change_required"`
	Reason                 string      `json:"reason"`
	Redirect               string      `json:"redirect"`
	User                   UserSummary `json:"user"`
}

// PasswordChangeRequest captures a password change request body.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// PasswordForgotRequest represents a password reset initiation payload.
type PasswordForgotRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

// PasswordResetConfirmRequest captures a password reset redemption payload.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// VisitCreateRequest defines the payload for recording a patient visit.
type VisitCreateRequest struct {
	PatientID string     `json:"patient_id" binding:"required"`
	DoctorID  string     `json:"doctor_id" binding:"required"`
	VisitedAt *time.Time `json:"visited_at"`
	Diagnosis string     `json:"diagnosis"`
	Notes     *string    `json:"notes,omitempty"`
}

// DiagnosisUpdateRequest carries a replacement diagnosis for a visit.
type DiagnosisUpdateRequest struct {
	Diagnosis string `json:"diagnosis"`
}

// VisitPayload is the API view of a patient visit with the diagnosis
// rendered to display form.
type VisitPayload struct {
	ID        string     `json:"id"`
	PatientID string     `json:"patient_id"`
	DoctorID  string     `json:"doctor_id"`
	VisitedAt time.Time  `json:"visited_at"`
	Diagnosis string     `json:"diagnosis"`
	Notes     *string    `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// VisitListResponse wraps a patient's visit history.
type VisitListResponse struct {
	Visits []VisitPayload `json:"visits"`
	Total  int            `json:"total"`
}

// AuditEventPayload is the API view of one audit event.
type AuditEventPayload struct {
	ID         int64     `json:"id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Category   string    `json:"category"`
	Actor      string    `json:"actor"`
	Detail     string    `json:"detail"`
	EntityType *string   `json:"entity_type,omitempty"`
	EntityID   *string   `json:"entity_id,omitempty"`
	Success    bool      `json:"success"`
	OriginIP   *string   `json:"origin_ip,omitempty"`
	TargetUser *string   `json:"target_user,omitempty"`
}

// AuditListResponse wraps audit events, newest first.
type AuditListResponse struct {
	Events []AuditEventPayload `json:"events"`
	Total  int                 `json:"total"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newUserSummary(user domain.User) UserSummary {
	summary := UserSummary{
		ID:       user.ID,
		Username: user.Username,
		Role:     string(user.Role),
	}

	if email := user.Email; email != "" {
		summary.Email = &email
	}

	return summary
}

func newVisitPayload(view usecase.VisitView) VisitPayload {
	return VisitPayload{
		ID:        view.Visit.ID,
		PatientID: view.Visit.PatientID,
		DoctorID:  view.Visit.DoctorID,
		VisitedAt: view.Visit.VisitedAt,
		Diagnosis: view.Diagnosis,
		Notes:     view.Visit.Notes,
		CreatedAt: view.Visit.CreatedAt,
		UpdatedAt: view.Visit.UpdatedAt,
	}
}

func newAuditEventPayload(event domain.AuditEvent) AuditEventPayload {
	return AuditEventPayload{
		ID:         event.ID,
		OccurredAt: event.OccurredAt,
		Category:   string(event.Category),
		Actor:      event.Actor,
		Detail:     event.Detail,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Success:    event.Success,
		OriginIP:   event.OriginIP,
		TargetUser: event.TargetUser,
	}
}
