package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nycmed/hospital-records/internal/core/domain"
	"github.com/nycmed/hospital-records/internal/core/port"
	"github.com/nycmed/hospital-records/internal/repository"
	"github.com/nycmed/hospital-records/internal/transport/http/middleware"
	"github.com/nycmed/hospital-records/internal/usecase"
)

// AdminHandler exposes the administrative surface: the audit trail and
// account recovery actions.
type AdminHandler struct {
	users     port.UserRepository
	passwords *usecase.PasswordService
	audit     *usecase.AuditTrail
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(users port.UserRepository, passwords *usecase.PasswordService, audit *usecase.AuditTrail) *AdminHandler {
	return &AdminHandler{users: users, passwords: passwords, audit: audit}
}

// ListAudit returns audit events newest first. Without an after_id cursor
// the in-memory ring answers; with one, the durable log is paged instead.
func (h *AdminHandler) ListAudit(c *gin.Context) {
	limit := parsePositiveInt(c.Query("limit"), usecase.DefaultRecentEventCap)

	var afterID int64
	if raw := strings.TrimSpace(c.Query("after_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "after_id must be a non-negative integer"))
			return
		}
		afterID = parsed
	}

	var (
		events []domain.AuditEvent
		err    error
	)
	if afterID > 0 {
		events, err = h.audit.ListDurable(c.Request.Context(), limit, afterID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list audit events"))
			return
		}
	} else {
		events = h.audit.Recent(limit)
	}

	payload := make([]AuditEventPayload, 0, len(events))
	for _, event := range events {
		payload = append(payload, newAuditEventPayload(event))
	}

	c.JSON(http.StatusOK, AuditListResponse{Events: payload, Total: len(payload)})
}

// PurgeAudit clears the in-memory ring. The durable log is append-only and
// is not affected.
func (h *AdminHandler) PurgeAudit(c *gin.Context) {
	h.audit.Purge()

	actor := actorUsername(c)
	h.audit.Record(c.Request.Context(), domain.AuditEvent{
		Category: domain.AuditAdminAction,
		Actor:    actor,
		Detail:   "audit buffer purged",
		Success:  true,
	})

	c.Status(http.StatusNoContent)
}

// UnlockUser clears a principal's lockout state and failure counter.
func (h *AdminHandler) UnlockUser(c *gin.Context) {
	targetID := strings.TrimSpace(c.Param("id"))
	if targetID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user id is required"))
		return
	}

	if _, err := h.users.GetByID(c.Request.Context(), targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to unlock user"))
		return
	}

	if err := h.users.Unlock(c.Request.Context(), targetID); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to unlock user"))
		return
	}

	h.audit.Record(c.Request.Context(), domain.AuditEvent{
		Category:   domain.AuditAdminAction,
		Actor:      actorUsername(c),
		Detail:     "account unlocked by administrator",
		Success:    true,
		TargetUser: &targetID,
	})

	c.Status(http.StatusNoContent)
}

// ForcePasswordChange flags a principal so their next login demands a new
// password.
func (h *AdminHandler) ForcePasswordChange(c *gin.Context) {
	targetID := strings.TrimSpace(c.Param("id"))
	if targetID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user id is required"))
		return
	}

	err := h.passwords.ForceChange(c.Request.Context(), targetID, actorUsername(c), strings.TrimSpace(c.ClientIP()))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to flag user for password change"))
		return
	}

	c.Status(http.StatusNoContent)
}

func actorUsername(c *gin.Context) string {
	if claims, ok := middleware.GetClaims(c); ok {
		return claims.Username
	}
	return "unknown"
}

func parsePositiveInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
