package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nycmed/hospital-records/internal/transport/http/middleware"
	"github.com/nycmed/hospital-records/internal/usecase"
)

// PasswordHandler exposes the credential change and reset endpoints.
type PasswordHandler struct {
	passwords *usecase.PasswordService
	resets    *usecase.PasswordResetService
}

// NewPasswordHandler constructs PasswordHandler.
func NewPasswordHandler(passwords *usecase.PasswordService, resets *usecase.PasswordResetService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords, resets: resets}
}

// ChangePassword handles an authenticated password change.
func (h *PasswordHandler) ChangePassword(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "current_password and new_password are required"))
		return
	}

	err := h.passwords.Change(c.Request.Context(), usecase.PasswordChangeInput{
		UserID:          userID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		IP:              strings.TrimSpace(c.ClientIP()),
	})
	if err != nil {
		h.respondChangeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ForgotPassword initiates a reset. The response is 202 regardless of
// whether the identifier matches an account.
func (h *PasswordHandler) ForgotPassword(c *gin.Context) {
	var req PasswordForgotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "identifier is required"))
		return
	}

	// Internal failures are not surfaced; a distinguishable error path
	// would leak which identifiers have accounts.
	_ = h.resets.Request(c.Request.Context(), usecase.PasswordResetRequestInput{
		Identifier: strings.TrimSpace(req.Identifier),
		IP:         strings.TrimSpace(c.ClientIP()),
		UserAgent:  strings.TrimSpace(c.Request.UserAgent()),
	})

	c.JSON(http.StatusAccepted, MessageResponse{Message: "if the account exists, a reset link has been sent"})
}

// ResetPassword redeems a reset token and sets a new password.
func (h *PasswordHandler) ResetPassword(c *gin.Context) {
	var req PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token and new_password are required"))
		return
	}

	err := h.resets.Confirm(c.Request.Context(), usecase.PasswordResetConfirmInput{
		Token:       strings.TrimSpace(req.Token),
		NewPassword: req.NewPassword,
		IP:          strings.TrimSpace(c.ClientIP()),
	})
	if err != nil {
		h.respondResetError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

var changeErrorCases = []ErrorCase{
	{Err: usecase.ErrCurrentPasswordMismatch, Status: http.StatusBadRequest, Message: "current password is incorrect"},
	{Err: usecase.ErrPasswordReused, Status: http.StatusBadRequest, Message: "password was used recently"},
}

var resetErrorCases = []ErrorCase{
	{Err: usecase.ErrResetTokenExpired, Status: http.StatusGone, Message: "reset token expired"},
	{Err: usecase.ErrResetTokenInvalid, Status: http.StatusBadRequest, Message: "reset token invalid or already used"},
	{Err: usecase.ErrPasswordReused, Status: http.StatusBadRequest, Message: "password was used recently"},
}

func (h *PasswordHandler) respondResetError(c *gin.Context, err error) {
	var policyErr *usecase.PolicyViolationError
	if errors.As(err, &policyErr) {
		respondPolicyViolations(c, policyErr)
		return
	}
	RespondWithMappedError(c, err, resetErrorCases, http.StatusInternalServerError, "failed to change password")
}

func (h *PasswordHandler) respondChangeError(c *gin.Context, err error) {
	var policyErr *usecase.PolicyViolationError
	if errors.As(err, &policyErr) {
		respondPolicyViolations(c, policyErr)
		return
	}
	RespondWithMappedError(c, err, changeErrorCases, http.StatusInternalServerError, "failed to change password")
}

func respondPolicyViolations(c *gin.Context, policyErr *usecase.PolicyViolationError) {
	c.JSON(http.StatusBadRequest, PolicyErrorResponse{
		Error:   "password does not meet policy requirements",
		Errors:  policyErr.Violations,
		TraceID: middleware.GetTraceID(c),
	})
}
