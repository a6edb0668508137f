package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nycmed/hospital-records/internal/usecase"
)

// passwordChangeRedirect is where clients send principals whose credentials
// verified but whose password must change before a token is issued.
const passwordChangeRedirect = "/auth/change-password"

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds authentication routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/login", h.login)
}

// login validates the provided identifier and password and returns an
// access token on success. A correct password on an account flagged for a
// password change returns a redirect payload instead of a token.
func (h *AuthHandler) login(c *gin.Context) {
	var req AuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	input := usecase.LoginInput{
		Identifier: strings.TrimSpace(req.Identifier),
		Password:   req.Password,
		IP:         strings.TrimSpace(c.ClientIP()),
		UserAgent:  strings.TrimSpace(c.Request.UserAgent()),
	}

	result, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		if errors.Is(err, usecase.ErrPasswordChangeRequired) && result != nil {
			c.JSON(http.StatusOK, PasswordChangeRequiredResponse{
				PasswordChangeRequired: true,
				Reason:                 result.ChangeReason,
				Redirect:               passwordChangeRedirect,
				User:                   newUserSummary(*result.User),
			})
			return
		}
		h.respondLoginError(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthLoginResponse{
		AccessToken:  result.AccessToken,
		TokenType:    "Bearer",
		User:         newUserSummary(*result.User),
		Capabilities: result.Capabilities.List(),
	})
}

var loginErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	{Err: usecase.ErrAccountLocked, Status: http.StatusLocked, Message: "account locked"},
}

func (h *AuthHandler) respondLoginError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, loginErrorCases, http.StatusInternalServerError, "authentication failed")
}
