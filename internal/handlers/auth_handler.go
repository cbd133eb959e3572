package handlers

import (
	"errors"
	"net/http"

	"github.com/ciddy0/co2ounter/internal/logger"
	"github.com/ciddy0/co2ounter/internal/services"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	auth  *services.AuthService
	usage *services.UsageService
}

func NewAuthHandler(auth *services.AuthService, usage *services.UsageService) *AuthHandler {
	return &AuthHandler{
		auth:  auth,
		usage: usage,
	}
}

// ExchangeExtensionToken trades an identity-provider token for the long-lived
// extension bearer credential
// @Summary Issue an extension token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ExtensionTokenRequest true "Identity-provider token"
// @Success 200 {object} ExtensionTokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/auth/extension-token [post]
func (h *AuthHandler) ExchangeExtensionToken(c *gin.Context) {
	var req ExtensionTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IDToken == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing idToken"})
		return
	}

	token, identity, err := h.auth.ExchangeToken(c.Request.Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, services.ErrMissingIDToken) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing idToken"})
			return
		}
		if errors.Is(err, services.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid idToken"})
			return
		}
		logger.Log.Error("Token exchange failed: ", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Token exchange failed"})
		return
	}

	// Pre-create the user record so leaderboards show the display name
	// before the first ingested event.
	if err := h.usage.Register(identity.UID, identity.DisplayName, identity.Email); err != nil {
		logger.Log.Warn("Failed to pre-create user record: ", err)
	}

	c.JSON(http.StatusOK, ExtensionTokenResponse{
		Success: true,
		Token:   token,
		User: ExtensionTokenUser{
			Identity:    identity.UID,
			Email:       identity.Email,
			DisplayName: identity.DisplayName,
		},
	})
}

type ExtensionTokenRequest struct {
	IDToken string `json:"idToken"`
}

type ExtensionTokenUser struct {
	Identity    string `json:"identity"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type ExtensionTokenResponse struct {
	Success bool               `json:"success"`
	Token   string             `json:"token"`
	User    ExtensionTokenUser `json:"user"`
}
