package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/internal/identity"
	"doubtsolver-backend/internal/middleware"
	"doubtsolver-backend/internal/models"
)

// AuthHandler handles account creation and sessions.
type AuthHandler struct {
	userService core.UserService
	logger      *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(us core.UserService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{userService: us, logger: logger}
}

// SignUp handles POST /auth/signup
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	user, err := h.userService.SignUp(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// SignIn handles POST /auth/signin
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req models.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	session, user, err := h.userService.SignIn(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{IDToken: session.IDToken, RefreshToken: session.RefreshToken, User: user})
}

// SignOut handles POST /auth/signout. Every session of the caller ends.
func (h *AuthHandler) SignOut(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if err := h.userService.SignOut(c.Request.Context(), user.ID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Signed out"})
}

// InitializeUserProfile handles POST /users/initialize. The auth middleware
// already created a missing profile; this reports whether it did.
func (h *AuthHandler) InitializeUserProfile(c *gin.Context) {
	current := middleware.CurrentUser(c)
	user, created, err := h.userService.GetOrCreate(c.Request.Context(), identity.User{
		ID:          current.ID,
		Email:       current.Email,
		DisplayName: current.DisplayName,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, InitializeResponse{User: user, Created: created})
}
