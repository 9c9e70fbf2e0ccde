package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"doubtsolver-backend/internal/middleware"
)

// UserHandler serves the caller's own profile.
type UserHandler struct{}

func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// GetCurrentUserProfile handles GET /users/me
func (h *UserHandler) GetCurrentUserProfile(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.CurrentUser(c))
}
