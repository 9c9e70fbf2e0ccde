package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/internal/identity"
	"doubtsolver-backend/internal/models"
)

const userContextKey = "currentUser"

// ErrorResponse mirrors api.ErrorResponse; it is redeclared here to avoid an import cycle.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// AuthMiddleware authenticates requests with the identity provider and loads
// the caller's profile from the user store.
type AuthMiddleware struct {
	verifier    identity.Provider
	userService core.UserService
	logger      *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(verifier identity.Provider, userService core.UserService, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, userService: userService, logger: logger}
}

// bearerToken extracts the ID token. WebSocket clients cannot set headers from
// a browser, so upgrade requests may pass it as ?token= instead.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			token := c.Query("token")
			return token, token != ""
		}
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// VerifyToken rejects requests without a valid ID token. On success the
// caller's stored profile is available through CurrentUser.
func (m *AuthMiddleware) VerifyToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		idToken, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authorization header format must be 'Bearer {token}'"})
			return
		}

		subject, err := m.verifier.VerifyToken(c.Request.Context(), idToken)
		if err != nil {
			if !errors.Is(err, identity.ErrInvalidToken) {
				m.logger.Warn("AuthMiddleware: token verification failed", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired authentication token"})
			return
		}

		user, _, err := m.userService.GetOrCreate(c.Request.Context(), *subject)
		if err != nil {
			m.logger.Error("AuthMiddleware: failed to load user profile", zap.String("userId", subject.ID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusBadGateway, ErrorResponse{Error: "Failed to load user profile"})
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// RequireAdmin must run after VerifyToken. The role comes from the profile
// loaded for this request, never from token claims or request input.
func RequireAdmin(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if !user.IsAdmin() {
			if user != nil {
				logger.Warn("Non-admin attempted admin route", zap.String("userId", user.ID), zap.String("path", c.FullPath()))
			}
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "Administrator access required"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil outside VerifyToken.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// SetCurrentUser stores user on the context. Exposed for handler tests.
func SetCurrentUser(c *gin.Context, user *models.User) {
	c.Set(userContextKey, user)
}
