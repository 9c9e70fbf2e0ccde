package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/internal/identity"
)

// mapErrorToStatus translates a service error into an HTTP status and body.
func mapErrorToStatus(err error) (int, ErrorResponse) {
	var (
		validationErr *core.ValidationError
		permissionErr *core.PermissionError
		bindErrs      validator.ValidationErrors
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: validationErr.Reason, Field: validationErr.Field}
	case errors.As(err, &bindErrs):
		return http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: describeBindErrors(bindErrs), Field: jsonField(bindErrs[0])}
	case errors.As(err, &permissionErr):
		if permissionErr.NotSubscribed() {
			return http.StatusForbidden, ErrorResponse{Error: "Active subscription required", Details: permissionErr.Reason, Redirect: "/pay"}
		}
		return http.StatusForbidden, ErrorResponse{Error: "Forbidden", Details: permissionErr.Reason}
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{Error: identity.ErrInvalidCredentials.Error()}
	case errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, ErrorResponse{Error: identity.ErrInvalidToken.Error()}
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "Not found", Details: err.Error()}
	case errors.Is(err, identity.ErrSignInUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Error: identity.ErrSignInUnavailable.Error()}
	case errors.Is(err, core.ErrRemote):
		return http.StatusBadGateway, ErrorResponse{Error: "Upstream service failure"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "An unexpected internal server error occurred."}
	}
}

// respondError writes err as JSON. Server-side failures are logged with the
// full error; clients only ever see the generic message.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status, body := mapErrorToStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

// respondBindError reports a malformed or invalid request body.
func respondBindError(c *gin.Context, err error) {
	var bindErrs validator.ValidationErrors
	if errors.As(err, &bindErrs) {
		status, body := mapErrorToStatus(bindErrs)
		c.AbortWithStatusJSON(status, body)
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
}

func describeBindErrors(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", jsonField(fe)))
		case "email":
			parts = append(parts, fmt.Sprintf("%s must be a valid email", jsonField(fe)))
		case "min", "max":
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", jsonField(fe), fe.Tag(), fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", jsonField(fe), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", jsonField(fe)))
		}
	}
	return strings.Join(parts, "; ")
}

// jsonField lowercases the first letter of the Go field name, which matches
// the JSON tags used by the request models.
func jsonField(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}
