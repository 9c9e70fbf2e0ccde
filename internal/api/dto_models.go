package api

import "doubtsolver-backend/internal/models"

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	// Field names the rejected input, when one is known.
	Field string `json:"field,omitempty"`
	// Redirect tells the client where to send the user, e.g. "/pay" for
	// students without an active subscription.
	Redirect string `json:"redirect,omitempty"`
}

// SuccessResponse is a generic structure for simple success messages.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// SessionResponse is returned by sign-in.
type SessionResponse struct {
	IDToken      string       `json:"idToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *models.User `json:"user"`
}

// InitializeResponse is returned by POST /users/initialize.
type InitializeResponse struct {
	User    *models.User `json:"user"`
	Created bool         `json:"created"`
}

// StreamFrame is one message on a snapshot WebSocket.
type StreamFrame struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Stream frame types.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
	FramePing     = "ping"
	FramePong     = "pong"
)
