// Package identity adapts the external identity provider: account creation,
// password sign-in, sign-out and ID token verification.
package identity

import (
	"context"
	"errors"
)

var (
	ErrEmailExists        = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired authentication token")
	ErrSignInUnavailable  = errors.New("password sign-in is not configured")
	ErrUnknownUser        = errors.New("unknown user")
	ErrWeakPassword       = errors.New("password does not meet the provider's requirements")
)

// User is the identity as the provider knows it. Roles live in the user profile store.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// Session is the result of a successful password sign-in.
type Session struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// Provider is the identity boundary used by the services and the auth middleware.
type Provider interface {
	SignUp(ctx context.Context, email, password, displayName string) (*User, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignOut revokes every refresh token of the user, ending all sessions.
	SignOut(ctx context.Context, userID string) error
	// VerifyToken validates an ID token and returns its subject.
	VerifyToken(ctx context.Context, idToken string) (*User, error)
	// SetRoleClaim mirrors the stored role into token claims for client-side display.
	// Authorization never reads this claim.
	SetRoleClaim(ctx context.Context, userID, role string) error
	// LookupByEmail resolves an account by email.
	LookupByEmail(ctx context.Context, email string) (*User, error)
}

var (
	_ Provider = (*FirebaseProvider)(nil)
	_ Provider = (*MemoryProvider)(nil)
)
