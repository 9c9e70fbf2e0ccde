package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// FirebaseProvider implements Provider on Firebase Authentication.
// Account management uses the Admin SDK; password sign-in goes through the
// Identity Toolkit API with the project's web API key.
type FirebaseProvider struct {
	auth    *auth.Client
	toolkit *identitytoolkit.Service
	logger  *zap.Logger
}

// NewFirebaseProvider builds the provider. An empty webAPIKey disables SignIn.
func NewFirebaseProvider(ctx context.Context, authClient *auth.Client, webAPIKey string, logger *zap.Logger) (*FirebaseProvider, error) {
	if authClient == nil {
		return nil, errors.New("firebase auth client is nil")
	}
	p := &FirebaseProvider{auth: authClient, logger: logger}
	if webAPIKey == "" {
		logger.Warn("FIREBASE_WEB_API_KEY is not set; password sign-in endpoint is disabled.")
		return p, nil
	}
	svc, err := identitytoolkit.NewService(ctx, option.WithAPIKey(webAPIKey))
	if err != nil {
		return nil, fmt.Errorf("identitytoolkit.NewService: %w", err)
	}
	p.toolkit = svc
	return p, nil
}

func (p *FirebaseProvider) SignUp(ctx context.Context, email, password, displayName string) (*User, error) {
	params := (&auth.UserToCreate{}).
		Email(email).
		Password(password).
		DisplayName(displayName)

	record, err := p.auth.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, ErrEmailExists
		}
		if strings.Contains(err.Error(), "password") {
			return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
		}
		return nil, fmt.Errorf("failed to create auth user: %w", err)
	}
	return &User{ID: record.UID, Email: record.Email, DisplayName: record.DisplayName}, nil
}

func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if p.toolkit == nil {
		return nil, ErrSignInUnavailable
	}
	resp, err := p.toolkit.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
			// EMAIL_NOT_FOUND, INVALID_PASSWORD, INVALID_LOGIN_CREDENTIALS, USER_DISABLED
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	return &Session{
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		User:         User{ID: resp.LocalId, Email: resp.Email, DisplayName: resp.DisplayName},
	}, nil
}

func (p *FirebaseProvider) SignOut(ctx context.Context, userID string) error {
	if err := p.auth.RevokeRefreshTokens(ctx, userID); err != nil {
		if auth.IsUserNotFound(err) {
			return ErrUnknownUser
		}
		return fmt.Errorf("failed to revoke refresh tokens for '%s': %w", userID, err)
	}
	return nil
}

// VerifyToken also checks revocation, so a signed-out session stops working immediately.
func (p *FirebaseProvider) VerifyToken(ctx context.Context, idToken string) (*User, error) {
	token, err := p.auth.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if err != nil {
		p.logger.Debug("ID token rejected", zap.Error(err))
		return nil, ErrInvalidToken
	}
	u := &User{ID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		u.Email = email
	}
	// 'name' is the display name claim in Firebase ID tokens.
	if name, ok := token.Claims["name"].(string); ok {
		u.DisplayName = name
	}
	return u, nil
}

func (p *FirebaseProvider) SetRoleClaim(ctx context.Context, userID, role string) error {
	if err := p.auth.SetCustomUserClaims(ctx, userID, map[string]interface{}{"role": role}); err != nil {
		if auth.IsUserNotFound(err) {
			return ErrUnknownUser
		}
		return fmt.Errorf("failed to set role claim for '%s': %w", userID, err)
	}
	return nil
}

func (p *FirebaseProvider) LookupByEmail(ctx context.Context, email string) (*User, error) {
	record, err := p.auth.GetUserByEmail(ctx, email)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("failed to look up '%s': %w", email, err)
	}
	return &User{ID: record.UID, Email: record.Email, DisplayName: record.DisplayName}, nil
}
