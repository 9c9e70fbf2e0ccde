package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"doubtsolver-backend/internal/db"
	"doubtsolver-backend/internal/identity"
	"doubtsolver-backend/internal/models"
)

// userService implements the UserService interface.
type userService struct {
	userRepo     db.UserRepository
	provider     identity.Provider
	auditService AuditService
	logger       *zap.Logger
	now          func() time.Time
}

// NewUserService creates a new UserService instance.
func NewUserService(userRepo db.UserRepository, provider identity.Provider, as AuditService, logger *zap.Logger) UserService {
	return &userService{
		userRepo:     userRepo,
		provider:     provider,
		auditService: as,
		logger:       logger,
		now:          utcNow,
	}
}

func utcNow() time.Time { return time.Now().UTC() }

// SignUp creates the identity account, then the profile with role=student.
// If the profile write fails the account still exists; GetOrCreate repairs it
// on the next authenticated request.
func (s *userService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.User, error) {
	email := strings.TrimSpace(req.Email)
	displayName := strings.TrimSpace(req.DisplayName)
	if email == "" {
		return nil, invalid("email", "must not be empty")
	}
	if displayName == "" {
		return nil, invalid("displayName", "must not be empty")
	}

	ident, err := s.provider.SignUp(ctx, email, req.Password, displayName)
	switch {
	case errors.Is(err, identity.ErrEmailExists):
		return nil, invalid("email", "an account with this email already exists")
	case errors.Is(err, identity.ErrWeakPassword):
		return nil, invalid("password", "password is too weak")
	case err != nil:
		return nil, remote("create account", err)
	}

	now := s.now()
	user := &models.User{
		ID:          ident.ID,
		Email:       ident.Email,
		DisplayName: displayName,
		Role:        models.RoleStudent,
		CreatedAt:   now,
		LastLoginAt: now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		s.logger.Error("Account created but profile write failed", zap.String("userId", ident.ID), zap.Error(err))
		return nil, remote("create profile", err)
	}
	s.logger.Info("User signed up", zap.String("userId", user.ID))
	return user, nil
}

// SignIn verifies credentials and merges lastLoginAt into the profile.
func (s *userService) SignIn(ctx context.Context, req models.SignInRequest) (*identity.Session, *models.User, error) {
	session, err := s.provider.SignIn(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return nil, nil, fmt.Errorf("sign in: %w", identity.ErrInvalidCredentials)
		}
		return nil, nil, remote("sign in", err)
	}

	user, _, err := s.GetOrCreate(ctx, session.User)
	if err != nil {
		return nil, nil, err
	}
	at := s.now()
	if err := s.userRepo.TouchLastLogin(ctx, user.ID, at); err != nil {
		// The session is valid; a stale lastLoginAt is not worth failing it.
		s.logger.Warn("Failed to update lastLoginAt", zap.String("userId", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = at
	}
	return session, user, nil
}

func (s *userService) SignOut(ctx context.Context, userID string) error {
	if err := s.provider.SignOut(ctx, userID); err != nil {
		return remote("sign out", err)
	}
	return nil
}

// GetOrCreate retrieves the profile of an authenticated identity. If the
// profile doesn't exist, it creates one with role=student.
// Returns the user, a boolean indicating if the user was created, and an error if any.
func (s *userService) GetOrCreate(ctx context.Context, ident identity.User) (*models.User, bool, error) {
	user, err := s.userRepo.GetByID(ctx, ident.ID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, false, remote("get profile", err)
	}

	now := s.now()
	newUser := &models.User{
		ID:          ident.ID,
		Email:       ident.Email,
		DisplayName: ident.DisplayName,
		Role:        models.RoleStudent,
		CreatedAt:   now,
		LastLoginAt: now,
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			// Lost a race with a concurrent first request.
			existing, getErr := s.userRepo.GetByID(ctx, ident.ID)
			if getErr != nil {
				return nil, false, remote("get profile", getErr)
			}
			return existing, false, nil
		}
		return nil, false, remote("create profile", err)
	}
	return newUser, true, nil
}

// GetByID retrieves a user by their ID.
func (s *userService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: user with ID '%s'", ErrUserNotFound, userID)
		}
		return nil, remote("get profile", err)
	}
	return user, nil
}

// SetRole stores the new role, then mirrors it into the token claims.
// The claim is a display hint only, so a failure to mirror is logged.
func (s *userService) SetRole(ctx context.Context, userID string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, invalid("role", fmt.Sprintf("unknown role %q", role))
	}
	before, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.SetRole(ctx, userID, role); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: user with ID '%s'", ErrUserNotFound, userID)
		}
		return nil, remote("set role", err)
	}
	if err := s.provider.SetRoleClaim(ctx, userID, string(role)); err != nil {
		s.logger.Warn("Failed to mirror role claim", zap.String("userId", userID), zap.Error(err))
	}

	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     "system",
		Action:     models.AuditUserRoleChange,
		TargetType: models.AuditTargetUser,
		TargetID:   userID,
		Timestamp:  s.now(),
		Details: map[string]interface{}{
			"from": string(before.Role),
			"to":   string(role),
		},
	})
	before.Role = role
	return before, nil
}

func (s *userService) ResolveUserID(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", invalid("email", "must not be empty")
	}
	if user, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return user.ID, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return "", remote("find profile by email", err)
	}

	ident, err := s.provider.LookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrUnknownUser) {
			return "", fmt.Errorf("%w: no account for %s", ErrUserNotFound, email)
		}
		return "", remote("lookup account", err)
	}
	return ident.ID, nil
}
