package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type memoryAccount struct {
	user     User
	password string
	claims   map[string]string
}

// MemoryProvider is an in-process Provider for tests and local development.
// Tokens are opaque random strings valid until SignOut.
type MemoryProvider struct {
	mu       sync.Mutex
	accounts map[string]*memoryAccount // by user ID
	tokens   map[string]string         // token -> user ID
}

// NewMemoryProvider returns an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		accounts: make(map[string]*memoryAccount),
		tokens:   make(map[string]string),
	}
}

func (p *MemoryProvider) SignUp(ctx context.Context, email, password, displayName string) (*User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.accounts {
		if strings.EqualFold(a.user.Email, email) {
			return nil, ErrEmailExists
		}
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}
	u := User{ID: uuid.NewString(), Email: email, DisplayName: displayName}
	p.accounts[u.ID] = &memoryAccount{user: u, password: password, claims: map[string]string{}}
	return &u, nil
}

func (p *MemoryProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.accounts {
		if strings.EqualFold(a.user.Email, email) && a.password == password {
			token := uuid.NewString()
			p.tokens[token] = a.user.ID
			return &Session{IDToken: token, RefreshToken: uuid.NewString(), User: a.user}, nil
		}
	}
	return nil, ErrInvalidCredentials
}

// IssueToken mints a token for an existing account without a password check.
func (p *MemoryProvider) IssueToken(userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[userID]; !ok {
		return "", ErrUnknownUser
	}
	token := uuid.NewString()
	p.tokens[token] = userID
	return token, nil
}

func (p *MemoryProvider) SignOut(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[userID]; !ok {
		return ErrUnknownUser
	}
	for token, uid := range p.tokens {
		if uid == userID {
			delete(p.tokens, token)
		}
	}
	return nil
}

func (p *MemoryProvider) VerifyToken(ctx context.Context, idToken string) (*User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	uid, ok := p.tokens[idToken]
	if !ok {
		return nil, ErrInvalidToken
	}
	u := p.accounts[uid].user
	return &u, nil
}

func (p *MemoryProvider) SetRoleClaim(ctx context.Context, userID, role string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[userID]
	if !ok {
		return ErrUnknownUser
	}
	a.claims["role"] = role
	return nil
}

// RoleClaim returns the mirrored role claim of a user.
func (p *MemoryProvider) RoleClaim(userID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.accounts[userID]; ok {
		return a.claims["role"]
	}
	return ""
}

func (p *MemoryProvider) LookupByEmail(ctx context.Context, email string) (*User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.accounts {
		if strings.EqualFold(a.user.Email, email) {
			u := a.user
			return &u, nil
		}
	}
	return nil, ErrUnknownUser
}
