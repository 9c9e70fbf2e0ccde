package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/internal/db/memdb"
	"doubtsolver-backend/internal/identity"
	"doubtsolver-backend/internal/metrics"
	"doubtsolver-backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type authFixture struct {
	provider *identity.MemoryProvider
	users    core.UserService
	router   *gin.Engine
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := memdb.New().Store()
	provider := identity.NewMemoryProvider()
	users := core.NewUserService(store.Users, provider, core.NewAuditService(store.Audit), zap.NewNop())
	auth := NewAuthMiddleware(provider, users, zap.NewNop())

	r := gin.New()
	r.Use(RecoveryMiddleware(zap.NewNop()))
	protected := r.Group("/", auth.VerifyToken())
	protected.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, CurrentUser(c))
	})
	protected.GET("/admin", RequireAdmin(zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return &authFixture{provider: provider, users: users, router: r}
}

func (f *authFixture) token(t *testing.T, email string) (string, *models.User) {
	t.Helper()
	ctx := context.Background()
	u, err := f.users.SignUp(ctx, models.SignUpRequest{Email: email, Password: "secret123", DisplayName: "T"})
	require.NoError(t, err)
	session, _, err := f.users.SignIn(ctx, models.SignInRequest{Email: email, Password: "secret123"})
	require.NoError(t, err)
	return session.IDToken, u
}

func (f *authFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestVerifyToken(t *testing.T) {
	f := newAuthFixture(t)
	token, u := f.token(t, "s@example.com")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
		{"scheme is case-insensitive", "bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := f.do(req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Contains(t, w.Body.String(), u.ID)
			}
		})
	}
}

func TestVerifyToken_QueryTokenOnlyForWebSocket(t *testing.T) {
	f := newAuthFixture(t)
	token, _ := f.token(t, "ws@example.com")

	req := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	assert.Equal(t, http.StatusOK, f.do(req).Code)
}

func TestVerifyToken_SignOutRevokes(t *testing.T) {
	f := newAuthFixture(t)
	token, u := f.token(t, "out@example.com")
	require.NoError(t, f.users.SignOut(context.Background(), u.ID))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)
}

func TestRequireAdmin_UsesStoredRole(t *testing.T) {
	f := newAuthFixture(t)
	token, u := f.token(t, "a@example.com")

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/admin", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		return r
	}

	// A role claim alone grants nothing.
	require.NoError(t, f.provider.SetRoleClaim(context.Background(), u.ID, string(models.RoleAdmin)))
	assert.Equal(t, http.StatusForbidden, f.do(req()).Code)

	_, err := f.users.SetRole(context.Background(), u.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, f.do(req()).Code)

	// Demotion takes effect on the next request with the same token.
	_, err = f.users.SetRole(context.Background(), u.ID, models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, f.do(req()).Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RecoveryMiddleware(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, w.Body.String())
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.NewMetrics("mw")
	r := gin.New()
	r.Use(MetricsMiddleware(m))
	r.GET("/doubts/:doubtId", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/doubts/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `mw_http_requests_total{method="GET",path="/doubts/:doubtId",status="200"} 1`), body)
	assert.Contains(t, body, `path="unmatched",status="404"`)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("https://app.example.com/, https://admin.example.com"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
