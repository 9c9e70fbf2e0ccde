package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/internal/db/memdb"
	"doubtsolver-backend/internal/identity"
	"doubtsolver-backend/internal/metrics"
	"doubtsolver-backend/internal/middleware"
	"doubtsolver-backend/internal/models"
	"doubtsolver-backend/internal/storage"
	"doubtsolver-backend/pkg/cache"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 512)...)
	jpegBytes = append([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), make([]byte, 512)...)
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiEnv struct {
	t       *testing.T
	db      *memdb.DB
	users   core.UserService
	metrics *metrics.Metrics
	router  *gin.Engine
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	logger := zap.NewNop()
	database := memdb.New()
	store := database.Store()
	provider := identity.NewMemoryProvider()
	objects := storage.NewMemoryStore("https://files.test")
	m := metrics.NewMetrics("api_test")
	audit := core.NewAuditService(store.Audit)

	users := core.NewUserService(store.Users, provider, audit, logger)
	gate := core.NewSubscriptionGate(store.Payments, cache.NewMemoryCache(), time.Minute, logger, m)
	limits := core.DefaultUploadLimits()
	doubts := core.NewDoubtService(core.DoubtServiceDeps{
		Doubts: store.Doubts, Messages: store.Messages, Objects: objects, Gate: gate,
		Audit: audit, Limits: limits, Logger: logger, Metrics: m,
	})
	payments := core.NewPaymentService(core.PaymentServiceDeps{
		Payments: store.Payments, Objects: objects, Gate: gate, Audit: audit,
		UPIID: "tutor@upi", Logger: logger, Metrics: m,
	})

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger), middleware.MetricsMiddleware(m))
	SetupRoutes(router, RouteDeps{
		Logger:    logger,
		Verifier:  provider,
		Users:     users,
		Doubts:    doubts,
		Payments:  payments,
		Dashboard: core.NewDashboardService(store, payments, logger),
		Limits:    limits,
		Metrics:   m,
	})
	return &apiEnv{t: t, db: database, users: users, metrics: m, router: router}
}

func (e *apiEnv) do(method, path, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) doJSON(method, path, token string, v interface{}) *httptest.ResponseRecorder {
	var body []byte
	if v != nil {
		var err error
		body, err = json.Marshal(v)
		require.NoError(e.t, err)
	}
	return e.do(method, path, token, body, "application/json")
}

// account signs up through the API and returns a fresh ID token.
func (e *apiEnv) account(email string) (string, *models.User) {
	e.t.Helper()
	w := e.doJSON(http.MethodPost, "/api/v1/auth/signup", "", models.SignUpRequest{Email: email, Password: "secret123", DisplayName: "Test"})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())

	w = e.doJSON(http.MethodPost, "/api/v1/auth/signin", "", models.SignInRequest{Email: email, Password: "secret123"})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	var session SessionResponse
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &session))
	return session.IDToken, session.User
}

func (e *apiEnv) adminAccount(email string) string {
	e.t.Helper()
	token, u := e.account(email)
	_, err := e.users.SetRole(context.Background(), u.ID, models.RoleAdmin)
	require.NoError(e.t, err)
	return token
}

type formFile struct {
	field, name string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *apiEnv) submitProof(token string) *models.Payment {
	e.t.Helper()
	body, ct := multipartBody(e.t, nil, formFile{"proof", "receipt.jpg", jpegBytes})
	w := e.do(http.MethodPost, "/api/v1/payments", token, body, ct)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[models.Payment](e.t, w)
	return &p
}

func TestHealthAndMetrics(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"UP"`)

	w = env.do(http.MethodGet, "/metrics", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `api_test_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestAuthFlow(t *testing.T) {
	env := newAPIEnv(t)

	w := env.doJSON(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{"email": "not-an-email", "password": "secret123", "displayName": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email", decode[ErrorResponse](t, w).Field)

	token, u := env.account("s@example.com")
	assert.Equal(t, models.RoleStudent, u.Role)

	w = env.doJSON(http.MethodPost, "/api/v1/auth/signup", "", models.SignUpRequest{Email: "s@example.com", Password: "secret123", DisplayName: "Again"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.doJSON(http.MethodPost, "/api/v1/auth/signin", "", models.SignInRequest{Email: "s@example.com", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/v1/users/me", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, u.ID, decode[models.User](t, w).ID)

	w = env.do(http.MethodPost, "/api/v1/users/initialize", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[InitializeResponse](t, w).Created)

	w = env.do(http.MethodPost, "/api/v1/auth/signout", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, "/api/v1/users/me", token, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateDoubt_UnsubscribedRedirectsToPay(t *testing.T) {
	env := newAPIEnv(t)
	token, _ := env.account("s@example.com")

	body, ct := multipartBody(t, map[string]string{"title": "Q", "description": "D"})
	w := env.do(http.MethodPost, "/api/v1/doubts", token, body, ct)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "/pay", decode[ErrorResponse](t, w).Redirect)

	w = env.do(http.MethodGet, "/api/v1/payments/status", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "none", decode[core.PaymentStatusView](t, w).Status)
}

func TestStudentCannotReachAdminRoutes(t *testing.T) {
	env := newAPIEnv(t)
	token, _ := env.account("s@example.com")

	for _, path := range []string{"/api/v1/admin/dashboard", "/api/v1/admin/payments", "/api/v1/admin/doubts"} {
		w := env.do(http.MethodGet, path, token, nil, "")
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}
	w := env.doJSON(http.MethodPost, "/api/v1/admin/payments/anything/review", token, models.ReviewPaymentRequest{Status: models.PaymentApproved})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodGet, "/api/v1/admin/payments", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEndToEnd(t *testing.T) {
	env := newAPIEnv(t)
	student, _ := env.account("s@example.com")
	other, _ := env.account("o@example.com")
	admin := env.adminAccount("a@example.com")

	w := env.do(http.MethodGet, "/api/v1/payments/instructions", student, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tutor@upi", decode[core.PaymentInstructions](t, w).UPIID)

	payment := env.submitProof(student)
	assert.Equal(t, models.PaymentPending, payment.Status)

	w = env.doJSON(http.MethodPost, "/api/v1/admin/payments/"+payment.ID+"/review", admin, map[string]string{"status": "pending"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "status", decode[ErrorResponse](t, w).Field)

	w = env.doJSON(http.MethodPost, "/api/v1/admin/payments/missing/review", admin, models.ReviewPaymentRequest{Status: models.PaymentApproved})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.doJSON(http.MethodPost, "/api/v1/admin/payments/"+payment.ID+"/review", admin, models.ReviewPaymentRequest{Status: models.PaymentApproved})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/v1/admin/payments?status=approved", admin, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Payment](t, w), 1)

	body, ct := multipartBody(t,
		map[string]string{"title": "Projectile range", "description": "Why 45 degrees?", "subject": "physics"},
		formFile{"images", "a.png", pngBytes},
	)
	w = env.do(http.MethodPost, "/api/v1/doubts", student, body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	doubt := decode[models.Doubt](t, w)
	assert.Equal(t, models.DoubtOpen, doubt.Status)
	assert.Len(t, doubt.Images, 1)

	w = env.do(http.MethodGet, "/api/v1/doubts/"+doubt.ID, other, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.doJSON(http.MethodPut, "/api/v1/admin/doubts/"+doubt.ID+"/status", admin, models.UpdateDoubtStatusRequest{Status: models.DoubtInProgress})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.doJSON(http.MethodPost, "/api/v1/admin/doubts/"+doubt.ID+"/messages", admin, models.PostMessageRequest{Text: "Looking at it"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.RoleAdmin, decode[models.Message](t, w).SenderRole)

	w = env.doJSON(http.MethodPost, "/api/v1/doubts/"+doubt.ID+"/messages", student, models.PostMessageRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "text", decode[ErrorResponse](t, w).Field)

	notes := "Differentiate R(θ) and set it to zero."
	link := "https://meet.example.com/room"
	edit := models.UpdateDoubtRequest{
		Status:                models.DoubtSolved,
		AttachSolutionRequest: models.AttachSolutionRequest{SolutionNotes: &notes, LiveSessionLink: &link},
	}
	w = env.doJSON(http.MethodPut, "/api/v1/admin/doubts/"+doubt.ID, student, edit)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = env.doJSON(http.MethodPut, "/api/v1/admin/doubts/"+doubt.ID, admin, map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.doJSON(http.MethodPut, "/api/v1/admin/doubts/"+doubt.ID, admin, edit)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	edited := decode[models.Doubt](t, w)
	assert.Equal(t, models.DoubtSolved, edited.Status)
	assert.Equal(t, link, edited.LiveSessionLink)

	w = env.do(http.MethodGet, "/api/v1/doubts/solved", student, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	solved := decode[[]models.Doubt](t, w)
	require.Len(t, solved, 1)
	assert.Equal(t, notes, solved[0].SolutionNotes)

	w = env.do(http.MethodGet, "/api/v1/doubts/"+doubt.ID+"/messages", student, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Message](t, w), 1)

	w = env.do(http.MethodGet, "/api/v1/dashboard", student, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	dash := decode[core.StudentDashboard](t, w)
	assert.True(t, dash.Subscription.Subscribed)
	assert.Equal(t, 1, dash.SolvedCount)

	w = env.do(http.MethodGet, "/api/v1/admin/dashboard", admin, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decode[core.AdminStats](t, w).TotalUsers)
}

func TestSubmitProof_MissingAndUnsupportedFiles(t *testing.T) {
	env := newAPIEnv(t)
	token, _ := env.account("s@example.com")

	body, ct := multipartBody(t, map[string]string{"note": "x"})
	w := env.do(http.MethodPost, "/api/v1/payments", token, body, ct)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "proof", decode[ErrorResponse](t, w).Field)

	body, ct = multipartBody(t, nil, formFile{"proof", "notes.txt", []byte("just some text")})
	w = env.do(http.MethodPost, "/api/v1/payments", token, body, ct)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "proof", decode[ErrorResponse](t, w).Field)
}

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &core.ValidationError{Field: "title", Reason: "must not be empty"}, http.StatusBadRequest},
		{"permission", &core.PermissionError{Reason: "administrator role required"}, http.StatusForbidden},
		{"not subscribed", &core.PermissionError{Reason: core.ReasonNotSubscribed}, http.StatusForbidden},
		{"not found", core.ErrDoubtNotFound, http.StatusNotFound},
		{"credentials", identity.ErrInvalidCredentials, http.StatusUnauthorized},
		{"token", identity.ErrInvalidToken, http.StatusUnauthorized},
		{"remote", &core.RemoteError{Op: "list doubts", Err: errors.New("deadline exceeded")}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := mapErrorToStatus(tt.err)
			assert.Equal(t, tt.want, status)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestAdminPaymentsStream(t *testing.T) {
	env := newAPIEnv(t)
	student, _ := env.account("s@example.com")
	admin := env.adminAccount("a@example.com")

	srv := httptest.NewServer(env.router)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/admin/payments/ws?status=pending"

	// Students are refused before the upgrade.
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + student}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + admin}})
	require.NoError(t, err)

	type frame struct {
		Type string           `json:"type"`
		Data []models.Payment `json:"data"`
	}
	read := func() frame {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}

	first := read()
	assert.Equal(t, FrameSnapshot, first.Type)
	assert.Empty(t, first.Data)

	env.submitProof(student)
	for {
		f := read()
		if f.Type == FrameSnapshot && len(f.Data) == 1 {
			assert.Equal(t, models.PaymentPending, f.Data[0].Status)
			break
		}
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	for {
		if read().Type == FramePong {
			break
		}
	}

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return env.db.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
