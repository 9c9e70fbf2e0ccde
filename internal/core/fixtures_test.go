package core

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/db/memdb"
	"doubtsolver-backend/internal/identity"
	"doubtsolver-backend/internal/metrics"
	"doubtsolver-backend/internal/models"
	"doubtsolver-backend/internal/storage"
	"doubtsolver-backend/pkg/cache"
)

var (
	pngSignature = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegHeader   = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
	pdfHeader    = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	// opaqueBytes matches no known signature and is not text.
	opaqueBytes = bytes.Repeat([]byte{0x13, 0x37, 0xfe, 0xed, 0x00, 0x9c, 0x42, 0x07}, 64)
)

func fileOf(header []byte, size int, name string) models.FileUpload {
	data := make([]byte, 0, size)
	data = append(data, header...)
	if size > len(data) {
		data = append(data, bytes.Repeat([]byte{0}, size-len(data))...)
	}
	return models.FileUpload{Filename: name, Data: data}
}

func pngFile(size int) models.FileUpload { return fileOf(pngSignature, size, "photo.png") }

// stepClock returns strictly increasing times, one second apart.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, e Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

func (n *recordingNotifier) OfType(t EventType) []Event {
	var out []Event
	for _, e := range n.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// testEnv wires every service over in-memory adapters.
type testEnv struct {
	ctx      context.Context
	db       *memdb.DB
	objects  *storage.MemoryStore
	provider *identity.MemoryProvider
	cache    *cache.MemoryCache
	notifier *recordingNotifier
	clock    *stepClock
	metrics  *metrics.Metrics

	users     UserService
	gate      SubscriptionGate
	doubts    DoubtService
	payments  PaymentService
	dashboard DashboardService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		ctx:      context.Background(),
		db:       memdb.New(),
		objects:  storage.NewMemoryStore("https://files.test"),
		provider: identity.NewMemoryProvider(),
		cache:    cache.NewMemoryCache(),
		notifier: &recordingNotifier{},
		clock:    newStepClock(),
		metrics:  metrics.NewMetrics("test"),
	}
	logger := zap.NewNop()
	store := env.db.Store()
	audit := NewAuditService(store.Audit)

	users := NewUserService(store.Users, env.provider, audit, logger)
	users.(*userService).now = env.clock.Now
	env.users = users

	env.gate = NewSubscriptionGate(store.Payments, env.cache, time.Minute, logger, env.metrics)

	doubts := NewDoubtService(DoubtServiceDeps{
		Doubts:   store.Doubts,
		Messages: store.Messages,
		Objects:  env.objects,
		Gate:     env.gate,
		Audit:    audit,
		Notifier: env.notifier,
		Logger:   logger,
		Metrics:  env.metrics,
	})
	doubts.(*doubtService).now = env.clock.Now
	env.doubts = doubts

	payments := NewPaymentService(PaymentServiceDeps{
		Payments: store.Payments,
		Objects:  env.objects,
		Gate:     env.gate,
		Audit:    audit,
		Notifier: env.notifier,
		UPIID:    "tutor@upi",
		Logger:   logger,
		Metrics:  env.metrics,
	})
	payments.(*paymentService).now = env.clock.Now
	env.payments = payments

	env.dashboard = NewDashboardService(store, payments, logger)
	return env
}

func (e *testEnv) signUp(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := e.users.SignUp(e.ctx, models.SignUpRequest{Email: email, Password: "secret123", DisplayName: "Test " + email})
	require.NoError(t, err)
	return u
}

func (e *testEnv) admin(t *testing.T, email string) *models.User {
	t.Helper()
	u := e.signUp(t, email)
	promoted, err := e.users.SetRole(e.ctx, u.ID, models.RoleAdmin)
	require.NoError(t, err)
	return promoted
}

// subscribe submits a proof for student and has reviewer approve it.
func (e *testEnv) subscribe(t *testing.T, student, reviewer *models.User) *models.Payment {
	t.Helper()
	p, err := e.payments.SubmitProof(e.ctx, student, fileOf(jpegHeader, 1024, "receipt.jpg"))
	require.NoError(t, err)
	approved, err := e.payments.ReviewPayment(e.ctx, reviewer, p.ID, models.PaymentApproved, "")
	require.NoError(t, err)
	return approved
}
