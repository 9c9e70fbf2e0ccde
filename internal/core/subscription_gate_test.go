package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/db"
	"doubtsolver-backend/internal/db/memdb"
	"doubtsolver-backend/internal/models"
	"doubtsolver-backend/pkg/cache"
)

func seedPayment(t *testing.T, d *memdb.DB, userID string, status models.PaymentStatus, createdAt time.Time) {
	t.Helper()
	_, err := d.Store().Payments.Create(context.Background(), &models.Payment{
		UserID:    userID,
		UserEmail: userID + "@example.com",
		ProofURL:  "https://files.test/" + userID,
		Status:    status,
		CreatedAt: createdAt,
	})
	require.NoError(t, err)
}

func TestSubscriptionGate_NoPayments(t *testing.T) {
	d := memdb.New()
	gate := NewSubscriptionGate(d.Store().Payments, nil, 0, zap.NewNop(), nil)
	assert.False(t, gate.IsSubscribed(context.Background(), "u1"))
	assert.False(t, gate.IsSubscribed(context.Background(), ""))
}

func TestSubscriptionGate_RecencyGoverns(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		history  []models.PaymentStatus // oldest first
		expected bool
	}{
		{"single approved", []models.PaymentStatus{models.PaymentApproved}, true},
		{"single pending", []models.PaymentStatus{models.PaymentPending}, false},
		{"single rejected", []models.PaymentStatus{models.PaymentRejected}, false},
		{"approved then pending", []models.PaymentStatus{models.PaymentApproved, models.PaymentPending}, false},
		{"rejected then approved", []models.PaymentStatus{models.PaymentRejected, models.PaymentApproved}, true},
		{"approved then rejected", []models.PaymentStatus{models.PaymentApproved, models.PaymentRejected}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := memdb.New()
			for i, st := range tt.history {
				seedPayment(t, d, "u1", st, base.Add(time.Duration(i)*time.Hour))
			}
			// Another user's approval must not leak.
			seedPayment(t, d, "u2", models.PaymentApproved, base.Add(48*time.Hour))

			gate := NewSubscriptionGate(d.Store().Payments, nil, 0, zap.NewNop(), nil)
			assert.Equal(t, tt.expected, gate.IsSubscribed(context.Background(), "u1"))
		})
	}
}

func TestSubscriptionGate_FailsClosedAndDoesNotCacheErrors(t *testing.T) {
	d := memdb.New()
	seedPayment(t, d, "u1", models.PaymentApproved, time.Now())
	c := cache.NewMemoryCache()
	gate := NewSubscriptionGate(d.Store().Payments, c, time.Minute, zap.NewNop(), nil)

	d.FailOn(memdb.OpPaymentLatest, errors.New("unavailable"))
	assert.False(t, gate.IsSubscribed(context.Background(), "u1"))

	v, err := c.Get(context.Background(), "subscription:u1:0")
	require.NoError(t, err)
	assert.Empty(t, v)

	d.FailOn(memdb.OpPaymentLatest, nil)
	assert.True(t, gate.IsSubscribed(context.Background(), "u1"))
}

func TestSubscriptionGate_CacheReadThroughAndInvalidate(t *testing.T) {
	d := memdb.New()
	c := cache.NewMemoryCache()
	gate := NewSubscriptionGate(d.Store().Payments, c, time.Minute, zap.NewNop(), nil)
	ctx := context.Background()

	assert.False(t, gate.IsSubscribed(ctx, "u1"))
	v, _ := c.Get(ctx, "subscription:u1:0")
	assert.Equal(t, "0", v)

	// A write that bypasses the services is invisible until invalidation.
	seedPayment(t, d, "u1", models.PaymentApproved, time.Now())
	assert.False(t, gate.IsSubscribed(ctx, "u1"))

	gate.Invalidate(ctx, "u1")
	assert.True(t, gate.IsSubscribed(ctx, "u1"))
	v, _ = c.Get(ctx, "subscription:u1:1")
	assert.Equal(t, "1", v)
	gen, _ := c.Get(ctx, "subscription:gen:u1")
	assert.Equal(t, "1", gen)
}

func TestSubscriptionGate_SubmitAndReviewInvalidate(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t, "admin@example.com")
	student := env.signUp(t, "student@example.com")

	env.subscribe(t, student, admin)
	require.True(t, env.gate.IsSubscribed(env.ctx, student.ID))

	// A new pending submission supersedes the approval immediately.
	pending, err := env.payments.SubmitProof(env.ctx, student, fileOf(pdfHeader, 2048, "receipt.pdf"))
	require.NoError(t, err)
	assert.False(t, env.gate.IsSubscribed(env.ctx, student.ID))

	_, err = env.payments.ReviewPayment(env.ctx, admin, pending.ID, models.PaymentApproved, "ok")
	require.NoError(t, err)
	assert.True(t, env.gate.IsSubscribed(env.ctx, student.ID))
}

// pausingPayments holds LatestByUser after the store read until release is
// closed, so a review can land while a check is in flight.
type pausingPayments struct {
	db.PaymentRepository
	read    chan struct{}
	release chan struct{}
}

func (p *pausingPayments) LatestByUser(ctx context.Context, userID string) (*models.Payment, error) {
	latest, err := p.PaymentRepository.LatestByUser(ctx, userID)
	close(p.read)
	<-p.release
	return latest, err
}

func TestSubscriptionGate_InFlightCheckCannotOutliveInvalidation(t *testing.T) {
	tests := []struct {
		name     string
		before   models.PaymentStatus
		after    models.PaymentStatus
		expected bool
	}{
		{"approval revoked", models.PaymentApproved, models.PaymentRejected, false},
		{"pending approved", models.PaymentPending, models.PaymentApproved, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			d := memdb.New()
			payments := d.Store().Payments
			id, err := payments.Create(ctx, &models.Payment{
				UserID:    "u1",
				UserEmail: "u1@example.com",
				Status:    tt.before,
				CreatedAt: time.Now(),
			})
			require.NoError(t, err)

			c := cache.NewMemoryCache()
			paused := &pausingPayments{PaymentRepository: payments, read: make(chan struct{}), release: make(chan struct{})}
			slow := NewSubscriptionGate(paused, c, time.Minute, zap.NewNop(), nil)

			stale := make(chan bool)
			go func() { stale <- slow.IsSubscribed(ctx, "u1") }()
			<-paused.read

			require.NoError(t, payments.Review(ctx, id, db.PaymentReview{Status: tt.after, ReviewedBy: "admin", ReviewedAt: time.Now()}))
			fresh := NewSubscriptionGate(payments, c, time.Minute, zap.NewNop(), nil)
			fresh.Invalidate(ctx, "u1")

			close(paused.release)
			assert.Equal(t, tt.before == models.PaymentApproved, <-stale)

			assert.Equal(t, tt.expected, fresh.IsSubscribed(ctx, "u1"))
			assert.Equal(t, tt.expected, fresh.IsSubscribed(ctx, "u1"), "cached decision must match the store")
		})
	}
}
