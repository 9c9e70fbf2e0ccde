package db

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"doubtsolver-backend/internal/models"
)

func TestMatchPayment(t *testing.T) {
	p := &models.Payment{UserID: "u1", UserEmail: "Asha@Example.com", Status: models.PaymentPending}

	assert.True(t, MatchPayment(p, models.PaymentFilter{}))
	assert.True(t, MatchPayment(p, models.PaymentFilter{Search: "asha@"}))
	assert.True(t, MatchPayment(p, models.PaymentFilter{UserID: "u1", Status: models.PaymentPending}))
	assert.False(t, MatchPayment(p, models.PaymentFilter{Status: models.PaymentApproved}))
	assert.False(t, MatchPayment(p, models.PaymentFilter{UserID: "u2"}))
	assert.False(t, MatchPayment(p, models.PaymentFilter{Search: "ravi"}))
}

func TestMatchDoubt(t *testing.T) {
	d := &models.Doubt{
		UserID:    "u1",
		UserEmail: "asha@example.com",
		Title:     "Torque on a lever",
		Subject:   models.SubjectPhysics,
		Status:    models.DoubtOpen,
	}

	assert.True(t, MatchDoubt(d, models.DoubtFilter{Search: "TORQUE"}))
	assert.True(t, MatchDoubt(d, models.DoubtFilter{Search: "example"}))
	assert.True(t, MatchDoubt(d, models.DoubtFilter{Subject: models.SubjectPhysics, Status: models.DoubtOpen}))
	assert.False(t, MatchDoubt(d, models.DoubtFilter{Subject: models.SubjectMath}))
	assert.False(t, MatchDoubt(d, models.DoubtFilter{Status: models.DoubtSolved}))
	assert.False(t, MatchDoubt(d, models.DoubtFilter{Search: "enthalpy"}))
}

func TestTruncate(t *testing.T) {
	items := []int{1, 2, 3}
	assert.Equal(t, []int{1, 2}, truncate(items, 2))
	assert.Equal(t, items, truncate(items, 0))
	assert.Equal(t, items, truncate(items, 10))
}
