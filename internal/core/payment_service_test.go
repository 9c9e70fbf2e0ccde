package core

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doubtsolver-backend/internal/db/memdb"
	"doubtsolver-backend/internal/models"
)

func TestSubmitProof(t *testing.T) {
	env := newTestEnv(t)
	student := env.signUp(t, "s@example.com")

	t.Run("rejects bad files", func(t *testing.T) {
		for name, f := range map[string]models.FileUpload{
			"empty":     {Filename: "a.png"},
			"too large": fileOf(pngSignature, 5*1024*1024+1, "big.png"),
			"gif":       fileOf([]byte("GIF89a"), 100, "anim.gif"),
			"text":      {Filename: "a.pdf", ContentType: "application/pdf", Data: []byte("not really a pdf")},
			"opaque":    {Filename: "a.png", ContentType: "image/png", Data: opaqueBytes},
		} {
			_, err := env.payments.SubmitProof(env.ctx, student, f)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve, name)
			assert.Equal(t, "proof", ve.Field)
		}
		assert.Empty(t, env.objects.Paths())
	})

	t.Run("accepts pdf", func(t *testing.T) {
		p, err := env.payments.SubmitProof(env.ctx, student, fileOf(pdfHeader, 4096, "receipt.pdf"))
		require.NoError(t, err)
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, models.PaymentPending, p.Status)
		assert.Equal(t, student.Email, p.UserEmail)
		assert.Nil(t, p.ReviewedAt)
		assert.Nil(t, p.ReviewedBy)
		assert.True(t, strings.HasPrefix(p.ProofPath, "paymentProofs/"+student.ID+"/"))
		assert.True(t, strings.HasSuffix(p.ProofPath, ".pdf"))
		assert.Equal(t, "https://files.test/"+p.ProofPath, p.ProofURL)

		obj, ok := env.objects.Get(p.ProofPath)
		require.True(t, ok)
		assert.Equal(t, "application/pdf", obj.ContentType)

		events := env.notifier.OfType(EventPaymentSubmitted)
		require.Len(t, events, 1)
		assert.Equal(t, p.ID, events[0].TargetID)
	})

	t.Run("repeated submissions create new records", func(t *testing.T) {
		_, err := env.payments.SubmitProof(env.ctx, student, fileOf(pngSignature, 512, "second.png"))
		require.NoError(t, err)
		mine, err := env.payments.ListMyPayments(env.ctx, student)
		require.NoError(t, err)
		assert.Len(t, mine, 2)
	})
}

func TestSubmitProof_DeletesProofWhenRecordFails(t *testing.T) {
	env := newTestEnv(t)
	student := env.signUp(t, "s@example.com")
	env.db.FailOn(memdb.OpPaymentCreate, errors.New("unavailable"))

	_, err := env.payments.SubmitProof(env.ctx, student, fileOf(jpegHeader, 100, "r.jpg"))
	assert.ErrorIs(t, err, ErrRemote)
	assert.Empty(t, env.objects.Paths())
}

func TestReviewPayment(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t, "admin@example.com")
	student := env.signUp(t, "s@example.com")
	p, err := env.payments.SubmitProof(env.ctx, student, fileOf(jpegHeader, 100, "r.jpg"))
	require.NoError(t, err)

	_, err = env.payments.ReviewPayment(env.ctx, student, p.ID, models.PaymentApproved, "")
	assert.ErrorIs(t, err, ErrPermission)
	_, err = env.payments.ReviewPayment(env.ctx, admin, p.ID, models.PaymentPending, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.payments.ReviewPayment(env.ctx, admin, "missing", models.PaymentApproved, "")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	_, err = env.payments.ReviewPayment(env.ctx, admin, p.ID, models.PaymentRejected, strings.Repeat("n", 2001))
	assert.ErrorIs(t, err, ErrValidation)

	rejected, err := env.payments.ReviewPayment(env.ctx, admin, p.ID, models.PaymentRejected, "  amount mismatch ")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRejected, rejected.Status)
	assert.Equal(t, "amount mismatch", rejected.Notes)
	require.NotNil(t, rejected.ReviewedBy)
	assert.Equal(t, admin.ID, *rejected.ReviewedBy)
	require.NotNil(t, rejected.ReviewedAt)
	assert.Equal(t, p.ProofURL, rejected.ProofURL)

	// Re-reviewing overwrites the earlier decision.
	approved, err := env.payments.ReviewPayment(env.ctx, admin, p.ID, models.PaymentApproved, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentApproved, approved.Status)
	assert.Empty(t, approved.Notes)

	status, err := env.payments.GetPaymentStatus(env.ctx, student)
	require.NoError(t, err)
	assert.Equal(t, "approved", status.Status)
	assert.True(t, status.Subscribed)

	events := env.notifier.OfType(EventPaymentReviewed)
	require.Len(t, events, 2)
	assert.Equal(t, "rejected", events[0].Attributes["status"])
	assert.Equal(t, student.Email, events[1].UserEmail)

	var actions []string
	for _, l := range env.db.AuditLogs() {
		actions = append(actions, l.Action)
	}
	assert.Contains(t, actions, models.AuditPaymentSubmit)
	assert.Contains(t, actions, models.AuditPaymentReview)
}

func TestReviewPayment_ConcurrentReviewsLastWriteWins(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.admin(t, "a1@example.com")
	a2 := env.admin(t, "a2@example.com")
	student := env.signUp(t, "s@example.com")
	p, err := env.payments.SubmitProof(env.ctx, student, fileOf(jpegHeader, 100, "r.jpg"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, rv := range []struct {
		actor    *models.User
		decision models.PaymentStatus
	}{{a1, models.PaymentApproved}, {a2, models.PaymentRejected}} {
		rv := rv
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.payments.ReviewPayment(env.ctx, rv.actor, p.ID, rv.decision, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := env.db.Store().Payments.GetByID(env.ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, final.ReviewedBy)
	// Both reviews succeed; the stored decision belongs to whichever wrote last.
	switch *final.ReviewedBy {
	case a1.ID:
		assert.Equal(t, models.PaymentApproved, final.Status)
	case a2.ID:
		assert.Equal(t, models.PaymentRejected, final.Status)
	default:
		t.Fatalf("unexpected reviewer %q", *final.ReviewedBy)
	}
}

func TestGetPaymentStatus_None(t *testing.T) {
	env := newTestEnv(t)
	student := env.signUp(t, "s@example.com")
	status, err := env.payments.GetPaymentStatus(env.ctx, student)
	require.NoError(t, err)
	assert.Equal(t, "none", status.Status)
	assert.False(t, status.Subscribed)
	assert.Nil(t, status.Latest)
}

func TestListPayments_AdminFilters(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin(t, "admin@example.com")
	alice := env.signUp(t, "alice@example.com")
	bob := env.signUp(t, "bob@example.com")
	pa, err := env.payments.SubmitProof(env.ctx, alice, fileOf(jpegHeader, 100, "a.jpg"))
	require.NoError(t, err)
	_, err = env.payments.SubmitProof(env.ctx, bob, fileOf(jpegHeader, 100, "b.jpg"))
	require.NoError(t, err)
	_, err = env.payments.ReviewPayment(env.ctx, admin, pa.ID, models.PaymentApproved, "")
	require.NoError(t, err)

	pending, err := env.payments.ListPayments(env.ctx, admin, models.PaymentFilter{Status: models.PaymentPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bob.ID, pending[0].UserID)

	byEmail, err := env.payments.ListPayments(env.ctx, admin, models.PaymentFilter{Search: "ALICE"})
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, pa.ID, byEmail[0].ID)

	_, err = env.payments.ListPayments(env.ctx, admin, models.PaymentFilter{Status: "refunded"})
	assert.ErrorIs(t, err, ErrValidation)

	instr := env.payments.Instructions()
	assert.Equal(t, "tutor@upi", instr.UPIID)
	assert.Equal(t, int64(5*1024*1024), instr.MaxUploadBytes)
	assert.ElementsMatch(t, []string{"image/jpeg", "image/png", "application/pdf"}, instr.AcceptedTypes)
}
