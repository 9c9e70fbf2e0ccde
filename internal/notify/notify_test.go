package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/pkg/mailer"
	"doubtsolver-backend/pkg/messagequeue"
)

func TestQueueNotifier_PublishesJSON(t *testing.T) {
	q := messagequeue.NewMemoryQueue()
	n := NewQueueNotifier(q, "notifications", zap.NewNop())

	event := core.Event{
		Type:       core.EventPaymentReviewed,
		UserID:     "u1",
		UserEmail:  "u1@example.com",
		TargetID:   "p1",
		Attributes: map[string]string{"status": "approved"},
		OccurredAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, n.Notify(context.Background(), event))
	assert.Equal(t, 1, q.Pending("notifications"))
}

func TestWorker_EndToEnd(t *testing.T) {
	q := messagequeue.NewMemoryQueue()
	m := mailer.NewLogMailer(zap.NewNop())
	n := NewQueueNotifier(q, "notifications", zap.NewNop())
	w := NewWorker(q, "notifications", m, "https://app.example.com/", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, n.Notify(ctx, core.Event{
		Type:       core.EventDoubtSolutionAttached,
		UserEmail:  "s@example.com",
		TargetID:   "d1",
		Attributes: map[string]string{"title": "Torque"},
	}))

	assert.Eventually(t, func() bool { return len(m.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	sent := m.Sent()[0]
	assert.Equal(t, "s@example.com", sent.To)
	assert.Equal(t, `A solution was added to "Torque"`, sent.Subject)
	assert.Contains(t, sent.Body, "https://app.example.com/doubts/d1")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_Handle(t *testing.T) {
	m := mailer.NewLogMailer(zap.NewNop())
	w := NewWorker(messagequeue.NewMemoryQueue(), "q", m, "https://app.example.com", zap.NewNop())
	ctx := context.Background()

	assert.Error(t, w.Handle(ctx, []byte("{not json")))

	unknown, _ := json.Marshal(core.Event{Type: "doubt.deleted", UserEmail: "a@example.com"})
	assert.Error(t, w.Handle(ctx, unknown))

	noRecipient, _ := json.Marshal(core.Event{Type: core.EventPaymentSubmitted})
	assert.NoError(t, w.Handle(ctx, noRecipient))
	assert.Empty(t, m.Sent())
}

func TestWorker_Render(t *testing.T) {
	w := NewWorker(nil, "", nil, "https://app.example.com", zap.NewNop())

	msg, err := w.Render(core.Event{Type: core.EventPaymentReviewed, UserEmail: "a@x.io", Attributes: map[string]string{"status": "rejected", "notes": "blurry"}})
	require.NoError(t, err)
	assert.Equal(t, "Your payment could not be verified", msg.Subject)
	assert.Contains(t, msg.Body, "Reviewer notes: blurry")
	assert.Contains(t, msg.Body, "https://app.example.com/pay")

	msg, err = w.Render(core.Event{Type: core.EventDoubtStatusChanged, UserEmail: "a@x.io", TargetID: "d9", Attributes: map[string]string{"title": "Q", "status": "in_progress"}})
	require.NoError(t, err)
	assert.Equal(t, `Your doubt "Q" is now in progress`, msg.Subject)
	assert.True(t, strings.HasPrefix(msg.Body, "Hi,\n"))
	assert.Contains(t, msg.Body, `Your doubt "Q" is now in progress.`)
	assert.Contains(t, msg.Body, "https://app.example.com/doubts/d9")
	assert.True(t, strings.HasSuffix(msg.Body, "The Doubt Solver team\n"))

	msg, err = w.Render(core.Event{Type: core.EventPaymentReviewed, UserEmail: "a@x.io", Attributes: map[string]string{"status": "approved"}})
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "https://app.example.com/ask")
	assert.NotContains(t, msg.Body, "Reviewer notes")

	for _, typ := range []core.EventType{core.EventPaymentSubmitted, core.EventDoubtSolutionAttached, core.EventMessagePosted} {
		msg, err = w.Render(core.Event{Type: typ, UserEmail: "a@x.io", TargetID: "d9", Attributes: map[string]string{"title": "Q"}})
		require.NoError(t, err, typ)
		assert.NotContains(t, msg.Body, "<no value>", typ)
	}

	_, err = w.Render(core.Event{Type: "unknown", UserEmail: "a@x.io"})
	assert.Error(t, err)
}

type failingMailer struct{}

func (failingMailer) Send(context.Context, mailer.Message) error { return errors.New("smtp down") }

func TestWorker_MailFailureIsReturned(t *testing.T) {
	w := NewWorker(nil, "", failingMailer{}, "", zap.NewNop())
	body, _ := json.Marshal(core.Event{Type: core.EventMessagePosted, UserEmail: "a@x.io", Attributes: map[string]string{"title": "Q"}})
	assert.ErrorContains(t, w.Handle(context.Background(), body), "smtp down")
}
