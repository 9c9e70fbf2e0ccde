package notify

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/pkg/mailer"
	"doubtsolver-backend/pkg/messagequeue"
)

//go:embed templates/*.txt
var templateFS embed.FS

// bodyTemplates maps a template name to the body layout wrapped around it.
var bodyTemplates = parseTemplates()

func parseTemplates() map[string]*template.Template {
	names := []string{
		"payment_submitted", "payment_approved", "payment_rejected",
		"doubt_status_changed", "doubt_solution_attached", "message_posted",
	}
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		out[name] = template.Must(template.ParseFS(templateFS, "templates/_base.txt", "templates/"+name+".txt")).
			Option("missingkey=error")
	}
	return out
}

// emailData is what the body templates render.
type emailData struct {
	Title  string
	Status string
	Notes  string
	Link   string
}

// Worker consumes events from the queue and emails the affected student.
type Worker struct {
	queue     messagequeue.MessageQueue
	queueName string
	mailer    mailer.Mailer
	clientURL string
	logger    *zap.Logger
}

// NewWorker creates a Worker. clientURL is used to build links back to the app.
func NewWorker(queue messagequeue.MessageQueue, queueName string, m mailer.Mailer, clientURL string, logger *zap.Logger) *Worker {
	return &Worker{
		queue:     queue,
		queueName: queueName,
		mailer:    m,
		clientURL: strings.TrimRight(clientURL, "/"),
		logger:    logger,
	}
}

// Run blocks until ctx is done or the queue fails.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Notification worker started", zap.String("queue", w.queueName))
	return w.queue.Consume(ctx, w.queueName, w.Handle)
}

// Handle processes one queued event. Undecodable and unknown events are
// dropped with an error so the broker does not redeliver them.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var event core.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if event.UserEmail == "" {
		w.logger.Warn("Event has no recipient; skipping", zap.String("type", string(event.Type)), zap.String("targetId", event.TargetID))
		return nil
	}
	msg, err := w.Render(event)
	if err != nil {
		return err
	}
	if err := w.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s email: %w", event.Type, err)
	}
	w.logger.Info("Notification email sent", zap.String("type", string(event.Type)), zap.String("userId", event.UserID))
	return nil
}

// Render builds the email for event. Subjects are formatted here; bodies
// come from the embedded templates.
func (w *Worker) Render(event core.Event) (mailer.Message, error) {
	attr := func(k string) string { return event.Attributes[k] }
	msg := mailer.Message{To: event.UserEmail}
	data := emailData{
		Title:  attr("title"),
		Status: strings.ReplaceAll(attr("status"), "_", " "),
		Notes:  attr("notes"),
		Link:   w.link("/doubts/" + event.TargetID),
	}

	var name string
	switch event.Type {
	case core.EventPaymentSubmitted:
		name = "payment_submitted"
		msg.Subject = "We received your payment proof"
		data.Link = w.link("/pay")
	case core.EventPaymentReviewed:
		if attr("status") == "approved" {
			name = "payment_approved"
			msg.Subject = "Your subscription is active"
			data.Link = w.link("/ask")
		} else {
			name = "payment_rejected"
			msg.Subject = "Your payment could not be verified"
			data.Link = w.link("/pay")
		}
	case core.EventDoubtStatusChanged:
		name = "doubt_status_changed"
		msg.Subject = fmt.Sprintf("Your doubt %q is now %s", data.Title, data.Status)
	case core.EventDoubtSolutionAttached:
		name = "doubt_solution_attached"
		msg.Subject = fmt.Sprintf("A solution was added to %q", data.Title)
	case core.EventMessagePosted:
		name = "message_posted"
		msg.Subject = fmt.Sprintf("New reply on %q", data.Title)
	default:
		return mailer.Message{}, fmt.Errorf("unknown event type %q", event.Type)
	}

	var buf bytes.Buffer
	if err := bodyTemplates[name].ExecuteTemplate(&buf, "_base.txt", data); err != nil {
		return mailer.Message{}, fmt.Errorf("render %s email: %w", name, err)
	}
	msg.Body = buf.String()
	return msg, nil
}

func (w *Worker) link(path string) string {
	return w.clientURL + path
}
