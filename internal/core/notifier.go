package core

import (
	"context"
	"time"
)

// EventType names a notification event.
type EventType string

const (
	EventPaymentSubmitted      EventType = "payment.submitted"
	EventPaymentReviewed       EventType = "payment.reviewed"
	EventDoubtStatusChanged    EventType = "doubt.status_changed"
	EventDoubtSolutionAttached EventType = "doubt.solution_attached"
	EventMessagePosted         EventType = "message.posted"
)

// Event is a domain change worth telling a student about.
type Event struct {
	Type       EventType         `json:"type"`
	UserID     string            `json:"userId"`
	UserEmail  string            `json:"userEmail"`
	TargetID   string            `json:"targetId"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// Notifier delivers events. Failures are the caller's to log; they never
// fail the operation that produced the event.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) error { return nil }

// NopNotifier discards every event.
var NopNotifier Notifier = nopNotifier{}
