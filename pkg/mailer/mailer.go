// Package mailer provides functionality to send emails.
//
// Three transports are available: plain SMTP (Mailtrap during development),
// the SendGrid v3 API, and a log-only mailer used when no transport is
// configured.
package mailer

import (
	"context"
	"errors"
	"strings"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// IsHTML reports whether the body looks like HTML. Only simple tags are checked.
func (m Message) IsHTML() bool {
	lower := strings.ToLower(m.Body)
	return strings.Contains(lower, "<html>") || strings.Contains(lower, "<p>")
}

// Validate checks that the message has a recipient and a subject.
func (m Message) Validate() error {
	if m.To == "" {
		return errors.New("recipient email address cannot be empty")
	}
	if m.Subject == "" {
		return errors.New("email subject cannot be empty")
	}
	return nil
}
