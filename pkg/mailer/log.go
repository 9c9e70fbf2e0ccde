package mailer

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LogMailer writes messages to the logger instead of sending them.
// It also keeps them in memory so tests can inspect what was sent.
type LogMailer struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []Message
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (l *LogMailer) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	l.sent = append(l.sent, msg)
	l.mu.Unlock()
	l.logger.Info("Email (log driver)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("bodyLength", len(msg.Body)))
	return nil
}

// Sent returns a copy of every message accepted so far.
func (l *LogMailer) Sent() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.sent...)
}

var (
	_ Mailer = (*SMTPMailer)(nil)
	_ Mailer = (*SendgridMailer)(nil)
	_ Mailer = (*LogMailer)(nil)
)
