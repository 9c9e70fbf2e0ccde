// Package notify delivers domain events to students. The API server publishes
// events to a queue; a separate worker turns them into emails.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/pkg/messagequeue"
)

// QueueNotifier publishes events as JSON to a message queue.
type QueueNotifier struct {
	queue     messagequeue.MessageQueue
	queueName string
	logger    *zap.Logger
}

func NewQueueNotifier(queue messagequeue.MessageQueue, queueName string, logger *zap.Logger) *QueueNotifier {
	return &QueueNotifier{queue: queue, queueName: queueName, logger: logger}
}

func (n *QueueNotifier) Notify(ctx context.Context, event core.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}
	if err := n.queue.Publish(ctx, n.queueName, body); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

// LogNotifier only logs events. It is used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event core.Event) error {
	n.logger.Info("Notification",
		zap.String("type", string(event.Type)),
		zap.String("userId", event.UserID),
		zap.String("targetId", event.TargetID),
		zap.Any("attributes", event.Attributes))
	return nil
}

var (
	_ core.Notifier = (*QueueNotifier)(nil)
	_ core.Notifier = (*LogNotifier)(nil)
)
