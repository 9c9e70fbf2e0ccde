package messagequeue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process MessageQueue. Messages published before a
// consumer attaches are buffered.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	closed bool
}

// NewMemoryQueue returns an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{queues: make(map[string]chan []byte)}
}

func (m *MemoryQueue) queue(name string) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		q = make(chan []byte, 256)
		m.queues[name] = q
	}
	return q
}

func (m *MemoryQueue) Publish(ctx context.Context, queueName string, body []byte) error {
	select {
	case m.queue(queueName) <- append([]byte(nil), body...):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MemoryQueue) Consume(ctx context.Context, queueName string, handler Handler) error {
	q := m.queue(queueName)
	for {
		select {
		case <-ctx.Done():
			return nil
		case body := <-q:
			_ = handler(ctx, body)
		}
	}
}

// Pending returns how many messages wait in queueName.
func (m *MemoryQueue) Pending(queueName string) int {
	return len(m.queue(queueName))
}

func (m *MemoryQueue) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var (
	_ MessageQueue = (*RabbitMQService)(nil)
	_ MessageQueue = (*MemoryQueue)(nil)
)
