package messagequeue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_PublishThenConsume(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, "events", []byte("one")))
	require.NoError(t, q.Publish(ctx, "events", []byte("two")))
	assert.Equal(t, 2, q.Pending("events"))

	got := make(chan string, 2)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, "events", func(ctx context.Context, body []byte) error {
			got <- string(body)
			if string(body) == "one" {
				return errors.New("rejected")
			}
			return nil
		})
	}()

	for _, want := range []string{"one", "two"} {
		select {
		case body := <-got:
			assert.Equal(t, want, body)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not stop on cancel")
	}
}
