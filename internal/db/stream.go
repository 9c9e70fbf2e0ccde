package db

import (
	"context"
	"sync"
	"time"
)

// Snapshot is the full result set of a live query at one point in time.
type Snapshot[T any] struct {
	Items    []T
	ReadTime time.Time
}

// Stream is a cancellable live query. Snapshots arrive on Events in the store's
// commit order; the channel is closed when the stream ends for any reason.
// Consumers must call Close when they lose interest.
type Stream[T any] interface {
	Events() <-chan Snapshot[T]
	// Err reports why the stream ended, or nil if it was closed or is still running.
	Err() error
	// Close stops the stream and releases its resources. It is safe to call more than once.
	Close()
}

// pump is the shared plumbing behind every Stream implementation.
type pump[T any] struct {
	events chan Snapshot[T]
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func newPump[T any](parent context.Context) (*pump[T], context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &pump[T]{
		events: make(chan Snapshot[T]),
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

func (p *pump[T]) Events() <-chan Snapshot[T] { return p.events }

func (p *pump[T]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *pump[T]) Close() {
	p.cancel()
	<-p.done
}

func (p *pump[T]) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// send delivers a snapshot unless the stream is cancelled first.
func (p *pump[T]) send(ctx context.Context, snap Snapshot[T]) bool {
	select {
	case p.events <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish must be deferred by the goroutine feeding the stream.
func (p *pump[T]) finish() {
	close(p.events)
	close(p.done)
}

// Run starts feed on its own goroutine. feed must return when ctx is done.
// It is exported for adapters living outside this package, such as memdb.
func Run[T any](parent context.Context, feed func(ctx context.Context, send func(Snapshot[T]) bool) error) Stream[T] {
	p, ctx := newPump[T](parent)
	go func() {
		defer p.finish()
		defer p.cancel()
		if err := feed(ctx, func(s Snapshot[T]) bool { return p.send(ctx, s) }); err != nil && ctx.Err() == nil {
			p.fail(err)
		}
	}()
	return p
}
