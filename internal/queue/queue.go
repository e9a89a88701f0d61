// Package queue is the in-process message queue that connects the notice
// sender, its router and the outgoing email listener.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned when publishing to a closed queue.
var ErrClosed = errors.New("queue closed")

// Queue is a buffered FIFO of messages of type T.
type Queue[T any] struct {
	ch   chan T
	done chan struct{}
	once sync.Once
}

// New creates a queue holding up to size messages before Publish blocks.
func New[T any](size int) *Queue[T] {
	return &Queue[T]{ch: make(chan T, size), done: make(chan struct{})}
}

// Publish enqueues v, blocking while the queue is full.
func (q *Queue[T]) Publish(ctx context.Context, v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAfter enqueues v once d has passed. Messages still waiting when the
// queue is closed are dropped.
func (q *Queue[T]) PublishAfter(d time.Duration, v T) *time.Timer {
	return time.AfterFunc(d, func() {
		select {
		case q.ch <- v:
		case <-q.done:
		}
	})
}

// Consume calls fn for every message until ctx is cancelled or the queue is
// closed.
func (q *Queue[T]) Consume(ctx context.Context, fn func(context.Context, T)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return nil
		case v := <-q.ch:
			fn(ctx, v)
		}
	}
}

// Len returns the number of waiting messages.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Close stops consumers and rejects further messages.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.done) })
}
