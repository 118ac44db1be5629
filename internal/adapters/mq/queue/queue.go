// Package queue is a bounded in-memory queue feeding the worker pool.
package queue

import (
	"context"
	"sync"

	"github.com/okian/hydropool/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
	defaultBufferSize    = 1024
)

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item. It returns false when the queue is full or closed.
	Enqueue(ctx context.Context, item T) bool

	// Dequeue returns a channel that receives items as they become available.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan T

	// Len returns the number of queued items.
	Len() int

	// Close stops accepting items. Queued items are still delivered.
	Close() error

	// IsClosed reports whether Close was called.
	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue[T any] struct {
	items    chan T
	capacity int

	mu     sync.RWMutex
	closed bool
}

var _ Queue[int] = (*InMemoryQueue[int])(nil)

// NewInMemoryQueue creates a queue. The buffer never exceeds the capacity.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	s := settings{capacity: defaultQueueCapacity, bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&s)
	}
	s.bufferSize = max(s.bufferSize, s.capacity)

	metrics.UpdateQueueCapacity(s.capacity)
	metrics.UpdateQueueSize(0)
	return &InMemoryQueue[T]{items: make(chan T, s.bufferSize), capacity: s.capacity}
}

// Enqueue implements Queue.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || len(q.items) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		return false
	}
	select {
	case q.items <- item:
		metrics.UpdateQueueSize(len(q.items))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return false
	default:
		metrics.RecordQueueEnqueueError()
		return false
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue[T]) Dequeue(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for item := range q.items {
			select {
			case out <- item:
				metrics.UpdateQueueSize(len(q.items))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len implements Queue.
func (q *InMemoryQueue[T]) Len() int {
	return len(q.items)
}

// Close implements Queue.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
