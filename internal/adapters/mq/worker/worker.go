// Package worker runs queued tasks on a fixed pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/hydropool/pkg/logger"
	"github.com/okian/hydropool/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Handler processes one task.
type Handler[T any] interface {
	Handle(ctx context.Context, task T) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, task T) error

// Handle implements Handler.
func (f HandlerFunc[T]) Handle(ctx context.Context, task T) error {
	return f(ctx, task)
}

// Queue defines how workers receive tasks.
type Queue[T any] interface {
	Dequeue(ctx context.Context) <-chan T
}

// Worker processes tasks with the provided handler.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue drains.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current task.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker[T any] struct {
	queue   Queue[T]
	handler Handler[T]
	name    string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from queue.
func NewInMemoryWorker[T any](queue Queue[T], handler Handler[T], opts ...Option) *InMemoryWorker[T] {
	s := settings{name: "worker", logger: logger.Get()}
	for _, opt := range opts {
		opt(&s)
	}
	return &InMemoryWorker[T]{
		queue:    queue,
		handler:  handler,
		name:     s.name,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   s.logger.Named(s.name),
	}
}

// Run starts the worker loop.
func (w *InMemoryWorker[T]) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			w.process(ctx, task)
		}
	}
}

// Shutdown implements Worker.
func (w *InMemoryWorker[T]) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker[T]) process(ctx context.Context, task T) {
	start := time.Now()
	defer func() {
		metrics.RecordTaskLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.handler.Handle(ctx, task); err != nil {
		w.logger.Error(ctx, "task failed", logger.Error(err))
	}
}

// Pool manages multiple workers sharing one queue.
type Pool[T any] struct {
	workers []*InMemoryWorker[T]
	queue   Queue[T]
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. A non-positive count
// scales with the number of CPUs.
func NewPool[T any](workerCount int, queue Queue[T], handler Handler[T]) *Pool[T] {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool[T]{
		workers: make([]*InMemoryWorker[T], workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range workerCount {
		p.workers[i] = NewInMemoryWorker(queue, handler, WithName("worker-"+strconv.Itoa(i)))
	}
	return p
}

// Size returns the number of workers.
func (p *Pool[T]) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool[T]) Start(ctx context.Context) {
	metrics.UpdateWorkerActiveCount(len(p.workers))
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for the workers to drain it. Workers
// still busy when ctx or the pool timeout expires are told to stop.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	defer metrics.UpdateWorkerActiveCount(0)

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			w.shutdownOnce.Do(func() { close(w.shutdown) })
		}
	}
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
