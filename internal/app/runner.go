package app

import (
	"context"
	"sync"
	"time"

	"github.com/okian/hydropool/internal/adapters/mq/queue"
	"github.com/okian/hydropool/internal/adapters/mq/worker"
	"github.com/okian/hydropool/internal/domain/pool"
	"github.com/okian/hydropool/internal/factory"
	"github.com/okian/hydropool/pkg/logger"
)

const enqueueBackoff = 5 * time.Millisecond

// Outcome is the result of one bound pool.
type Outcome[R any] struct {
	Request pool.Request
	Pool    pool.Pool[pool.Pair[float64, R]]
	Err     error
}

// Runner builds bound pools on a worker pool fed by a bounded queue.
type Runner[R any] struct {
	settings runnerSettings
}

// NewRunner creates a runner.
func NewRunner[R any](opts ...RunnerOption) *Runner[R] {
	s := runnerSettings{workers: 1, queueSize: 1024, logger: logger.Named("runner")}
	for _, opt := range opts {
		opt(&s)
	}
	return &Runner[R]{settings: s}
}

// Run builds every binding and returns the outcomes in binding order. A
// failing pool does not affect the others. When ctx ends first, every pool
// still outstanding is reported with ctx.Err().
func (r *Runner[R]) Run(ctx context.Context, bindings []factory.Binding[R]) []Outcome[R] {
	outcomes := make([]Outcome[R], len(bindings))
	for i, b := range bindings {
		outcomes[i].Request = b.Request
	}
	if len(bindings) == 0 {
		return outcomes
	}

	var (
		mu      sync.Mutex
		settled = make([]bool, len(bindings))
		count   int
		done    = make(chan struct{})
	)
	// settle records the first result for slot i. Later writes are ignored.
	settle := func(i int, p pool.Pool[pool.Pair[float64, R]], err error) bool {
		mu.Lock()
		defer mu.Unlock()
		if settled[i] {
			return false
		}
		outcomes[i].Pool, outcomes[i].Err = p, err
		settled[i] = true
		if count++; count == len(outcomes) {
			close(done)
		}
		return true
	}

	q := queue.NewInMemoryQueue[int](queue.WithCapacity(r.settings.queueSize))
	workers := worker.NewPool[int](min(r.settings.workers, len(bindings)), q,
		worker.HandlerFunc[int](func(ctx context.Context, i int) error {
			p, err := bindings[i].Get(ctx)
			settle(i, p, err)
			return err
		}))
	workers.Start(ctx)

	enqueued := r.enqueue(ctx, q, len(bindings))
	select {
	case <-done:
	case <-ctx.Done():
	}

	if err := ctx.Err(); err != nil {
		abandoned := 0
		for i := range outcomes {
			if settle(i, pool.Pool[pool.Pair[float64, R]]{}, err) {
				abandoned++
			}
		}
		if abandoned > 0 {
			r.settings.logger.Warn(ctx, "evaluation interrupted",
				logger.Int("pools", len(bindings)),
				logger.Int("enqueued", enqueued),
				logger.Int("abandoned", abandoned),
				logger.Error(err))
		}
	}
	if err := workers.Shutdown(ctx); err != nil {
		r.settings.logger.Debug(ctx, "worker pool stopped early", logger.Error(err))
	}
	return outcomes
}

// enqueue queues every pool index, waiting while the queue is full. It
// returns how many were queued before ctx ended.
func (r *Runner[R]) enqueue(ctx context.Context, q *queue.InMemoryQueue[int], n int) int {
	for i := range n {
		for !q.Enqueue(ctx, i) {
			select {
			case <-ctx.Done():
				return i
			case <-time.After(enqueueBackoff):
			}
		}
	}
	return n
}
