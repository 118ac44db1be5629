package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/hydropool/internal/adapters/mq/queue"
	"github.com/okian/hydropool/internal/adapters/mq/worker"
)

type mockQueue struct {
	tasks chan int
}

func newMockQueue(tasks ...int) *mockQueue {
	q := &mockQueue{tasks: make(chan int, len(tasks)+1)}
	for _, t := range tasks {
		q.tasks <- t
	}
	return q
}

func (q *mockQueue) Dequeue(context.Context) <-chan int {
	return q.tasks
}

func (q *mockQueue) Close() error {
	close(q.tasks)
	return nil
}

type recorder struct {
	mu   sync.Mutex
	seen []int
}

func (r *recorder) Handle(_ context.Context, task int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, task)
	if task < 0 {
		return errors.New("negative task")
	}
	return nil
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a queue with three tasks", t, func() {
		q := newMockQueue(1, -2, 3)
		rec := &recorder{}
		w := worker.NewInMemoryWorker[int](q, rec, worker.WithName("test"))

		convey.Convey("When the queue is closed and the worker runs", func() {
			_ = q.Close()
			w.Run(context.Background())

			convey.Convey("Then every task is handled despite a failure", func() {
				convey.So(rec.seen, convey.ShouldResemble, []int{1, -2, 3})
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the worker is shut down while idle", func() {
			idle := newMockQueue()
			w := worker.NewInMemoryWorker[int](idle, rec)
			go w.Run(context.Background())
			err := w.Shutdown(context.Background())

			convey.Convey("Then it stops cleanly", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of four workers over an in-memory queue", t, func() {
		q := queue.NewInMemoryQueue[int](queue.WithCapacity(64))
		var handled atomic.Int64
		p := worker.NewPool[int](4, q, worker.HandlerFunc[int](func(context.Context, int) error {
			handled.Add(1)
			time.Sleep(time.Millisecond)
			return nil
		}))
		convey.So(p.Size(), convey.ShouldEqual, 4)

		convey.Convey("When fifty tasks are queued and the pool shuts down", func() {
			ctx := context.Background()
			p.Start(ctx)
			for i := range 50 {
				convey.So(q.Enqueue(ctx, i), convey.ShouldBeTrue)
			}
			err := p.Shutdown(ctx)

			convey.Convey("Then the queue is drained before the workers stop", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(handled.Load(), convey.ShouldEqual, 50)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool with a non-positive worker count", t, func() {
		p := worker.NewPool[int](0, newMockQueue(), &recorder{})

		convey.Convey("Then it scales with the CPUs", func() {
			convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}
