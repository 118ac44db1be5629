package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/pkg/metrics"
)

// BreakerSettings tune a circuit breaker.
type BreakerSettings struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerSettings returns the settings used when none are configured.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Breaker stops calling a failing source until it recovers. A breaker is
// stateful and should be shared by every pool that reads the same source.
type Breaker[T any] struct {
	src Retriever[T]
	cb  *gobreaker.CircuitBreaker[[]timeseries.TimeSeries[T]]
}

// NewBreaker wraps src in a circuit breaker named name.
func NewBreaker[T any](name string, src Retriever[T], settings BreakerSettings) *Breaker[T] {
	cb := gobreaker.NewCircuitBreaker[[]timeseries.TimeSeries[T]](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// Cancellation says nothing about the health of the source.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
		},
	})
	return &Breaker[T]{src: src, cb: cb}
}

// Get implements Retriever.
func (b *Breaker[T]) Get(ctx context.Context) ([]timeseries.TimeSeries[T], error) {
	return b.cb.Execute(func() ([]timeseries.TimeSeries[T], error) {
		return b.src.Get(ctx)
	})
}

// State reports the breaker state.
func (b *Breaker[T]) State() gobreaker.State { return b.cb.State() }

// Guard returns a retriever over src that shares this breaker's state, so
// every query against one source trips the same circuit.
func (b *Breaker[T]) Guard(src Retriever[T]) Retriever[T] {
	return Func[T](func(ctx context.Context) ([]timeseries.TimeSeries[T], error) {
		return b.cb.Execute(func() ([]timeseries.TimeSeries[T], error) {
			return src.Get(ctx)
		})
	})
}
