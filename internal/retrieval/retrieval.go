// Package retrieval defines how the pooling engine obtains time series and
// the decorators wrapped around raw sources: per-call caching, circuit
// breaking and latency instrumentation.
package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/domain/timewindow"
	"github.com/okian/hydropool/pkg/metrics"
)

// Orientation names the side of a pairing a retriever serves.
type Orientation string

// Orientations.
const (
	Left      Orientation = "left"
	Right     Orientation = "right"
	Baseline  Orientation = "baseline"
	Covariate Orientation = "covariate"
)

// Retriever yields zero or more series. Every call must be safe to repeat and
// must return the same data.
type Retriever[T any] interface {
	Get(ctx context.Context) ([]timeseries.TimeSeries[T], error)
}

// Func adapts a function to a Retriever.
type Func[T any] func(ctx context.Context) ([]timeseries.TimeSeries[T], error)

// Get implements Retriever.
func (f Func[T]) Get(ctx context.Context) ([]timeseries.TimeSeries[T], error) { return f(ctx) }

// Of returns a retriever of fixed series.
func Of[T any](series ...timeseries.TimeSeries[T]) Retriever[T] {
	return Func[T](func(context.Context) ([]timeseries.TimeSeries[T], error) {
		out := make([]timeseries.TimeSeries[T], len(series))
		copy(out, series)
		return out, nil
	})
}

// WithDefaultTimeScale stamps ts onto every retrieved series that carries no
// time scale of its own. A nil ts returns src unchanged.
func WithDefaultTimeScale[T any](src Retriever[T], ts *timescale.TimeScale) Retriever[T] {
	if ts == nil {
		return src
	}
	return Func[T](func(ctx context.Context) ([]timeseries.TimeSeries[T], error) {
		series, err := src.Get(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]timeseries.TimeSeries[T], len(series))
		for i, s := range series {
			out[i] = timeseries.WithDefaultTimeScale(s, ts)
		}
		return out, nil
	})
}

// Factory creates retrievers scoped to features and, optionally, a window.
// A nil window admits every time.
type Factory[L, R any] interface {
	Left(features []feature.Feature, window *timewindow.TimeWindow) Retriever[L]
	Right(features []feature.Feature, window *timewindow.TimeWindow) Retriever[R]
	Baseline(features []feature.Feature, window *timewindow.TimeWindow) Retriever[R]
	Covariate(name string, features []feature.Feature, window *timewindow.TimeWindow) Retriever[L]
}

// Caching memoizes the first result of its source. It is meant to live for a
// single pool build.
type Caching[T any] struct {
	src    Retriever[T]
	once   sync.Once
	series []timeseries.TimeSeries[T]
	err    error
}

// NewCaching wraps src.
func NewCaching[T any](src Retriever[T]) *Caching[T] {
	return &Caching[T]{src: src}
}

// Get implements Retriever.
func (c *Caching[T]) Get(ctx context.Context) ([]timeseries.TimeSeries[T], error) {
	c.once.Do(func() {
		c.series, c.err = c.src.Get(ctx)
	})
	if c.err != nil {
		return nil, c.err
	}
	out := make([]timeseries.TimeSeries[T], len(c.series))
	copy(out, c.series)
	return out, nil
}

// Instrumented records latency and failures of its source under an
// orientation label, wrapping failures in ErrRetrieval.
type Instrumented[T any] struct {
	src         Retriever[T]
	orientation Orientation
}

// NewInstrumented wraps src.
func NewInstrumented[T any](orientation Orientation, src Retriever[T]) *Instrumented[T] {
	return &Instrumented[T]{src: src, orientation: orientation}
}

// Get implements Retriever.
func (r *Instrumented[T]) Get(ctx context.Context) ([]timeseries.TimeSeries[T], error) {
	start := time.Now()
	series, err := r.src.Get(ctx)
	metrics.RecordRetrieval(string(r.orientation), float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordRetrievalFailure(string(r.orientation))
		return nil, Wrap(r.orientation, err)
	}
	return series, nil
}

// Wrap marks err as a retrieval failure for an orientation.
func Wrap(orientation Orientation, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s data: %w", ErrRetrieval, orientation, err)
}

// Select keeps the series whose feature is named in features and restricts
// them to window. Empty series are dropped.
func Select[T any](series []timeseries.TimeSeries[T], features []feature.Feature,
	window *timewindow.TimeWindow,
) []timeseries.TimeSeries[T] {
	names := make(map[string]struct{}, len(features))
	for _, f := range features {
		names[f.Name] = struct{}{}
	}
	out := make([]timeseries.TimeSeries[T], 0, len(series))
	for _, s := range series {
		if len(names) > 0 {
			if _, ok := names[s.Metadata().Feature.Name]; !ok {
				continue
			}
		}
		if window != nil {
			s = timeseries.Snip(s, *window)
		}
		if !s.IsEmpty() {
			out = append(out, s)
		}
	}
	return out
}
