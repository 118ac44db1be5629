package retrieval

import (
	"context"
	"fmt"

	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/domain/timewindow"
)

// Memory is a Factory over series held in memory.
type Memory[L, R any] struct {
	LeftSeries      []timeseries.TimeSeries[L]
	RightSeries     []timeseries.TimeSeries[R]
	BaselineSeries  []timeseries.TimeSeries[R]
	CovariateSeries map[string][]timeseries.TimeSeries[L]
}

var _ Factory[float64, float64] = (*Memory[float64, float64])(nil)

// Left implements Factory.
func (m *Memory[L, R]) Left(features []feature.Feature, window *timewindow.TimeWindow) Retriever[L] {
	return selecting(m.LeftSeries, features, window)
}

// Right implements Factory.
func (m *Memory[L, R]) Right(features []feature.Feature, window *timewindow.TimeWindow) Retriever[R] {
	return selecting(m.RightSeries, features, window)
}

// Baseline implements Factory.
func (m *Memory[L, R]) Baseline(features []feature.Feature, window *timewindow.TimeWindow) Retriever[R] {
	return selecting(m.BaselineSeries, features, window)
}

// Covariate implements Factory.
func (m *Memory[L, R]) Covariate(name string, features []feature.Feature, window *timewindow.TimeWindow,
) Retriever[L] {
	series, ok := m.CovariateSeries[name]
	if !ok {
		return Func[L](func(context.Context) ([]timeseries.TimeSeries[L], error) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCovariate, name)
		})
	}
	return selecting(series, features, window)
}

func selecting[T any](series []timeseries.TimeSeries[T], features []feature.Feature,
	window *timewindow.TimeWindow,
) Retriever[T] {
	return Func[T](func(ctx context.Context) ([]timeseries.TimeSeries[T], error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Select(series, features, window), nil
	})
}
