// Package pairing aligns two series on exactly equal valid times.
package pairing

import (
	"context"
	"fmt"

	"github.com/okian/hydropool/internal/domain/pool"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/pkg/logger"
)

// Pairer pairs a left series with a right series.
type Pairer[L, R any] interface {
	Pair(left timeseries.TimeSeries[L], right timeseries.TimeSeries[R]) (timeseries.TimeSeries[pool.Pair[L, R]], error)
}

// TimePairer pairs by exact valid time. It never interpolates.
type TimePairer[L, R any] struct {
	leftOK  func(L) bool
	rightOK func(R) bool
	logger  logger.Logger
}

var _ Pairer[float64, float64] = (*TimePairer[float64, float64])(nil)

// New returns a pairer that admits every value unless told otherwise.
func New[L, R any](opts ...Option[L, R]) *TimePairer[L, R] {
	p := &TimePairer[L, R]{
		leftOK:  func(L) bool { return true },
		rightOK: func(R) bool { return true },
		logger:  logger.Named("pairing"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pair returns one pair per valid time present in both series with admissible
// values on each side. The result carries the right metadata.
func (p *TimePairer[L, R]) Pair(left timeseries.TimeSeries[L], right timeseries.TimeSeries[R],
) (timeseries.TimeSeries[pool.Pair[L, R]], error) {
	ls, rs := left.TimeScale(), right.TimeScale()
	if ls != nil && rs != nil && !ls.Equal(*rs) {
		return timeseries.TimeSeries[pool.Pair[L, R]]{}, fmt.Errorf(
			"%w: left time scale %s differs from right time scale %s", ErrPairing, ls, rs)
	}

	meta := right.Metadata()
	if left.IsEmpty() || right.IsEmpty() {
		return timeseries.Empty[pool.Pair[L, R]](meta), nil
	}

	le, re := left.Events(), right.Events()
	out := make([]timeseries.Event[pool.Pair[L, R]], 0, min(len(le), len(re)))
	inadmissible := 0
	for i, j := 0, 0; i < len(le) && j < len(re); {
		switch c := le[i].Time.Compare(re[j].Time); {
		case c < 0:
			i++
		case c > 0:
			j++
		default:
			if p.leftOK(le[i].Value) && p.rightOK(re[j].Value) {
				out = append(out, timeseries.EventOf(re[j].Time, pool.PairOf(le[i].Value, re[j].Value)))
			} else {
				inadmissible++
			}
			i++
			j++
		}
	}
	if inadmissible > 0 {
		p.logger.Debug(context.Background(), "skipped inadmissible pairs",
			logger.Int("skipped", inadmissible),
			logger.String("right", meta.String()))
	}
	return timeseries.New(meta, out...)
}
