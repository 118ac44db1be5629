// Package upscale aggregates time series from their existing time scale to a
// coarser desired time scale.
package upscale

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/pkg/logger"
	"github.com/okian/hydropool/pkg/metrics"
)

// Upscaler converts a series to a desired time scale. When endsAt is not
// empty the output holds at most one event per listed instant, each the
// aggregate of the bucket (end-period, end].
type Upscaler[T any] interface {
	Upscale(series timeseries.TimeSeries[T], desired timescale.TimeScale, endsAt []time.Time) (timeseries.TimeSeries[T], error)
}

// Validate reports whether existing can be upscaled to desired.
func Validate(existing, desired timescale.TimeScale) error {
	switch {
	case desired.Function == timescale.Unknown:
		return fmt.Errorf("%w: desired function is %s", ErrUpscaling, desired.Function)
	case desired.Period < existing.Period:
		return fmt.Errorf("%w: cannot downscale from %s to %s", ErrUpscaling, existing, desired)
	case existing.IsInstantaneous() && desired.Function == timescale.Total:
		return fmt.Errorf("%w: cannot accumulate instantaneous values into %s", ErrUpscaling, desired)
	}
	if existing.IsInstantaneous() {
		return nil
	}
	if desired.Period == 0 || desired.Period%existing.Period != 0 {
		return fmt.Errorf("%w: desired period %s is not an integer multiple of %s", ErrUpscaling,
			desired.Period, existing.Period)
	}
	known := existing.Function != timescale.Unknown
	if desired.Period == existing.Period && known && existing.Function != desired.Function {
		return fmt.Errorf("%w: %s and %s share a period but differ in function", ErrUpscaling, existing, desired)
	}
	if desired.Function == timescale.Total && known && existing.Function != timescale.Total {
		return fmt.Errorf("%w: cannot accumulate %s values into %s", ErrUpscaling, existing, desired)
	}
	return nil
}

// SingleValued upscales series of doubles.
type SingleValued struct {
	opts options
}

var _ Upscaler[float64] = (*SingleValued)(nil)

// NewSingleValued returns a single-valued upscaler.
func NewSingleValued(opts ...Option) *SingleValued {
	return &SingleValued{opts: newOptions(opts)}
}

// Upscale implements Upscaler.
func (u *SingleValued) Upscale(series timeseries.TimeSeries[float64], desired timescale.TimeScale,
	endsAt []time.Time,
) (timeseries.TimeSeries[float64], error) {
	out, done, err := prepare(series, desired)
	if done || err != nil {
		if err != nil {
			metrics.RecordUpscalingFailure()
		}
		return out, err
	}

	ends := normalizeEnds(endsAt)
	required := len(ends) > 0
	if !required {
		ends = deriveEnds(series, desired.Period)
	}

	events := series.Events()
	result := make([]timeseries.Event[float64], 0, len(ends))
	skipped := 0
	for _, end := range ends {
		bucket := window(events, end.Add(-desired.Period), end)
		if !complete(bucket, end.Add(-desired.Period), end) {
			if required && u.opts.strict {
				metrics.RecordUpscalingFailure()
				return timeseries.TimeSeries[float64]{}, fmt.Errorf("%w: incomplete bucket ending at %s for %s",
					ErrUpscaling, end.Format(time.RFC3339), series.Metadata())
			}
			skipped++
			continue
		}
		values := make([]float64, len(bucket))
		for i, e := range bucket {
			values[i] = e.Value
		}
		v := Aggregate(desired.Function, values)
		if math.IsNaN(v) && u.opts.strict && required {
			metrics.RecordUpscalingFailure()
			return timeseries.TimeSeries[float64]{}, fmt.Errorf("%w: non-finite aggregate ending at %s for %s",
				ErrUpscaling, end.Format(time.RFC3339), series.Metadata())
		}
		result = append(result, timeseries.EventOf(end, v))
	}
	if skipped > 0 {
		metrics.RecordUpscalingSkipped(skipped)
		u.opts.logger.Debug(context.Background(), "skipped incomplete buckets",
			logger.Int("skipped", skipped),
			logger.String("series", series.Metadata().String()),
			logger.String("desired", desired.String()))
	}
	return timeseries.New(series.Metadata().WithTimeScale(desired.Ptr()), result...)
}

// prepare handles the cases that need no bucketing. done reports that out is
// the final answer.
func prepare[T any](series timeseries.TimeSeries[T], desired timescale.TimeScale) (out timeseries.TimeSeries[T], done bool, err error) {
	if series.IsEmpty() {
		return series, true, nil
	}
	existing := series.TimeScale()
	if existing == nil {
		if desired.IsInstantaneous() {
			return series, true, nil
		}
		return series, true, fmt.Errorf("%w: %s has no time scale and cannot be upscaled to %s", ErrUpscaling,
			series.Metadata(), desired)
	}
	if existing.Equal(desired) {
		return series, true, nil
	}
	if err := Validate(*existing, desired); err != nil {
		return series, true, err
	}
	if existing.Period == desired.Period {
		return series.WithMetadata(series.Metadata().WithTimeScale(desired.Ptr())), true, nil
	}
	return series, false, nil
}

// Aggregate applies fn to values. Any non-finite input or output yields NaN.
func Aggregate(fn timescale.Function, values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return math.NaN()
		}
	}
	var v float64
	switch fn {
	case timescale.Mean:
		v = stat.Mean(values, nil)
	case timescale.Total:
		v = floats.Sum(values)
	case timescale.Maximum:
		v = floats.Max(values)
	case timescale.Minimum:
		v = floats.Min(values)
	default:
		return math.NaN()
	}
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

func normalizeEnds(endsAt []time.Time) []time.Time {
	if len(endsAt) == 0 {
		return nil
	}
	ends := make([]time.Time, len(endsAt))
	copy(ends, endsAt)
	sort.Slice(ends, func(i, j int) bool { return ends[i].Before(ends[j]) })
	out := ends[:1]
	for _, t := range ends[1:] {
		if !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}

// deriveEnds walks forward from one step before the first event in
// increments of period until the last event is covered.
func deriveEnds[T any](series timeseries.TimeSeries[T], period time.Duration) []time.Time {
	first, _ := series.First()
	last, _ := series.Last()
	var step time.Duration
	if series.Len() > 1 {
		step = series.At(1).Time.Sub(first.Time)
	}
	var ends []time.Time
	check := first.Time.Add(-step)
	for check.Before(last.Time) {
		check = check.Add(period)
		ends = append(ends, check)
	}
	return ends
}

// window returns the events in (lower, upper].
func window[T any](events []timeseries.Event[T], lower, upper time.Time) []timeseries.Event[T] {
	from := sort.Search(len(events), func(i int) bool { return events[i].Time.After(lower) })
	to := sort.Search(len(events), func(i int) bool { return events[i].Time.After(upper) })
	return events[from:to]
}

// complete reports whether a bucket holds at least two events that, together
// with its lower bound, are evenly spaced and end on the upper bound.
func complete[T any](bucket []timeseries.Event[T], lower, upper time.Time) bool {
	if len(bucket) < 2 || !bucket[len(bucket)-1].Time.Equal(upper) {
		return false
	}
	gap := bucket[0].Time.Sub(lower)
	for i := 1; i < len(bucket); i++ {
		if bucket[i].Time.Sub(bucket[i-1].Time) != gap {
			return false
		}
	}
	return true
}
