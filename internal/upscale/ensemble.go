package upscale

import (
	"fmt"
	"time"

	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timeseries"
)

// Ensemble upscales every member of an ensemble series independently and
// reassembles the members at the valid times they all share.
type Ensemble struct {
	single *SingleValued
}

var _ Upscaler[timeseries.Ensemble] = (*Ensemble)(nil)

// NewEnsemble returns an ensemble upscaler.
func NewEnsemble(opts ...Option) *Ensemble {
	return &Ensemble{single: NewSingleValued(opts...)}
}

// Upscale implements Upscaler.
func (u *Ensemble) Upscale(series timeseries.TimeSeries[timeseries.Ensemble], desired timescale.TimeScale,
	endsAt []time.Time,
) (timeseries.TimeSeries[timeseries.Ensemble], error) {
	out, done, err := prepare(series, desired)
	if done || err != nil {
		return out, err
	}

	first, _ := series.First()
	size := first.Value.Size()
	for _, e := range series.Events() {
		if e.Value.Size() != size {
			return timeseries.TimeSeries[timeseries.Ensemble]{}, fmt.Errorf(
				"%w: ensemble size changes from %d to %d at %s", ErrUpscaling, size, e.Value.Size(), e.Time)
		}
	}

	members := make([]map[time.Time]float64, size)
	var times []time.Time
	for m := 0; m < size; m++ {
		member := timeseries.Transform(series, func(e timeseries.Ensemble) float64 { return e.Members[m] })
		up, err := u.single.Upscale(member, desired, endsAt)
		if err != nil {
			return timeseries.TimeSeries[timeseries.Ensemble]{}, fmt.Errorf("member %d: %w", m, err)
		}
		members[m] = make(map[time.Time]float64, up.Len())
		for _, e := range up.Events() {
			members[m][e.Time.UTC()] = e.Value
		}
		if m == 0 {
			times = up.ValidTimes()
		}
	}

	result := make([]timeseries.Event[timeseries.Ensemble], 0, len(times))
	for _, t := range times {
		values := make([]float64, size)
		shared := true
		for m := range members {
			v, ok := members[m][t.UTC()]
			if !ok {
				shared = false
				break
			}
			values[m] = v
		}
		if shared {
			result = append(result, timeseries.EventOf(t, timeseries.EnsembleOf(values, first.Value.Labels)))
		}
	}
	return timeseries.New(series.Metadata().WithTimeScale(desired.Ptr()), result...)
}
