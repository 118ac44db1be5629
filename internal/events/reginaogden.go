package events

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/hydropool/internal/domain/declaration"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/domain/timewindow"
)

// Detector finds events in a series and returns one window per event, bounded
// on the valid time axis only.
type Detector interface {
	Detect(series timeseries.TimeSeries[float64]) ([]timewindow.TimeWindow, error)
}

// Parameters tune a ReginaOgden detector. Nil fields take defaults derived
// from each other and from the modal time step of the series.
type Parameters struct {
	WindowSize           *time.Duration
	HalfLife             *time.Duration
	MinimumEventDuration *time.Duration
	StartRadius          *time.Duration
}

// ParametersOf converts declared parameters.
func ParametersOf(d declaration.EventParameters) Parameters {
	return Parameters{
		WindowSize:           d.WindowSize,
		HalfLife:             d.HalfLife,
		MinimumEventDuration: d.MinimumEventDuration,
		StartRadius:          d.StartRadius,
	}
}

// ReginaOgden detects hydrologic events by exponential smoothing followed by
// rolling-minimum detrending. A positive residual marks an event time.
//
// Regina, J.A., F.L. Ogden, 2021. Automated Correction of Systematic Errors in
// High-Frequency Stage Data from V-Notch Weirs using Time Series Decomposition.
// Hydrological Processes. https://doi.org/10.1002/hyp.14145
type ReginaOgden struct {
	params Parameters
}

var _ Detector = (*ReginaOgden)(nil)

// NewReginaOgden validates params.
func NewReginaOgden(params Parameters) (*ReginaOgden, error) {
	check := func(name string, d *time.Duration) error {
		if d != nil && *d < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %s", ErrInvalidParameters, name, *d)
		}
		return nil
	}
	if err := check("minimum event duration", params.MinimumEventDuration); err != nil {
		return nil, err
	}
	if err := check("start radius", params.StartRadius); err != nil {
		return nil, err
	}
	if params.HalfLife != nil && *params.HalfLife <= 0 {
		return nil, fmt.Errorf("%w: half-life must be positive, got %s", ErrInvalidParameters, *params.HalfLife)
	}
	if params.WindowSize != nil && *params.WindowSize <= 0 {
		return nil, fmt.Errorf("%w: window size must be positive, got %s", ErrInvalidParameters, *params.WindowSize)
	}
	return &ReginaOgden{params: params}, nil
}

// resolved holds parameters with every default applied.
type resolved struct {
	window, halfLife, minDuration, radius, step time.Duration
}

func (r *ReginaOgden) resolve(series timeseries.TimeSeries[float64]) (resolved, error) {
	step := timeseries.ModalStep(series)
	if step <= 0 {
		return resolved{}, fmt.Errorf("%w: cannot determine the time step of %s", ErrEventDetection, series.Metadata())
	}
	p := r.params
	out := resolved{step: step}

	switch {
	case p.MinimumEventDuration != nil:
		out.minDuration = *p.MinimumEventDuration
	case p.HalfLife != nil:
		out.minDuration = *p.HalfLife
	}
	if p.StartRadius != nil {
		out.radius = *p.StartRadius
	}

	switch {
	case p.HalfLife != nil:
		out.halfLife = *p.HalfLife
	case p.WindowSize != nil:
		out.halfLife = *p.WindowSize / 20
	default:
		out.halfLife = 20 * step
	}

	switch {
	case p.WindowSize != nil:
		out.window = *p.WindowSize
	case p.HalfLife != nil:
		out.window = 20 * *p.HalfLife
	default:
		out.window = 200 * step
	}
	if out.halfLife <= 0 {
		return resolved{}, fmt.Errorf("%w: half-life must be positive, got %s", ErrInvalidParameters, out.halfLife)
	}
	return out, nil
}

// Detect implements Detector. Series with fewer than two events have no events.
func (r *ReginaOgden) Detect(series timeseries.TimeSeries[float64]) ([]timewindow.TimeWindow, error) {
	if series.Len() < 2 {
		return nil, nil
	}
	p, err := r.resolve(series)
	if err != nil {
		return nil, err
	}

	smoothed := smooth(series.Events(), p.halfLife)
	detrended, err := detrend(smoothed, p.window, p.step)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEventDetection, series.Metadata(), err)
	}

	var period time.Duration
	if ts := series.TimeScale(); ts != nil && !ts.IsInstantaneous() {
		period = ts.Period
	}

	var out []timewindow.TimeWindow
	for _, run := range runs(detrended) {
		start, end := detrended[run[0]].Time, detrended[run[1]].Time
		if p.minDuration > 0 && end.Sub(start)+period < p.minDuration {
			continue
		}
		if start, err = refineStart(detrended, start, p.radius); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrEventDetection, series.Metadata(), err)
		}
		if start.After(end) {
			start = end
		}
		w, err := timewindow.New(timewindow.WithValidTimes(start, end))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEventDetection, err)
		}
		out = append(out, w)
	}
	return out, nil
}

// smooth applies an exponentially weighted moving average whose weight decays
// with the elapsed time between events. Missing values carry the last
// smoothed value forward.
func smooth(events []timeseries.Event[float64], halfLife time.Duration) []timeseries.Event[float64] {
	out := make([]timeseries.Event[float64], 0, len(events))
	out = append(out, events[0])
	last := events[0].Value
	lastTime := events[0].Time
	weight := 1.0
	decay := math.Ln2 / float64(halfLife)

	for _, e := range events[1:] {
		alpha := 1 - math.Exp(-decay*float64(e.Time.Sub(lastTime)))
		switch {
		case math.IsNaN(e.Value):
			out = append(out, timeseries.EventOf(e.Time, last))
			weight *= 1 - alpha
		case math.IsNaN(last):
			last = e.Value
			weight = weight*(1-alpha) + alpha
		default:
			last = alpha*e.Value + (1-alpha)*last*weight
			out = append(out, timeseries.EventOf(e.Time, last))
			weight = weight*(1-alpha) + alpha
		}
		lastTime = e.Time
	}
	return out
}

// detrend subtracts the larger of the forward and backward rolling minimum
// and then twice the median residual, clamping at zero.
func detrend(events []timeseries.Event[float64], window, step time.Duration) ([]timeseries.Event[float64], error) {
	steps := int(window / step)
	if steps < 2 {
		return nil, fmt.Errorf("%w: window %s spans fewer than two time steps of %s", ErrInvalidParameters, window, step)
	}

	values := make([]float64, len(events))
	for i, e := range events {
		values[i] = e.Value
	}
	forward := rollingMin(values, steps)
	reversed := make([]float64, len(values))
	for i, v := range values {
		reversed[len(values)-1-i] = v
	}
	backward := rollingMin(reversed, steps)

	residuals := make([]float64, len(values))
	finite := make([]float64, 0, len(values))
	for i, v := range values {
		trend := math.Max(forward[i], backward[len(values)-1-i])
		residuals[i] = v - trend
		if !math.IsNaN(residuals[i]) {
			finite = append(finite, residuals[i])
		}
	}
	offset := 2 * median(finite)

	out := make([]timeseries.Event[float64], len(events))
	for i, e := range events {
		out[i] = timeseries.EventOf(e.Time, math.Max(0, residuals[i]-offset))
	}
	return out, nil
}

// rollingMin returns, for each index, the minimum over the trailing window
// ending there. NaN propagates.
func rollingMin(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		m := values[i]
		for j := max(0, i+1-window); j < i; j++ {
			m = math.Min(m, values[j])
		}
		out[i] = m
	}
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return stat.Mean(sorted[mid-1:mid+1], nil)
}

// runs returns the inclusive index bounds of each stretch of positive values.
func runs(events []timeseries.Event[float64]) [][2]int {
	var out [][2]int
	start := -1
	for i, e := range events {
		positive := e.Value > 0
		switch {
		case positive && start < 0:
			start = i
		case !positive && start >= 0:
			out = append(out, [2]int{start, i - 1})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, [2]int{start, len(events) - 1})
	}
	return out
}

// refineStart moves an event start to the time of the smallest detrended value
// within radius of it. Ties resolve to the earliest time.
func refineStart(events []timeseries.Event[float64], start time.Time, radius time.Duration) (time.Time, error) {
	lower, upper := start.Add(-radius), start.Add(radius)
	best := math.Inf(1)
	var at time.Time
	found := false
	for _, e := range events {
		if e.Time.Before(lower) || e.Time.After(upper) {
			continue
		}
		if !found || e.Value < best {
			best, at, found = e.Value, e.Time, true
		}
	}
	if !found {
		return time.Time{}, fmt.Errorf("no values within %s of event start %s", radius, start.Format(time.RFC3339))
	}
	return at, nil
}
