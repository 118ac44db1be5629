package timeseries

import (
	"math"
	"sort"
	"time"

	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timewindow"
)

// Filter keeps the events that satisfy keep.
func Filter[T any](s TimeSeries[T], keep func(Event[T]) bool) TimeSeries[T] {
	out := make([]Event[T], 0, len(s.events))
	for _, e := range s.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return fromOrdered(s.meta, out)
}

// Transform maps every value, keeping times and metadata.
func Transform[T, U any](s TimeSeries[T], fn func(T) U) TimeSeries[U] {
	out := make([]Event[U], len(s.events))
	for i, e := range s.events {
		out[i] = Event[U]{Time: e.Time, Value: fn(e.Value)}
	}
	return fromOrdered(s.meta, out)
}

// MapEvents maps every event and drops those for which fn reports false.
func MapEvents[T, U any](s TimeSeries[T], fn func(Event[T]) (U, bool)) TimeSeries[U] {
	out := make([]Event[U], 0, len(s.events))
	for _, e := range s.events {
		if v, ok := fn(e); ok {
			out = append(out, Event[U]{Time: e.Time, Value: v})
		}
	}
	return fromOrdered(s.meta, out)
}

// ShiftValidTimes moves every valid time by d. Reference times are unchanged.
func ShiftValidTimes[T any](s TimeSeries[T], d time.Duration) TimeSeries[T] {
	if d == 0 {
		return s
	}
	out := make([]Event[T], len(s.events))
	for i, e := range s.events {
		out[i] = Event[T]{Time: e.Time.Add(d), Value: e.Value}
	}
	return fromOrdered(s.meta, out)
}

// WithDefaultTimeScale stamps ts onto s when s carries no time scale of its
// own.
func WithDefaultTimeScale[T any](s TimeSeries[T], ts *timescale.TimeScale) TimeSeries[T] {
	if ts == nil || s.meta.TimeScale != nil {
		return s
	}
	return fromOrdered(s.meta.WithTimeScale(ts), s.events)
}

// FilterFinite drops NaN and infinite values.
func FilterFinite(s TimeSeries[float64]) TimeSeries[float64] {
	return Filter(s, func(e Event[float64]) bool { return isFinite(e.Value) })
}

// FilterFiniteEnsemble drops non-finite members and events left without members.
func FilterFiniteEnsemble(s TimeSeries[Ensemble]) TimeSeries[Ensemble] {
	return MapEvents(s, func(e Event[Ensemble]) (Ensemble, bool) {
		f := e.Value.Finite()
		return f, len(f.Members) > 0
	})
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Snip restricts a series to a time window. A series whose reference times
// fall outside the window is returned empty. Lead durations are measured from
// the T0 reference time and are only applied when the series has one.
func Snip[T any](s TimeSeries[T], w timewindow.TimeWindow) TimeSeries[T] {
	if !w.HasUnboundedReferenceTimes() {
		for _, rt := range s.meta.ReferenceTimes {
			if !w.ContainsReferenceTime(rt) {
				return Empty[T](s.meta)
			}
		}
	}

	t0, hasT0 := s.meta.ReferenceTime(T0)
	checkLead := hasT0 && !w.HasUnboundedLeadDurations()
	checkValid := !w.HasUnboundedValidTimes()
	if !checkLead && !checkValid {
		return s
	}
	return Filter(s, func(e Event[T]) bool {
		if checkValid && !w.ContainsValidTime(e.Time) {
			return false
		}
		if checkLead && !w.ContainsLeadDuration(e.Time.Sub(t0)) {
			return false
		}
		return true
	})
}

// SnipToSpan restricts s to the closed valid-time span of bounds, widened by
// the lower and upper buffers. An empty bounds series empties s.
func SnipToSpan[T, U any](s TimeSeries[T], bounds TimeSeries[U], lower, upper time.Duration) TimeSeries[T] {
	first, ok := bounds.First()
	if !ok {
		return Empty[T](s.meta)
	}
	last, _ := bounds.Last()
	from := first.Time.Add(-lower)
	to := last.Time.Add(upper)
	return Filter(s, func(e Event[T]) bool {
		return !e.Time.Before(from) && !e.Time.After(to)
	})
}

// Consolidate merges series into one under the metadata of the first. On a
// duplicate valid time the earliest-supplied value wins; the number of
// discarded duplicates is returned.
func Consolidate[T any](series []TimeSeries[T]) (TimeSeries[T], int) {
	if len(series) == 0 {
		return TimeSeries[T]{}, 0
	}
	var all []Event[T]
	for _, s := range series {
		all = append(all, s.events...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Time.Before(all[j].Time) })
	out := make([]Event[T], 0, len(all))
	dups := 0
	for _, e := range all {
		if n := len(out); n > 0 && out[n-1].Time.Equal(e.Time) {
			dups++
			continue
		}
		out = append(out, e)
	}
	return fromOrdered(series[0].meta, out), dups
}

// ModalStep returns the most common gap between consecutive events; ties
// resolve to the shorter gap. Series with fewer than two events return zero.
func ModalStep[T any](s TimeSeries[T]) time.Duration {
	if len(s.events) < 2 {
		return 0
	}
	counts := make(map[time.Duration]int)
	for i := 1; i < len(s.events); i++ {
		counts[s.events[i].Time.Sub(s.events[i-1].Time)]++
	}
	var best time.Duration
	bestCount := 0
	for d, c := range counts {
		if c > bestCount || (c == bestCount && d < best) {
			best, bestCount = d, c
		}
	}
	return best
}

// CountEvents sums the events across series.
func CountEvents[T any](series []TimeSeries[T]) int {
	n := 0
	for _, s := range series {
		n += s.Len()
	}
	return n
}

// SortByTime orders series by first reference time, then first valid time,
// then feature name.
func SortByTime[T any](series []TimeSeries[T]) {
	sort.SliceStable(series, func(i, j int) bool {
		return compareSeries(series[i], series[j]) < 0
	})
}

func compareSeries[T any](a, b TimeSeries[T]) int {
	ra, oka := a.meta.FirstReferenceTime()
	rb, okb := b.meta.FirstReferenceTime()
	switch {
	case oka && okb:
		if c := ra.Compare(rb); c != 0 {
			return c
		}
	case oka != okb:
		if oka {
			return 1
		}
		return -1
	}
	fa, oka := a.First()
	fb, okb := b.First()
	if oka && okb {
		if c := fa.Time.Compare(fb.Time); c != 0 {
			return c
		}
	} else if oka != okb {
		if oka {
			return 1
		}
		return -1
	}
	switch {
	case a.meta.Feature.Name < b.meta.Feature.Name:
		return -1
	case a.meta.Feature.Name > b.meta.Feature.Name:
		return 1
	}
	return 0
}

// RemoveEmpty drops series without events.
func RemoveEmpty[T any](series []TimeSeries[T]) []TimeSeries[T] {
	out := make([]TimeSeries[T], 0, len(series))
	for _, s := range series {
		if !s.IsEmpty() {
			out = append(out, s)
		}
	}
	return out
}

// GroupByFeature buckets series by feature name, preserving order.
func GroupByFeature[T any](series []TimeSeries[T]) map[string][]TimeSeries[T] {
	out := make(map[string][]TimeSeries[T])
	for _, s := range series {
		name := s.meta.Feature.Name
		out[name] = append(out[name], s)
	}
	return out
}
