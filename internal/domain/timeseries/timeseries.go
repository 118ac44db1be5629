// Package timeseries holds the immutable time-series model and the slicing
// helpers used throughout pooling.
package timeseries

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/timescale"
)

// ReferenceTimeType classifies a reference time.
type ReferenceTimeType int

// Reference time types.
const (
	Unknown ReferenceTimeType = iota
	T0
	AnalysisStartTime
	IssuedTime
	LatestObservation
)

func (r ReferenceTimeType) String() string {
	switch r {
	case T0:
		return "T0"
	case AnalysisStartTime:
		return "ANALYSIS_START_TIME"
	case IssuedTime:
		return "ISSUED_TIME"
	case LatestObservation:
		return "LATEST_OBSERVATION"
	}
	return "UNKNOWN"
}

// Event is a value at a valid time.
type Event[T any] struct {
	Time  time.Time
	Value T
}

// EventOf returns an event with a UTC, monotonic-free time.
func EventOf[T any](t time.Time, v T) Event[T] {
	return Event[T]{Time: t.UTC().Round(0), Value: v}
}

// Metadata describes a series.
type Metadata struct {
	ReferenceTimes map[ReferenceTimeType]time.Time
	TimeScale      *timescale.TimeScale
	Variable       string
	Feature        feature.Feature
	Unit           string
}

// HasReferenceTimes reports whether any reference time is set.
func (m Metadata) HasReferenceTimes() bool { return len(m.ReferenceTimes) > 0 }

// ReferenceTime returns the reference time of the given type.
func (m Metadata) ReferenceTime(t ReferenceTimeType) (time.Time, bool) {
	rt, ok := m.ReferenceTimes[t]
	return rt, ok
}

// ReferenceTimeTypes returns the set reference time types in ascending order.
func (m Metadata) ReferenceTimeTypes() []ReferenceTimeType {
	out := make([]ReferenceTimeType, 0, len(m.ReferenceTimes))
	for k := range m.ReferenceTimes {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FirstReferenceTime returns the reference time with the smallest type.
func (m Metadata) FirstReferenceTime() (time.Time, bool) {
	types := m.ReferenceTimeTypes()
	if len(types) == 0 {
		return time.Time{}, false
	}
	return m.ReferenceTimes[types[0]], true
}

// WithTimeScale returns a copy with the given scale.
func (m Metadata) WithTimeScale(ts *timescale.TimeScale) Metadata {
	m.ReferenceTimes = cloneReferenceTimes(m.ReferenceTimes)
	if ts != nil {
		c := *ts
		ts = &c
	}
	m.TimeScale = ts
	return m
}

// WithFeature returns a copy with the given feature.
func (m Metadata) WithFeature(f feature.Feature) Metadata {
	m.ReferenceTimes = cloneReferenceTimes(m.ReferenceTimes)
	m.Feature = f
	return m
}

// WithVariable returns a copy with the given variable name.
func (m Metadata) WithVariable(v string) Metadata {
	m.ReferenceTimes = cloneReferenceTimes(m.ReferenceTimes)
	m.Variable = v
	return m
}

// WithUnit returns a copy with the given unit.
func (m Metadata) WithUnit(u string) Metadata {
	m.ReferenceTimes = cloneReferenceTimes(m.ReferenceTimes)
	m.Unit = u
	return m
}

// WithReferenceTimes returns a copy with the given reference times.
func (m Metadata) WithReferenceTimes(rt map[ReferenceTimeType]time.Time) Metadata {
	m.ReferenceTimes = cloneReferenceTimes(rt)
	return m
}

func (m Metadata) String() string {
	var b strings.Builder
	b.WriteString("{feature=")
	b.WriteString(m.Feature.Name)
	b.WriteString(",variable=")
	b.WriteString(m.Variable)
	for _, t := range m.ReferenceTimeTypes() {
		fmt.Fprintf(&b, ",%s=%s", t, m.ReferenceTimes[t].UTC().Format(time.RFC3339))
	}
	if m.TimeScale != nil {
		b.WriteString(",scale=")
		b.WriteString(m.TimeScale.String())
	}
	b.WriteString("}")
	return b.String()
}

func cloneReferenceTimes(in map[ReferenceTimeType]time.Time) map[ReferenceTimeType]time.Time {
	if len(in) == 0 {
		return nil
	}
	out := make(map[ReferenceTimeType]time.Time, len(in))
	for k, v := range in {
		out[k] = v.UTC().Round(0)
	}
	return out
}

// TimeSeries is an immutable, strictly time-ordered sequence of events.
type TimeSeries[T any] struct {
	meta   Metadata
	events []Event[T]
}

// New sorts the events and rejects duplicate valid times.
func New[T any](meta Metadata, events ...Event[T]) (TimeSeries[T], error) {
	return NewBuilder[T]().SetMetadata(meta).AddEvents(events...).Build()
}

// Empty returns a series with metadata and no events.
func Empty[T any](meta Metadata) TimeSeries[T] {
	return TimeSeries[T]{meta: meta.WithReferenceTimes(meta.ReferenceTimes)}
}

// fromOrdered wraps events already known to be strictly increasing.
func fromOrdered[T any](meta Metadata, events []Event[T]) TimeSeries[T] {
	return TimeSeries[T]{meta: meta, events: events}
}

// Metadata returns the series metadata.
func (s TimeSeries[T]) Metadata() Metadata { return s.meta }

// Events returns a copy of the events.
func (s TimeSeries[T]) Events() []Event[T] {
	out := make([]Event[T], len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of events.
func (s TimeSeries[T]) Len() int { return len(s.events) }

// IsEmpty reports whether the series has no events.
func (s TimeSeries[T]) IsEmpty() bool { return len(s.events) == 0 }

// At returns the i-th event.
func (s TimeSeries[T]) At(i int) Event[T] { return s.events[i] }

// First returns the earliest event.
func (s TimeSeries[T]) First() (Event[T], bool) {
	if len(s.events) == 0 {
		return Event[T]{}, false
	}
	return s.events[0], true
}

// Last returns the latest event.
func (s TimeSeries[T]) Last() (Event[T], bool) {
	if len(s.events) == 0 {
		return Event[T]{}, false
	}
	return s.events[len(s.events)-1], true
}

// ValidTimes returns the valid times in order.
func (s TimeSeries[T]) ValidTimes() []time.Time {
	out := make([]time.Time, len(s.events))
	for i, e := range s.events {
		out[i] = e.Time
	}
	return out
}

// ValueAt returns the value at exactly t.
func (s TimeSeries[T]) ValueAt(t time.Time) (T, bool) {
	i := sort.Search(len(s.events), func(i int) bool { return !s.events[i].Time.Before(t) })
	if i < len(s.events) && s.events[i].Time.Equal(t) {
		return s.events[i].Value, true
	}
	var zero T
	return zero, false
}

// TimeScale returns the series scale, nil when unknown.
func (s TimeSeries[T]) TimeScale() *timescale.TimeScale { return s.meta.TimeScale }

// WithMetadata returns the same events under new metadata.
func (s TimeSeries[T]) WithMetadata(meta Metadata) TimeSeries[T] {
	return fromOrdered(meta.WithReferenceTimes(meta.ReferenceTimes), s.events)
}

func (s TimeSeries[T]) String() string {
	return fmt.Sprintf("%s[%d events]", s.meta, len(s.events))
}

// Builder accumulates events for a TimeSeries.
type Builder[T any] struct {
	meta   Metadata
	events []Event[T]
}

// NewBuilder returns an empty builder.
func NewBuilder[T any]() *Builder[T] {
	return &Builder[T]{}
}

// SetMetadata sets the metadata.
func (b *Builder[T]) SetMetadata(meta Metadata) *Builder[T] {
	b.meta = meta
	return b
}

// AddEvent appends one event.
func (b *Builder[T]) AddEvent(e Event[T]) *Builder[T] {
	b.events = append(b.events, EventOf(e.Time, e.Value))
	return b
}

// AddEvents appends events.
func (b *Builder[T]) AddEvents(events ...Event[T]) *Builder[T] {
	for _, e := range events {
		b.AddEvent(e)
	}
	return b
}

// Build sorts the events and returns the series, rejecting duplicates.
func (b *Builder[T]) Build() (TimeSeries[T], error) {
	events := make([]Event[T], len(b.events))
	copy(events, b.events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })
	for i := 1; i < len(events); i++ {
		if events[i].Time.Equal(events[i-1].Time) {
			return TimeSeries[T]{}, fmt.Errorf("%w: %s in %s", ErrDuplicateEvent,
				events[i].Time.Format(time.RFC3339), b.meta)
		}
	}
	return fromOrdered(b.meta.WithReferenceTimes(b.meta.ReferenceTimes), events), nil
}
