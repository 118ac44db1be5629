// Package timewindow defines the admissible region of a pool along the
// reference time, valid time and lead duration axes.
package timewindow

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/hydropool/internal/domain/timescale"
)

// Sentinel bounds for unbounded axes.
var (
	MinInstant = time.Date(-100000, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxInstant = time.Date(100000, time.December, 31, 23, 59, 59, 0, time.UTC)
)

// Sentinel bounds for unbounded lead durations.
const (
	MinDuration = time.Duration(math.MinInt64)
	MaxDuration = time.Duration(math.MaxInt64)
)

// TimeWindow bounds a pool. Every interval is right-closed, (earliest, latest],
// except a degenerate interval whose bounds are equal, which admits exactly
// that bound.
type TimeWindow struct {
	EarliestReferenceTime time.Time
	LatestReferenceTime   time.Time
	EarliestValidTime     time.Time
	LatestValidTime       time.Time
	EarliestLeadDuration  time.Duration
	LatestLeadDuration    time.Duration
}

// Unbounded returns a window that admits everything.
func Unbounded() TimeWindow {
	return TimeWindow{
		EarliestReferenceTime: MinInstant,
		LatestReferenceTime:   MaxInstant,
		EarliestValidTime:     MinInstant,
		LatestValidTime:       MaxInstant,
		EarliestLeadDuration:  MinDuration,
		LatestLeadDuration:    MaxDuration,
	}
}

// New builds a validated window; axes without an option are unbounded.
func New(opts ...Option) (TimeWindow, error) {
	w := Unbounded()
	for _, opt := range opts {
		opt(&w)
	}
	w = w.normalized()
	if err := w.Validate(); err != nil {
		return TimeWindow{}, err
	}
	return w, nil
}

// Validate checks that earliest <= latest on every axis.
func (w TimeWindow) Validate() error {
	switch {
	case w.EarliestReferenceTime.After(w.LatestReferenceTime):
		return fmt.Errorf("%w: earliest reference time %s is after latest %s", ErrInvalidWindow,
			w.EarliestReferenceTime, w.LatestReferenceTime)
	case w.EarliestValidTime.After(w.LatestValidTime):
		return fmt.Errorf("%w: earliest valid time %s is after latest %s", ErrInvalidWindow,
			w.EarliestValidTime, w.LatestValidTime)
	case w.EarliestLeadDuration > w.LatestLeadDuration:
		return fmt.Errorf("%w: earliest lead duration %s is after latest %s", ErrInvalidWindow,
			w.EarliestLeadDuration, w.LatestLeadDuration)
	}
	return nil
}

func (w TimeWindow) normalized() TimeWindow {
	w.EarliestReferenceTime = w.EarliestReferenceTime.UTC().Round(0)
	w.LatestReferenceTime = w.LatestReferenceTime.UTC().Round(0)
	w.EarliestValidTime = w.EarliestValidTime.UTC().Round(0)
	w.LatestValidTime = w.LatestValidTime.UTC().Round(0)
	return w
}

// HasUnboundedReferenceTimes reports whether both reference bounds are sentinels.
func (w TimeWindow) HasUnboundedReferenceTimes() bool {
	return w.EarliestReferenceTime.Equal(MinInstant) && w.LatestReferenceTime.Equal(MaxInstant)
}

// HasUnboundedValidTimes reports whether both valid bounds are sentinels.
func (w TimeWindow) HasUnboundedValidTimes() bool {
	return w.EarliestValidTime.Equal(MinInstant) && w.LatestValidTime.Equal(MaxInstant)
}

// HasUnboundedLeadDurations reports whether both lead bounds are sentinels.
func (w TimeWindow) HasUnboundedLeadDurations() bool {
	return w.EarliestLeadDuration == MinDuration && w.LatestLeadDuration == MaxDuration
}

// ContainsReferenceTime reports whether t lies on the reference axis.
func (w TimeWindow) ContainsReferenceTime(t time.Time) bool {
	return containsInstant(w.EarliestReferenceTime, w.LatestReferenceTime, t)
}

// ContainsValidTime reports whether t lies on the valid axis.
func (w TimeWindow) ContainsValidTime(t time.Time) bool {
	return containsInstant(w.EarliestValidTime, w.LatestValidTime, t)
}

// ContainsLeadDuration reports whether d lies on the lead axis.
func (w TimeWindow) ContainsLeadDuration(d time.Duration) bool {
	if w.HasUnboundedLeadDurations() {
		return true
	}
	if w.EarliestLeadDuration == w.LatestLeadDuration {
		return d == w.EarliestLeadDuration
	}
	return d > w.EarliestLeadDuration && d <= w.LatestLeadDuration
}

func containsInstant(lower, upper, t time.Time) bool {
	if lower.Equal(upper) {
		return t.Equal(lower)
	}
	return t.After(lower) && !t.After(upper)
}

// Equal reports whether two windows have identical bounds.
func (w TimeWindow) Equal(o TimeWindow) bool {
	return w.Compare(o) == 0
}

// Compare orders windows by earliest then latest reference time, valid time
// and lead duration.
func (w TimeWindow) Compare(o TimeWindow) int {
	if c := w.EarliestReferenceTime.Compare(o.EarliestReferenceTime); c != 0 {
		return c
	}
	if c := w.LatestReferenceTime.Compare(o.LatestReferenceTime); c != 0 {
		return c
	}
	if c := w.EarliestValidTime.Compare(o.EarliestValidTime); c != 0 {
		return c
	}
	if c := w.LatestValidTime.Compare(o.LatestValidTime); c != 0 {
		return c
	}
	if c := compareDurations(w.EarliestLeadDuration, o.EarliestLeadDuration); c != 0 {
		return c
	}
	return compareDurations(w.LatestLeadDuration, o.LatestLeadDuration)
}

func compareDurations(a, b time.Duration) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s,%s,%s,%s,%s,%s]",
		instantString(w.EarliestReferenceTime), instantString(w.LatestReferenceTime),
		instantString(w.EarliestValidTime), instantString(w.LatestValidTime),
		durationString(w.EarliestLeadDuration), durationString(w.LatestLeadDuration))
}

func instantString(t time.Time) string {
	switch {
	case t.Equal(MinInstant):
		return "MIN"
	case t.Equal(MaxInstant):
		return "MAX"
	}
	return t.UTC().Format(time.RFC3339)
}

func durationString(d time.Duration) string {
	switch d {
	case MinDuration:
		return "MIN"
	case MaxDuration:
		return "MAX"
	}
	return d.String()
}

// ShiftValidTimes moves the bounded valid-time and lead-duration bounds of w by
// d. Reference times and unbounded axes are unchanged.
func ShiftValidTimes(w TimeWindow, d time.Duration) TimeWindow {
	if d == 0 {
		return w
	}
	if !w.EarliestValidTime.Equal(MinInstant) {
		w.EarliestValidTime = w.EarliestValidTime.Add(d)
	}
	if !w.LatestValidTime.Equal(MaxInstant) {
		w.LatestValidTime = w.LatestValidTime.Add(d)
	}
	if w.EarliestLeadDuration != MinDuration {
		w.EarliestLeadDuration += d
	}
	if w.LatestLeadDuration != MaxDuration {
		w.LatestLeadDuration += d
	}
	return w
}

// AdjustForTimeScale widens the lower lead and valid bounds by one period so
// that retrieval captures the data needed to form the first upscaled value.
// Sentinel bounds are left alone.
func AdjustForTimeScale(w TimeWindow, scale *timescale.TimeScale) TimeWindow {
	if scale == nil || scale.IsInstantaneous() {
		return w
	}
	if w.EarliestLeadDuration != MinDuration {
		w.EarliestLeadDuration -= scale.Period
	}
	if !w.EarliestValidTime.Equal(MinInstant) {
		w.EarliestValidTime = w.EarliestValidTime.Add(-scale.Period)
	}
	return w
}
