package timewindow

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Aggregation collapses a set of windows into one.
type Aggregation int

// Supported aggregations.
const (
	Maximum Aggregation = iota + 1
	Minimum
	Average
)

func (a Aggregation) String() string {
	switch a {
	case Maximum:
		return "MAXIMUM"
	case Minimum:
		return "MINIMUM"
	case Average:
		return "AVERAGE"
	}
	return fmt.Sprintf("Aggregation(%d)", int(a))
}

// ParseAggregation maps a declared name onto an Aggregation. The empty string
// yields zero, meaning no aggregation.
func ParseAggregation(s string) (Aggregation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return 0, nil
	case "MAXIMUM":
		return Maximum, nil
	case "MINIMUM":
		return Minimum, nil
	case "AVERAGE":
		return Average, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAggregation, s)
}

// Sorted returns the windows de-duplicated and in Compare order.
func Sorted(windows []TimeWindow) []TimeWindow {
	out := make([]TimeWindow, len(windows))
	copy(out, windows)
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	n := 0
	for i := range out {
		if n > 0 && out[n-1].Equal(out[i]) {
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}

// Union returns the smallest window enclosing every input window.
func Union(windows []TimeWindow) (TimeWindow, error) {
	if len(windows) == 0 {
		return TimeWindow{}, ErrEmptyWindows
	}
	u := windows[0]
	for _, w := range windows[1:] {
		u.EarliestReferenceTime = earliest(u.EarliestReferenceTime, w.EarliestReferenceTime)
		u.LatestReferenceTime = latest(u.LatestReferenceTime, w.LatestReferenceTime)
		u.EarliestValidTime = earliest(u.EarliestValidTime, w.EarliestValidTime)
		u.LatestValidTime = latest(u.LatestValidTime, w.LatestValidTime)
		u.EarliestLeadDuration = min(u.EarliestLeadDuration, w.EarliestLeadDuration)
		u.LatestLeadDuration = max(u.LatestLeadDuration, w.LatestLeadDuration)
	}
	return u, nil
}

// Intersects reports whether two windows overlap on every axis. An unbounded
// lead axis on either side always overlaps.
func Intersects(a, b TimeWindow) bool {
	if !overlapsInstant(a.EarliestValidTime, a.LatestValidTime, b.EarliestValidTime, b.LatestValidTime) {
		return false
	}
	if !overlapsInstant(a.EarliestReferenceTime, a.LatestReferenceTime, b.EarliestReferenceTime, b.LatestReferenceTime) {
		return false
	}
	if a.HasUnboundedLeadDurations() || b.HasUnboundedLeadDurations() {
		return true
	}
	return overlapsDuration(a.EarliestLeadDuration, a.LatestLeadDuration, b.EarliestLeadDuration, b.LatestLeadDuration)
}

func overlapsInstant(fl, fu, sl, su time.Time) bool {
	within := func(x, lo, hi time.Time) bool { return !x.Before(lo) && !x.After(hi) }
	return within(fl, sl, su) || within(sl, fl, fu) || within(fu, sl, su) || within(su, fl, fu)
}

func overlapsDuration(fl, fu, sl, su time.Duration) bool {
	within := func(x, lo, hi time.Duration) bool { return x >= lo && x <= hi }
	return within(fl, sl, su) || within(sl, fl, fu) || within(fu, sl, su) || within(su, fl, fu)
}

// Intersection returns every window of a that intersects a window of b,
// together with that partner, de-duplicated and sorted.
func Intersection(a, b []TimeWindow) []TimeWindow {
	var out []TimeWindow
	for _, x := range a {
		for _, y := range b {
			if Intersects(x, y) {
				out = append(out, x, y)
			}
		}
	}
	return Sorted(out)
}

// Aggregate collapses windows into one. Maximum takes the widest extent,
// Minimum the narrowest (latest bounds are clamped to the earliest ones when
// the windows do not overlap) and Average the mean of each bound.
func Aggregate(windows []TimeWindow, method Aggregation) (TimeWindow, error) {
	if len(windows) == 0 {
		return TimeWindow{}, ErrEmptyWindows
	}
	switch method {
	case Maximum:
		return Union(windows)
	case Minimum:
		return narrowest(windows), nil
	case Average:
		return average(windows), nil
	}
	return TimeWindow{}, fmt.Errorf("%w: %s", ErrUnknownAggregation, method)
}

func narrowest(windows []TimeWindow) TimeWindow {
	n := windows[0]
	for _, w := range windows[1:] {
		n.EarliestReferenceTime = latest(n.EarliestReferenceTime, w.EarliestReferenceTime)
		n.LatestReferenceTime = earliest(n.LatestReferenceTime, w.LatestReferenceTime)
		n.EarliestValidTime = latest(n.EarliestValidTime, w.EarliestValidTime)
		n.LatestValidTime = earliest(n.LatestValidTime, w.LatestValidTime)
		n.EarliestLeadDuration = max(n.EarliestLeadDuration, w.EarliestLeadDuration)
		n.LatestLeadDuration = min(n.LatestLeadDuration, w.LatestLeadDuration)
	}
	n.LatestReferenceTime = latest(n.LatestReferenceTime, n.EarliestReferenceTime)
	n.LatestValidTime = latest(n.LatestValidTime, n.EarliestValidTime)
	n.LatestLeadDuration = max(n.LatestLeadDuration, n.EarliestLeadDuration)
	return n
}

func average(windows []TimeWindow) TimeWindow {
	meanInstant := func(get func(TimeWindow) time.Time) time.Time {
		base := get(windows[0])
		var offset time.Duration
		for _, w := range windows[1:] {
			offset += get(w).Sub(base) / time.Duration(len(windows))
		}
		return base.Add(offset)
	}
	meanDuration := func(get func(TimeWindow) time.Duration) time.Duration {
		base := get(windows[0])
		var offset time.Duration
		for _, w := range windows[1:] {
			offset += (get(w) - base) / time.Duration(len(windows))
		}
		return base + offset
	}
	return TimeWindow{
		EarliestReferenceTime: meanInstant(func(w TimeWindow) time.Time { return w.EarliestReferenceTime }),
		LatestReferenceTime:   meanInstant(func(w TimeWindow) time.Time { return w.LatestReferenceTime }),
		EarliestValidTime:     meanInstant(func(w TimeWindow) time.Time { return w.EarliestValidTime }),
		LatestValidTime:       meanInstant(func(w TimeWindow) time.Time { return w.LatestValidTime }),
		EarliestLeadDuration:  meanDuration(func(w TimeWindow) time.Duration { return w.EarliestLeadDuration }),
		LatestLeadDuration:    meanDuration(func(w TimeWindow) time.Duration { return w.LatestLeadDuration }),
	}
}

func earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
