// Package timescale describes the temporal support of a value: the period
// over which it applies and the function that produced it.
package timescale

import (
	"fmt"
	"strings"
	"time"
)

// InstantaneousThreshold is the longest period still treated as instantaneous.
const InstantaneousThreshold = time.Minute

// Function is the aggregation that produced a value over its period.
type Function int

// Supported functions.
const (
	Unknown Function = iota
	Mean
	Total
	Maximum
	Minimum
)

var functionNames = map[Function]string{
	Unknown: "UNKNOWN",
	Mean:    "MEAN",
	Total:   "TOTAL",
	Maximum: "MAXIMUM",
	Minimum: "MINIMUM",
}

func (f Function) String() string {
	if n, ok := functionNames[f]; ok {
		return n
	}
	return fmt.Sprintf("Function(%d)", int(f))
}

// ParseFunction maps a declared name onto a Function.
func ParseFunction(s string) (Function, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "UNKNOWN":
		return Unknown, nil
	case "MEAN", "AVERAGE":
		return Mean, nil
	case "TOTAL", "SUM", "ACCUMULATION":
		return Total, nil
	case "MAXIMUM", "MAX":
		return Maximum, nil
	case "MINIMUM", "MIN":
		return Minimum, nil
	}
	return Unknown, fmt.Errorf("%w: function %q", ErrInvalidTimeScale, s)
}

// TimeScale is a period plus the function applied over it.
type TimeScale struct {
	Period   time.Duration
	Function Function
}

// New validates and returns a time scale.
func New(period time.Duration, fn Function) (TimeScale, error) {
	if period < 0 {
		return TimeScale{}, fmt.Errorf("%w: negative period %s", ErrInvalidTimeScale, period)
	}
	return TimeScale{Period: period, Function: fn}, nil
}

// Instantaneous returns the canonical instantaneous scale.
func Instantaneous() TimeScale {
	return TimeScale{Period: time.Second, Function: Unknown}
}

// IsInstantaneous reports whether the period is no longer than InstantaneousThreshold.
func (t TimeScale) IsInstantaneous() bool {
	return t.Period <= InstantaneousThreshold
}

// Equal reports whether two scales are interchangeable. Two instantaneous
// scales are always equal.
func (t TimeScale) Equal(o TimeScale) bool {
	if t.IsInstantaneous() && o.IsInstantaneous() {
		return true
	}
	return t.Period == o.Period && t.Function == o.Function
}

func (t TimeScale) String() string {
	if t.IsInstantaneous() {
		return "[INSTANTANEOUS]"
	}
	return fmt.Sprintf("[%s,%s]", t.Period, t.Function)
}

// Ptr returns a pointer to a copy of t, for optional metadata fields.
func (t TimeScale) Ptr() *TimeScale {
	return &t
}

// RequiresRescaling reports whether a series with the existing scale must be
// rescaled to reach the desired scale. A nil desired scale never requires
// rescaling; a nil existing scale does unless the desired one is instantaneous.
func RequiresRescaling(existing, desired *TimeScale) bool {
	if desired == nil {
		return false
	}
	if existing == nil {
		return !desired.IsInstantaneous()
	}
	return !existing.Equal(*desired)
}
