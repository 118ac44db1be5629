package timewindow

import "time"

// Option bounds one axis of a TimeWindow.
type Option func(*TimeWindow)

// WithReferenceTimes bounds the reference time axis.
func WithReferenceTimes(earliest, latest time.Time) Option {
	return func(w *TimeWindow) {
		w.EarliestReferenceTime = earliest
		w.LatestReferenceTime = latest
	}
}

// WithValidTimes bounds the valid time axis.
func WithValidTimes(earliest, latest time.Time) Option {
	return func(w *TimeWindow) {
		w.EarliestValidTime = earliest
		w.LatestValidTime = latest
	}
}

// WithLeadDurations bounds the lead duration axis.
func WithLeadDurations(earliest, latest time.Duration) Option {
	return func(w *TimeWindow) {
		w.EarliestLeadDuration = earliest
		w.LatestLeadDuration = latest
	}
}
