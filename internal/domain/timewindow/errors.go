package timewindow

import "errors"

// Sentinel errors for this package.
var (
	ErrInvalidWindow      = errors.New("invalid time window")
	ErrEmptyWindows       = errors.New("no time windows supplied")
	ErrUnknownAggregation = errors.New("unknown time window aggregation")
)
