package timeseries

import "errors"

// Sentinel errors for this package.
var (
	ErrDuplicateEvent = errors.New("duplicate event time")
	ErrInconsistent   = errors.New("inconsistent time series")
)
