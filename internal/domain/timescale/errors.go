package timescale

import "errors"

// Sentinel errors for this package.
var (
	ErrInvalidTimeScale = errors.New("invalid time scale")
)
