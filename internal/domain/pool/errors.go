package pool

import "errors"

// Sentinel errors for this package.
var (
	ErrInvalidPool = errors.New("invalid pool")
)
