package feature

import "errors"

// Sentinel errors for this package.
var (
	ErrInvalidGroup = errors.New("invalid feature group")
)
