package factory

import "errors"

// Sentinel errors for this package.
var (
	ErrConfiguration = errors.New("invalid pool factory configuration")
)
