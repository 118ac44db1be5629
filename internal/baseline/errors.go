package baseline

import "errors"

// Sentinel errors for this package.
var (
	ErrBaselineGeneration = errors.New("baseline generation failed")
)
