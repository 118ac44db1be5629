package covariate

import "errors"

// Sentinel errors for this package.
var (
	ErrCovariate = errors.New("covariate filtering failed")
)
