package upscale

import "errors"

// Sentinel errors for this package.
var (
	ErrUpscaling = errors.New("upscaling failed")
)
