package app

import "errors"

// Sentinel errors for this package.
var (
	ErrNotOpen    = errors.New("source is not open")
	ErrEvaluation = errors.New("evaluation failed")
)
