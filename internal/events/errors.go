package events

import "errors"

// Sentinel errors for this package.
var (
	ErrEventDetection     = errors.New("event detection failed")
	ErrInvalidParameters  = errors.New("invalid event detection parameters")
	ErrUnknownCombination = errors.New("unknown event combination")
)
