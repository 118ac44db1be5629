package pairing

import "errors"

// Sentinel errors for this package.
var (
	ErrPairing = errors.New("pairing failed")
)
