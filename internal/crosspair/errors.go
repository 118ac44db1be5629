package crosspair

import "errors"

// Sentinel errors for this package.
var (
	ErrCrossPairing  = errors.New("cross-pairing failed")
	ErrUnknownMethod = errors.New("unknown cross-pair method")
	ErrUnknownScope  = errors.New("unknown cross-pair scope")
)
