package source

import "errors"

// Sentinel errors for this package.
var (
	ErrMalformedRow  = errors.New("malformed source row")
	ErrUnknownSource = errors.New("unknown source kind")
	ErrOpenSource    = errors.New("failed to open source")
)
