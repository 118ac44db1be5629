package declaration

import "errors"

// Sentinel errors for this package.
var (
	ErrInvalidDeclaration = errors.New("invalid declaration")
)
