package retrieval

import "errors"

// Sentinel errors for this package.
var (
	ErrRetrieval        = errors.New("retrieval failed")
	ErrUnknownCovariate = errors.New("unknown covariate dataset")
)
