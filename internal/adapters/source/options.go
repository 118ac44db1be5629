package source

import (
	"github.com/okian/hydropool/internal/retrieval"
	"github.com/okian/hydropool/pkg/logger"
)

type options struct {
	breaker *retrieval.BreakerSettings
	logger  logger.Logger
}

// Option applies a configuration option to a Factory.
type Option func(*options)

// WithBreaker guards each orientation of the store with a circuit breaker.
func WithBreaker(settings retrieval.BreakerSettings) Option {
	return func(o *options) {
		o.breaker = &settings
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
