package covariate

import (
	"github.com/okian/hydropool/internal/upscale"
	"github.com/okian/hydropool/pkg/logger"
)

type options struct {
	predicate func(float64) bool
	upscaler  upscale.Upscaler[float64]
	logger    logger.Logger
}

// Option applies a configuration option to a Filter.
type Option func(*options)

// WithPredicate replaces the minimum/maximum test.
func WithPredicate(ok func(float64) bool) Option {
	return func(o *options) {
		if ok != nil {
			o.predicate = ok
		}
	}
}

// WithUpscaler sets the upscaler used to bring covariate data to the pool scale.
func WithUpscaler(u upscale.Upscaler[float64]) Option {
	return func(o *options) {
		if u != nil {
			o.upscaler = u
		}
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
