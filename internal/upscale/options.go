package upscale

import (
	"github.com/okian/hydropool/pkg/logger"
)

type options struct {
	logger logger.Logger
	strict bool
}

// Option applies a configuration option to an upscaler.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStrict fails when a required bucket is incomplete or aggregates to a
// non-finite value instead of skipping it.
func WithStrict() Option {
	return func(o *options) { o.strict = true }
}

func newOptions(opts []Option) options {
	o := options{logger: logger.Named("upscale")}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
