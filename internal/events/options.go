package events

import (
	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/upscale"
	"github.com/okian/hydropool/pkg/logger"
)

type options struct {
	upscaler upscale.Upscaler[float64]
	desired  *timescale.TimeScale
	logger   logger.Logger
}

// Option applies a configuration option to a Generator.
type Option func(*options)

// WithUpscaler sets the upscaler applied before detection.
func WithUpscaler(u upscale.Upscaler[float64]) Option {
	return func(o *options) {
		if u != nil {
			o.upscaler = u
		}
	}
}

// WithDesiredTimeScale sets the scale series are brought to before detection.
func WithDesiredTimeScale(ts *timescale.TimeScale) Option {
	return func(o *options) {
		o.desired = ts
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
