package factory

import (
	"github.com/okian/hydropool/internal/domain/timewindow"
	"github.com/okian/hydropool/pkg/logger"
)

// Option applies a configuration option to the Factory.
type Option func(*Factory)

// WithEventWindows replaces the declared time pools with detected event
// windows.
func WithEventWindows(windows []timewindow.TimeWindow) Option {
	return func(f *Factory) {
		f.eventWindows = append([]timewindow.TimeWindow(nil), windows...)
		f.hasEvents = true
	}
}

// WithEvaluationID sets the evaluation identifier stamped on every request.
func WithEvaluationID(id string) Option {
	return func(f *Factory) {
		if id != "" {
			f.evaluationID = id
		}
	}
}

// WithStrictUpscaling makes every upscaler fail on incomplete buckets.
func WithStrictUpscaling() Option {
	return func(f *Factory) { f.strict = true }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}
