package baseline

import (
	"github.com/okian/hydropool/internal/upscale"
	"github.com/okian/hydropool/pkg/logger"
)

// Option applies a configuration option to Persistence.
type Option func(*Persistence)

// WithOrder sets the persistence order; zero persists the value at the
// reference time itself.
func WithOrder(k int) Option {
	return func(p *Persistence) { p.order = k }
}

// WithUpscaler sets the upscaler used when the source and template scales differ.
func WithUpscaler(u upscale.Upscaler[float64]) Option {
	return func(p *Persistence) {
		if u != nil {
			p.upscaler = u
		}
	}
}

// WithAdmissible rejects persisted values that fail ok.
func WithAdmissible(ok func(float64) bool) Option {
	return func(p *Persistence) {
		if ok != nil {
			p.admissible = ok
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Persistence) {
		if l != nil {
			p.logger = l
		}
	}
}
