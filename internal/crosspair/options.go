package crosspair

import "github.com/okian/hydropool/pkg/logger"

type options struct {
	method Method
	logger logger.Logger
}

// Option applies a configuration option to a CrossPairer.
type Option func(*options)

// WithMethod sets the reference-time matching method.
func WithMethod(m Method) Option {
	return func(o *options) { o.method = m }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
