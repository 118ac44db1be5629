package pairing

import "github.com/okian/hydropool/pkg/logger"

// Option applies a configuration option to the TimePairer.
type Option[L, R any] func(*TimePairer[L, R])

// WithLeftAdmissible skips events whose left value fails ok.
func WithLeftAdmissible[L, R any](ok func(L) bool) Option[L, R] {
	return func(p *TimePairer[L, R]) {
		if ok != nil {
			p.leftOK = ok
		}
	}
}

// WithRightAdmissible skips events whose right value fails ok.
func WithRightAdmissible[L, R any](ok func(R) bool) Option[L, R] {
	return func(p *TimePairer[L, R]) {
		if ok != nil {
			p.rightOK = ok
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger[L, R any](l logger.Logger) Option[L, R] {
	return func(p *TimePairer[L, R]) {
		if l != nil {
			p.logger = l
		}
	}
}
