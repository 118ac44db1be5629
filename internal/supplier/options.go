package supplier

import (
	"context"
	"time"

	"github.com/okian/hydropool/internal/baseline"
	"github.com/okian/hydropool/internal/covariate"
	"github.com/okian/hydropool/internal/crosspair"
	"github.com/okian/hydropool/internal/domain/pool"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/pairing"
	"github.com/okian/hydropool/internal/retrieval"
	"github.com/okian/hydropool/internal/upscale"
	"github.com/okian/hydropool/pkg/logger"
)

// Option applies a configuration option to the Supplier.
type Option[R any] func(*Supplier[R])

// GeneratorFactory builds a baseline generator from the left data of one pool.
type GeneratorFactory[R any] func(ctx context.Context, source retrieval.Retriever[float64]) (baseline.Generator[R], error)

// WithRequest sets the pool request to build.
func WithRequest[R any](r pool.Request) Option[R] {
	return func(s *Supplier[R]) {
		s.request = r
		s.hasRequest = true
	}
}

// WithLeft sets the left data source.
func WithLeft[R any](r retrieval.Retriever[float64]) Option[R] {
	return func(s *Supplier[R]) { s.left = r }
}

// WithRight sets the right data source.
func WithRight[R any](r retrieval.Retriever[R]) Option[R] {
	return func(s *Supplier[R]) { s.right = r }
}

// WithBaseline sets a retrieved baseline source.
func WithBaseline[R any](r retrieval.Retriever[R]) Option[R] {
	return func(s *Supplier[R]) { s.baseline = r }
}

// WithBaselineGenerator generates the baseline from the left data instead of
// retrieving it.
func WithBaselineGenerator[R any](f GeneratorFactory[R]) Option[R] {
	return func(s *Supplier[R]) { s.generator = f }
}

// WithLeftUpscaler sets the upscaler for left series.
func WithLeftUpscaler[R any](u upscale.Upscaler[float64]) Option[R] {
	return func(s *Supplier[R]) { s.leftUpscaler = u }
}

// WithRightUpscaler sets the upscaler for right and baseline series.
func WithRightUpscaler[R any](u upscale.Upscaler[R]) Option[R] {
	return func(s *Supplier[R]) { s.rightUpscaler = u }
}

// WithPairer replaces the default exact-time pairer.
func WithPairer[R any](p pairing.Pairer[float64, R]) Option[R] {
	return func(s *Supplier[R]) {
		if p != nil {
			s.pairer = p
		}
	}
}

// WithRightFilter removes missing values from right and baseline series before
// pairing.
func WithRightFilter[R any](f func(timeseries.TimeSeries[R]) timeseries.TimeSeries[R]) Option[R] {
	return func(s *Supplier[R]) {
		if f != nil {
			s.rightFilter = f
		}
	}
}

// WithCrossPairing cross-pairs the main and baseline series within scope.
func WithCrossPairing[R any](c *crosspair.CrossPairer[pool.Pair[float64, R]], scope crosspair.Scope) Option[R] {
	return func(s *Supplier[R]) {
		s.crossPairer = c
		s.crossPairScope = scope
		s.crossPairDeclared = true
	}
}

// WithClimatology attaches the left climatology to the pool.
func WithClimatology[R any]() Option[R] {
	return func(s *Supplier[R]) { s.climatology = true }
}

// WithClimatologyAdmissible restricts the values entering the climatology.
func WithClimatologyAdmissible[R any](ok func(float64) bool) Option[R] {
	return func(s *Supplier[R]) {
		if ok != nil {
			s.climatologyOK = ok
		}
	}
}

// WithTimeShifts shifts the valid times of each side after retrieval.
func WithTimeShifts[R any](left, right, baseline time.Duration) Option[R] {
	return func(s *Supplier[R]) {
		s.leftShift = left
		s.rightShift = right
		s.baselineShift = baseline
	}
}

// WithCovariateFilters applies filters to the assembled pool in order.
func WithCovariateFilters[R any](filters ...*covariate.Filter[pool.Pair[float64, R]]) Option[R] {
	return func(s *Supplier[R]) { s.covariates = append(s.covariates, filters...) }
}

// WithLogger sets a custom logger.
func WithLogger[R any](l logger.Logger) Option[R] {
	return func(s *Supplier[R]) {
		if l != nil {
			s.logger = l
		}
	}
}
