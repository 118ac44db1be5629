// Package factory expands an evaluation declaration into ordered pool
// requests and binds each request to a lazy pool supplier.
package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/hydropool/internal/baseline"
	"github.com/okian/hydropool/internal/covariate"
	"github.com/okian/hydropool/internal/crosspair"
	"github.com/okian/hydropool/internal/domain/declaration"
	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/pool"
	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/domain/timewindow"
	"github.com/okian/hydropool/internal/retrieval"
	"github.com/okian/hydropool/internal/supplier"
	"github.com/okian/hydropool/internal/upscale"
	"github.com/okian/hydropool/pkg/logger"
	"github.com/okian/hydropool/pkg/metrics"
)

// Factory produces pool requests and bindings for one evaluation.
type Factory struct {
	eval         declaration.Evaluation
	groups       []feature.Group
	desired      *timescale.TimeScale
	scales       datasetScales
	evaluationID string
	eventWindows []timewindow.TimeWindow
	hasEvents    bool
	strict       bool
	logger       logger.Logger
}

// datasetScales are the declared scales of series that arrive without one.
type datasetScales struct {
	left, right, baseline *timescale.TimeScale
}

// Binding is a pool request with the supplier that builds it. The supplier has
// not been evaluated.
type Binding[R any] struct {
	Request  pool.Request
	Supplier *supplier.Supplier[R]
}

// Get builds the bound pool.
func (b Binding[R]) Get(ctx context.Context) (pool.Pool[pool.Pair[float64, R]], error) {
	return b.Supplier.Get(ctx)
}

// New validates the declaration.
func New(eval declaration.Evaluation, opts ...Option) (*Factory, error) {
	f := &Factory{
		eval:         eval,
		evaluationID: uuid.NewString(),
		logger:       logger.Named("factory"),
	}
	for _, opt := range opts {
		opt(f)
	}

	if err := eval.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	groups, err := eval.Groups()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	desired, err := eval.DesiredTimeScale()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	for _, d := range []struct {
		dataset declaration.Dataset
		scale   **timescale.TimeScale
	}{
		{eval.Left, &f.scales.left},
		{eval.Right, &f.scales.right},
		{eval.BaselineDataset(), &f.scales.baseline},
	} {
		if *d.scale, err = d.dataset.Scale(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}
	for _, w := range f.eventWindows {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("%w: event window: %w", ErrConfiguration, err)
		}
	}
	f.groups = groups
	f.desired = desired
	return f, nil
}

// TimeWindows returns the pool windows in request order. Event windows, when
// set, replace the declared pools.
func (f *Factory) TimeWindows() []timewindow.TimeWindow {
	if f.hasEvents {
		return timewindow.Sorted(f.eventWindows)
	}
	return f.eval.TimeWindows()
}

// GetPoolRequests returns one request per time window and feature group, with
// windows outer and groups inner.
func (f *Factory) GetPoolRequests() []pool.Request {
	evaluation := pool.Evaluation{
		ID:                f.evaluationID,
		LeftVariable:      f.eval.LeftVariable,
		RightVariable:     f.eval.RightVariable,
		BaselineVariable:  f.eval.BaselineVariable,
		MeasurementUnit:   f.eval.Unit,
		BaselineGenerated: f.eval.HasGeneratedBaseline(),
	}

	windows := f.TimeWindows()
	requests := make([]pool.Request, 0, len(windows)*len(f.groups))
	for _, w := range windows {
		for _, g := range f.groups {
			meta := pool.Metadata{
				Evaluation: evaluation,
				Group:      g,
				Window:     w,
				TimeScale:  f.desired,
			}
			var bm *pool.Metadata
			if f.eval.HasBaseline() {
				b := meta
				bm = &b
			}
			requests = append(requests, pool.NewRequest(meta, bm))
		}
	}
	metrics.UpdatePoolRequests(len(requests))
	f.logger.Info(context.Background(), "created pool requests",
		logger.String("evaluation", f.evaluationID),
		logger.Int("windows", len(windows)),
		logger.Int("groups", len(f.groups)),
		logger.Int("requests", len(requests)))
	return requests
}

// SingleValuedPools binds each request to a supplier of single-valued pairs.
func (f *Factory) SingleValuedPools(requests []pool.Request, retrievers retrieval.Factory[float64, float64],
) ([]Binding[float64], error) {
	return bind(f, requests, retrievers, func(req pool.Request) []supplier.Option[float64] {
		opts := []supplier.Option[float64]{
			supplier.WithRightUpscaler[float64](upscale.NewSingleValued(f.upscaleOptions()...)),
			supplier.WithRightFilter(timeseries.FilterFinite),
		}
		if g := f.eval.Baseline; g != nil && g.Generated != nil {
			order := g.Generated.Order
			if order == 0 {
				order = 1
			}
			opts = append(opts, supplier.WithBaselineGenerator(persistence(order, f.upscaleOptions())))
		}
		return opts
	})
}

// EnsemblePools binds each request to a supplier of ensemble pairs. Generated
// baselines are single-valued and cannot serve ensemble pools.
func (f *Factory) EnsemblePools(requests []pool.Request,
	retrievers retrieval.Factory[float64, timeseries.Ensemble],
) ([]Binding[timeseries.Ensemble], error) {
	if f.eval.HasGeneratedBaseline() {
		return nil, fmt.Errorf("%w: generated baselines are not supported for ensemble forecasts", ErrConfiguration)
	}
	return bind(f, requests, retrievers, func(pool.Request) []supplier.Option[timeseries.Ensemble] {
		return []supplier.Option[timeseries.Ensemble]{
			supplier.WithRightUpscaler[timeseries.Ensemble](upscale.NewEnsemble(f.upscaleOptions()...)),
			supplier.WithRightFilter(timeseries.FilterFiniteEnsemble),
		}
	})
}

func bind[R any](f *Factory, requests []pool.Request, retrievers retrieval.Factory[float64, R],
	specific func(pool.Request) []supplier.Option[R],
) ([]Binding[R], error) {
	var method crosspair.Method
	var scope crosspair.Scope
	if cp := f.eval.CrossPair; cp != nil {
		var err error
		if method, err = crosspair.ParseMethod(cp.Method); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		if scope, err = crosspair.ParseScope(cp.Scope); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}

	baselineShift := f.eval.BaselineDataset().TimeShift

	out := make([]Binding[R], 0, len(requests))
	for _, req := range requests {
		group := req.Metadata.Group
		window := timewindow.AdjustForTimeScale(req.Metadata.Window, f.desired)

		leftWindow := shifted(window, f.eval.Left.TimeShift)
		if f.eval.HasGeneratedBaseline() {
			leftWindow = nil
		}
		opts := []supplier.Option[R]{
			supplier.WithRequest[R](req),
			supplier.WithLeft[R](retrieval.WithDefaultTimeScale(
				retrievers.Left(group.Lefts(), leftWindow), f.scales.left)),
			supplier.WithRight[R](retrieval.WithDefaultTimeScale(
				retrievers.Right(group.Rights(), shifted(window, f.eval.Right.TimeShift)), f.scales.right)),
			supplier.WithLeftUpscaler[R](upscale.NewSingleValued(f.upscaleOptions()...)),
			supplier.WithTimeShifts[R](f.eval.Left.TimeShift, f.eval.Right.TimeShift, baselineShift),
			supplier.WithLogger[R](f.logger.Named("supplier")),
		}
		if f.eval.HasBaseline() && !f.eval.HasGeneratedBaseline() {
			opts = append(opts, supplier.WithBaseline[R](retrieval.WithDefaultTimeScale(
				retrievers.Baseline(group.Baselines(), shifted(window, baselineShift)), f.scales.baseline)))
		}
		if f.eval.CrossPair != nil {
			cp := crosspair.New[pool.Pair[float64, R]](crosspair.WithMethod(method))
			opts = append(opts, supplier.WithCrossPairing[R](cp, scope))
		}
		if f.eval.Climatology {
			opts = append(opts, supplier.WithClimatology[R]())
		}
		for _, d := range f.eval.CovariatesFor(declaration.PurposeFilter) {
			c, err := covariate.FromDeclaration(d)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
			}
			filter, err := covariate.NewFilter[pool.Pair[float64, R]](c,
				retrievers.Covariate(d.Name, group.Lefts(), ptr(c.Window(window))),
				covariate.WithUpscaler(upscale.NewSingleValued(f.upscaleOptions()...)))
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
			}
			opts = append(opts, supplier.WithCovariateFilters[R](filter))
		}
		opts = append(opts, specific(req)...)

		s, err := supplier.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: pool %d: %w", ErrConfiguration, req.ID, err)
		}
		out = append(out, Binding[R]{Request: req, Supplier: s})
	}
	return out, nil
}

// shifted returns the retrieval window whose data, once moved by shift, covers w.
func shifted(w timewindow.TimeWindow, shift time.Duration) *timewindow.TimeWindow {
	return ptr(timewindow.ShiftValidTimes(w, -shift))
}

func ptr(w timewindow.TimeWindow) *timewindow.TimeWindow { return &w }

func (f *Factory) upscaleOptions() []upscale.Option {
	opts := []upscale.Option{upscale.WithLogger(f.logger.Named("upscale"))}
	if f.strict {
		opts = append(opts, upscale.WithStrict())
	}
	return opts
}

// persistence builds a persistence generator over the left data of a pool.
func persistence(order int, upscaleOpts []upscale.Option) supplier.GeneratorFactory[float64] {
	return func(ctx context.Context, source retrieval.Retriever[float64]) (baseline.Generator[float64], error) {
		p, err := baseline.NewPersistence(ctx, source,
			baseline.WithOrder(order),
			baseline.WithUpscaler(upscale.NewSingleValued(upscaleOpts...)))
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
