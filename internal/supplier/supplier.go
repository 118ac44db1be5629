// Package supplier builds one pool of paired data on demand: it retrieves the
// left, right and baseline series, brings them to a common time scale, pairs
// them by valid time and assembles the result.
package supplier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/hydropool/internal/baseline"
	"github.com/okian/hydropool/internal/covariate"
	"github.com/okian/hydropool/internal/crosspair"
	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/pool"
	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/pairing"
	"github.com/okian/hydropool/internal/retrieval"
	"github.com/okian/hydropool/internal/upscale"
	"github.com/okian/hydropool/pkg/logger"
	"github.com/okian/hydropool/pkg/metrics"
)

// Supplier lazily builds the pool for one request. Every Get re-runs the whole
// pipeline against fresh retrievals.
type Supplier[R any] struct {
	request    pool.Request
	hasRequest bool

	left      retrieval.Retriever[float64]
	right     retrieval.Retriever[R]
	baseline  retrieval.Retriever[R]
	generator GeneratorFactory[R]

	leftUpscaler  upscale.Upscaler[float64]
	rightUpscaler upscale.Upscaler[R]
	pairer        pairing.Pairer[float64, R]
	rightFilter   func(timeseries.TimeSeries[R]) timeseries.TimeSeries[R]

	crossPairer       *crosspair.CrossPairer[pool.Pair[float64, R]]
	crossPairScope    crosspair.Scope
	crossPairDeclared bool

	climatology   bool
	climatologyOK func(float64) bool

	leftShift     time.Duration
	rightShift    time.Duration
	baselineShift time.Duration

	covariates []*covariate.Filter[pool.Pair[float64, R]]
	logger     logger.Logger
}

// match is a scaled left series and the right series it was paired with.
type match[R any] struct {
	tuple feature.Tuple
	left  timeseries.TimeSeries[float64]
	right timeseries.TimeSeries[R]
}

// New validates the configuration. Nothing is retrieved until Get.
func New[R any](opts ...Option[R]) (*Supplier[R], error) {
	s := &Supplier[R]{
		pairer:        pairing.New[float64, R](),
		rightFilter:   func(in timeseries.TimeSeries[R]) timeseries.TimeSeries[R] { return in },
		climatologyOK: func(float64) bool { return true },
		logger:        logger.Named("supplier"),
	}
	for _, opt := range opts {
		opt(s)
	}

	switch {
	case !s.hasRequest:
		return nil, fmt.Errorf("%w: missing pool request", ErrConfiguration)
	case s.left == nil:
		return nil, fmt.Errorf("%w: missing left retriever", ErrConfiguration)
	case s.right == nil:
		return nil, fmt.Errorf("%w: missing right retriever", ErrConfiguration)
	case s.baseline != nil && s.generator != nil:
		return nil, fmt.Errorf("%w: a baseline is either retrieved or generated, not both", ErrConfiguration)
	case s.request.HasBaseline() && s.baseline == nil && s.generator == nil:
		return nil, fmt.Errorf("%w: baseline metadata without a baseline source", ErrConfiguration)
	case !s.request.HasBaseline() && (s.baseline != nil || s.generator != nil):
		return nil, fmt.Errorf("%w: baseline source without baseline metadata", ErrConfiguration)
	case s.crossPairDeclared && s.crossPairer == nil:
		return nil, fmt.Errorf("%w: cross-pairing declared without a cross-pairer", ErrConfiguration)
	}
	if ts := s.request.Metadata.TimeScale; ts != nil && !ts.IsInstantaneous() {
		if s.leftUpscaler == nil || s.rightUpscaler == nil {
			return nil, fmt.Errorf("%w: desired time scale %s needs both upscalers", ErrConfiguration, ts)
		}
	}
	if s.leftUpscaler == nil {
		s.leftUpscaler = upscale.NewSingleValued(upscale.WithLogger(s.logger))
	}
	return s, nil
}

// Request returns the request this supplier builds.
func (s *Supplier[R]) Request() pool.Request { return s.request }

// Get builds the pool. Failures are returned as *PoolError.
func (s *Supplier[R]) Get(ctx context.Context) (pool.Pool[pool.Pair[float64, R]], error) {
	start := time.Now()
	p, err := s.build(ctx)
	ms := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordPoolFailed(cause(err), ms)
		s.logger.Error(ctx, "pool build failed",
			logger.Uint64("pool_id", s.request.ID),
			logger.String("group", s.request.Metadata.Group.Name),
			logger.Error(err))
		return pool.Pool[pool.Pair[float64, R]]{}, &PoolError{Request: s.request, Err: err}
	}
	metrics.RecordPoolBuilt(p.PairCount(), ms)
	s.logger.Debug(ctx, "pool built",
		logger.Uint64("pool_id", s.request.ID),
		logger.Int("pairs", p.PairCount()),
		logger.Int("baseline_pairs", p.BaselinePairCount()),
		logger.Float64("latency_ms", ms))
	return p, nil
}

func (s *Supplier[R]) build(ctx context.Context) (pool.Pool[pool.Pair[float64, R]], error) {
	var zero pool.Pool[pool.Pair[float64, R]]
	meta := s.request.Metadata
	left := retrieval.NewCaching[float64](retrieval.NewInstrumented(retrieval.Left, s.left))

	var (
		leftData     []timeseries.TimeSeries[float64]
		rightData    []timeseries.TimeSeries[R]
		baselineData []timeseries.TimeSeries[R]
		generator    baseline.Generator[R]
		climatology  *pool.Climatology
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		leftData, err = left.Get(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rightData, err = retrieval.NewInstrumented(retrieval.Right, s.right).Get(gctx)
		return err
	})
	if s.baseline != nil {
		g.Go(func() error {
			var err error
			baselineData, err = retrieval.NewInstrumented(retrieval.Baseline, s.baseline).Get(gctx)
			return err
		})
	}
	if s.generator != nil {
		g.Go(func() error {
			gen, err := s.generator(gctx, left)
			switch {
			case err == nil:
				generator = gen
			case errors.Is(err, retrieval.ErrRetrieval) || !errors.Is(err, baseline.ErrBaselineGeneration):
				return err
			default:
				s.logger.Warn(gctx, "baseline cannot be generated for this pool",
					logger.Uint64("pool_id", s.request.ID), logger.Error(err))
				metrics.RecordBaselineSeriesDropped()
			}
			return nil
		})
	}
	if s.climatology {
		g.Go(func() error {
			data, err := left.Get(gctx)
			if err != nil {
				return err
			}
			climatology, err = s.climatologyOf(data, meta.TimeScale)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return zero, err
	}

	desired := s.desiredScale(rightData)
	meta.TimeScale = desired

	leftByFeature := make(map[string][]timeseries.TimeSeries[float64])
	for _, l := range leftData {
		l = timeseries.ShiftValidTimes(l, s.leftShift)
		name := l.Metadata().Feature.Name
		leftByFeature[name] = append(leftByFeature[name], l)
	}

	main, matches, err := s.pairAll(ctx, leftByFeature, rightData, s.rightShift, meta.Group.TuplesForRight, desired)
	if err != nil {
		return zero, err
	}

	var base map[string][]timeseries.TimeSeries[pool.Pair[float64, R]]
	switch {
	case s.baseline != nil:
		group := s.request.BaselineMetadata.Group
		if base, _, err = s.pairAll(ctx, leftByFeature, baselineData, s.baselineShift, group.TuplesForBaseline,
			desired); err != nil {
			return zero, err
		}
	case s.generator != nil:
		if base, err = s.generate(ctx, generator, matches); err != nil {
			return zero, err
		}
	}

	if s.crossPairer != nil {
		if main, base, err = s.crossPairer.Apply(s.crossPairScope, main, base); err != nil {
			return zero, err
		}
	}

	for _, t := range meta.Group.Tuples {
		if timeseries.CountEvents(main[t.String()]) == 0 {
			s.logger.Warn(ctx, "no pairs for feature tuple",
				logger.Uint64("pool_id", s.request.ID),
				logger.String("tuple", t.String()),
				logger.String("window", meta.Window.String()))
		}
	}

	b := pool.NewBuilder[pool.Pair[float64, R]]().
		SetMetadata(meta).
		AddData(flatten(main)...)
	if bm := s.request.BaselineMetadata; bm != nil {
		scaled := *bm
		scaled.TimeScale = desired
		b.SetMetadataForBaseline(&scaled).AddDataForBaseline(flatten(base)...)
	}
	if climatology != nil {
		b.SetClimatology(climatology)
	}
	p, err := b.Build()
	if err != nil {
		return zero, err
	}

	for _, f := range s.covariates {
		if p, err = f.Apply(ctx, p); err != nil {
			return zero, err
		}
	}
	return p, nil
}

// pairAll pairs each right-side series with the left series of every tuple
// that correlates it. Results are keyed by tuple.
func (s *Supplier[R]) pairAll(ctx context.Context, left map[string][]timeseries.TimeSeries[float64],
	series []timeseries.TimeSeries[R], shift time.Duration, tuplesFor func(feature.Feature) []feature.Tuple,
	desired *timescale.TimeScale,
) (map[string][]timeseries.TimeSeries[pool.Pair[float64, R]], []match[R], error) {
	out := make(map[string][]timeseries.TimeSeries[pool.Pair[float64, R]])
	var matches []match[R]
	for _, r := range series {
		r = timeseries.ShiftValidTimes(r, shift)
		tuples := tuplesFor(r.Metadata().Feature)
		if len(tuples) == 0 {
			s.logger.Debug(ctx, "no feature tuple for series, skipping",
				logger.String("feature", r.Metadata().Feature.Name))
			continue
		}
		for _, t := range tuples {
			for _, l := range left[t.Left.Name] {
				p, sl, sr, err := s.pairOne(l, r, desired)
				if err != nil {
					return nil, nil, fmt.Errorf("feature tuple %s: %w", t, err)
				}
				if sl.IsEmpty() || sr.IsEmpty() {
					continue
				}
				matches = append(matches, match[R]{tuple: t, left: sl, right: sr})
				if !p.IsEmpty() {
					out[t.String()] = append(out[t.String()], p)
				}
			}
		}
	}
	return out, matches, nil
}

// pairOne brings l and r to the desired scale, pairs them and snips the pairs
// to the pool window. It also returns the scaled inputs.
func (s *Supplier[R]) pairOne(l timeseries.TimeSeries[float64], r timeseries.TimeSeries[R],
	desired *timescale.TimeScale,
) (timeseries.TimeSeries[pool.Pair[float64, R]], timeseries.TimeSeries[float64], timeseries.TimeSeries[R], error) {
	var period time.Duration
	if desired != nil {
		period = desired.Period
	}
	l = timeseries.SnipToSpan(l, r, period, 0)
	if l.IsEmpty() || r.IsEmpty() {
		return timeseries.Empty[pool.Pair[float64, R]](r.Metadata()), l, r, nil
	}

	upLeft := needsUpscaling(l.TimeScale(), desired)
	upRight := needsUpscaling(r.TimeScale(), desired)
	var leftEnds, rightEnds []time.Time
	switch {
	case upLeft && !upRight:
		leftEnds = r.ValidTimes()
	case upRight && !upLeft:
		rightEnds = l.ValidTimes()
	}

	var err error
	if upLeft {
		if l, err = s.leftUpscaler.Upscale(l, *desired, leftEnds); err != nil {
			return timeseries.TimeSeries[pool.Pair[float64, R]]{}, l, r, err
		}
	}
	if upRight {
		if s.rightUpscaler == nil {
			err = fmt.Errorf("%w: no upscaler for right series at %s", ErrConfiguration, r.TimeScale())
			return timeseries.TimeSeries[pool.Pair[float64, R]]{}, l, r, err
		}
		if r, err = s.rightUpscaler.Upscale(r, *desired, rightEnds); err != nil {
			return timeseries.TimeSeries[pool.Pair[float64, R]]{}, l, r, err
		}
	}

	l = timeseries.FilterFinite(l)
	r = s.rightFilter(r)
	p, err := s.pairer.Pair(l, r)
	if err != nil {
		return timeseries.TimeSeries[pool.Pair[float64, R]]{}, l, r, err
	}
	return timeseries.Snip(p, s.request.Metadata.Window), l, r, nil
}

// generate builds baseline pairs from each scaled right series used as a
// template. The template carries the left feature so the generator finds its
// source; the result is restamped with the baseline feature.
func (s *Supplier[R]) generate(ctx context.Context, gen baseline.Generator[R], matches []match[R],
) (map[string][]timeseries.TimeSeries[pool.Pair[float64, R]], error) {
	out := make(map[string][]timeseries.TimeSeries[pool.Pair[float64, R]])
	if gen == nil {
		return out, nil
	}
	for _, m := range matches {
		template := m.right.WithMetadata(m.right.Metadata().WithFeature(m.tuple.Left))
		generated, err := gen.Generate(template)
		if err != nil {
			if !errors.Is(err, baseline.ErrBaselineGeneration) {
				return nil, err
			}
			s.logger.Warn(ctx, "dropping baseline series",
				logger.String("tuple", m.tuple.String()), logger.Error(err))
			metrics.RecordBaselineSeriesDropped()
			continue
		}
		name := m.tuple.Baseline
		if name.IsZero() {
			name = m.tuple.Left
		}
		generated = s.rightFilter(generated.WithMetadata(generated.Metadata().WithFeature(name)))
		p, err := s.pairer.Pair(m.left, generated)
		if err != nil {
			return nil, err
		}
		if p = timeseries.Snip(p, s.request.Metadata.Window); !p.IsEmpty() {
			out[m.tuple.String()] = append(out[m.tuple.String()], p)
		}
	}
	return out, nil
}

// climatologyOf collects the admissible finite left values per feature.
func (s *Supplier[R]) climatologyOf(left []timeseries.TimeSeries[float64], desired *timescale.TimeScale,
) (*pool.Climatology, error) {
	values := make(map[string][]float64)
	for _, l := range left {
		if needsUpscaling(l.TimeScale(), desired) {
			up, err := s.leftUpscaler.Upscale(l, *desired, nil)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrClimatology, err)
			}
			l = up
		}
		name := l.Metadata().Feature.Name
		for _, e := range timeseries.FilterFinite(l).Events() {
			if s.climatologyOK(e.Value) {
				values[name] = append(values[name], e.Value)
			}
		}
	}
	for _, f := range s.request.Metadata.Group.Lefts() {
		if len(values[f.Name]) == 0 {
			return nil, fmt.Errorf("%w: no values for feature %s", ErrClimatology, f.Name)
		}
	}
	c, err := pool.NewClimatology(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClimatology, err)
	}
	return c, nil
}

// desiredScale is the declared scale or, failing that, the scale shared by
// every right series.
func (s *Supplier[R]) desiredScale(right []timeseries.TimeSeries[R]) *timescale.TimeScale {
	if ts := s.request.Metadata.TimeScale; ts != nil {
		return ts
	}
	var shared *timescale.TimeScale
	for _, r := range right {
		ts := r.TimeScale()
		if ts == nil {
			return nil
		}
		if shared == nil {
			shared = ts
			continue
		}
		if !shared.Equal(*ts) {
			return nil
		}
	}
	return shared
}

func needsUpscaling(existing, desired *timescale.TimeScale) bool {
	return existing != nil && desired != nil && timescale.RequiresRescaling(existing, desired)
}

// flatten returns the series of every tuple in series order.
func flatten[P any](byTuple map[string][]timeseries.TimeSeries[P]) []timeseries.TimeSeries[P] {
	keys := make([]string, 0, len(byTuple))
	for k := range byTuple {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []timeseries.TimeSeries[P]
	for _, k := range keys {
		out = append(out, timeseries.RemoveEmpty(byTuple[k])...)
	}
	timeseries.SortByTime(out)
	return out
}

func cause(err error) string {
	switch {
	case errors.Is(err, retrieval.ErrRetrieval):
		return "retrieval"
	case errors.Is(err, upscale.ErrUpscaling):
		return "upscaling"
	case errors.Is(err, pairing.ErrPairing):
		return "pairing"
	case errors.Is(err, crosspair.ErrCrossPairing):
		return "cross_pairing"
	case errors.Is(err, ErrClimatology):
		return "climatology"
	case errors.Is(err, covariate.ErrCovariate):
		return "covariate"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	}
	return "other"
}
