// Package covariate removes pooled events whose auxiliary covariate value
// fails a condition.
package covariate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/hydropool/internal/domain/declaration"
	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/pool"
	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/domain/timewindow"
	"github.com/okian/hydropool/internal/retrieval"
	"github.com/okian/hydropool/internal/upscale"
	"github.com/okian/hydropool/pkg/logger"
	"github.com/okian/hydropool/pkg/metrics"
)

// Covariate describes an auxiliary dataset.
type Covariate struct {
	Name            string
	Variable        string
	Minimum         *float64
	Maximum         *float64
	RescaleFunction timescale.Function
	TimeShift       time.Duration
	TimeScale       *timescale.TimeScale
	Detect          bool
	Filter          bool
}

// FromDeclaration converts a declared covariate.
func FromDeclaration(d declaration.Covariate) (Covariate, error) {
	fn, err := timescale.ParseFunction(d.RescaleFunction)
	if err != nil {
		return Covariate{}, fmt.Errorf("%w: covariate %s: %w", ErrCovariate, d.Name, err)
	}
	ts, err := d.TimeScale.Scale()
	if err != nil {
		return Covariate{}, fmt.Errorf("%w: covariate %s: %w", ErrCovariate, d.Name, err)
	}
	return Covariate{
		Name:            d.Name,
		Variable:        d.Variable,
		Minimum:         d.Minimum,
		Maximum:         d.Maximum,
		RescaleFunction: fn,
		TimeShift:       d.TimeShift,
		TimeScale:       ts,
		Detect:          d.HasPurpose(declaration.PurposeDetect),
		Filter:          d.HasPurpose(declaration.PurposeFilter),
	}, nil
}

// Window returns the retrieval window that, once shifted by the covariate's
// time shift, covers w.
func (c Covariate) Window(w timewindow.TimeWindow) timewindow.TimeWindow {
	return timewindow.ShiftValidTimes(w, -c.TimeShift)
}

// Admits reports whether v lies within the declared bounds, inclusive.
func (c Covariate) Admits(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if c.Minimum != nil && v < *c.Minimum {
		return false
	}
	if c.Maximum != nil && v > *c.Maximum {
		return false
	}
	return true
}

// Filter applies one covariate to pools whose element type is T.
type Filter[T any] struct {
	covariate Covariate
	source    retrieval.Retriever[float64]
	opts      options
}

// NewFilter returns a filter reading covariate data from source.
func NewFilter[T any](c Covariate, source retrieval.Retriever[float64], opts ...Option) (*Filter[T], error) {
	if source == nil {
		return nil, fmt.Errorf("%w: covariate %s has no data source", ErrCovariate, c.Name)
	}
	o := options{
		predicate: c.Admits,
		upscaler:  upscale.NewSingleValued(),
		logger:    logger.Named("covariate"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Filter[T]{covariate: c, source: source, opts: o}, nil
}

// Apply returns a copy of p keeping only events whose valid time carries a
// covariate value that satisfies the predicate. Main and baseline data are
// filtered alike and emptied series are dropped.
func (f *Filter[T]) Apply(ctx context.Context, p pool.Pool[T]) (pool.Pool[T], error) {
	raw, err := f.source.Get(ctx)
	if err != nil {
		return pool.Pool[T]{}, fmt.Errorf("%w: covariate %s: %w", ErrCovariate, f.covariate.Name,
			retrieval.Wrap(retrieval.Covariate, err))
	}

	desired := p.Metadata().TimeScale
	byFeature := make(map[string]map[time.Time]float64)
	for _, s := range raw {
		s = timeseries.WithDefaultTimeScale(s, f.covariate.TimeScale)
		s = timeseries.ShiftValidTimes(s, f.covariate.TimeShift)
		if s, err = f.rescale(s, desired, validTimes(p)); err != nil {
			return pool.Pool[T]{}, err
		}
		name := s.Metadata().Feature.Name
		values, ok := byFeature[name]
		if !ok {
			values = make(map[time.Time]float64, s.Len())
			byFeature[name] = values
		}
		for _, e := range s.Events() {
			if _, dup := values[e.Time.UTC()]; !dup {
				values[e.Time.UTC()] = e.Value
			}
		}
	}

	removed := 0
	keep := func(group feature.Group, series []timeseries.TimeSeries[T]) []timeseries.TimeSeries[T] {
		out := make([]timeseries.TimeSeries[T], 0, len(series))
		for _, s := range series {
			values := lookup(byFeature, group, s.Metadata().Feature)
			filtered := timeseries.Filter(s, func(e timeseries.Event[T]) bool {
				v, ok := values[e.Time.UTC()]
				return ok && f.opts.predicate(v)
			})
			removed += s.Len() - filtered.Len()
			if !filtered.IsEmpty() {
				out = append(out, filtered)
			}
		}
		return out
	}

	meta := p.Metadata()
	b := pool.NewBuilder[T]().
		SetMetadata(meta).
		AddData(keep(meta.Group, p.Data())...).
		SetClimatology(p.Climatology())
	if bm, ok := p.BaselineMetadata(); ok {
		b.SetMetadataForBaseline(&bm).AddDataForBaseline(keep(bm.Group, p.BaselineData())...)
	}
	out, err := b.Build()
	if err != nil {
		return pool.Pool[T]{}, fmt.Errorf("%w: covariate %s: %w", ErrCovariate, f.covariate.Name, err)
	}
	if removed > 0 {
		metrics.RecordCovariateEventsRemoved(removed)
	}
	f.opts.logger.Debug(ctx, "applied covariate filter",
		logger.String("covariate", f.covariate.Name),
		logger.Uint64("pool_id", meta.PoolID),
		logger.Int("removed", removed),
		logger.Int("remaining", out.PairCount()))
	return out, nil
}

// rescale brings s to the pool period using the covariate's own function,
// falling back to the pool function.
func (f *Filter[T]) rescale(s timeseries.TimeSeries[float64], desired *timescale.TimeScale, ends []time.Time,
) (timeseries.TimeSeries[float64], error) {
	if desired == nil || s.TimeScale() == nil || s.IsEmpty() {
		return s, nil
	}
	target := *desired
	if f.covariate.RescaleFunction != timescale.Unknown {
		target.Function = f.covariate.RescaleFunction
	}
	if !timescale.RequiresRescaling(s.TimeScale(), &target) {
		return s, nil
	}
	up, err := f.opts.upscaler.Upscale(s, target, ends)
	if err != nil {
		return timeseries.TimeSeries[float64]{}, fmt.Errorf("%w: covariate %s: %w", ErrCovariate, f.covariate.Name, err)
	}
	return up, nil
}

// lookup finds the covariate values for a pooled series: first by the left
// features correlated with it in the group, then by its own feature, then the
// only covariate feature when there is just one.
func lookup(byFeature map[string]map[time.Time]float64, group feature.Group, f feature.Feature) map[time.Time]float64 {
	for _, t := range group.TuplesForRight(f) {
		if v, ok := byFeature[t.Left.Name]; ok {
			return v
		}
	}
	for _, t := range group.TuplesForBaseline(f) {
		if v, ok := byFeature[t.Left.Name]; ok {
			return v
		}
	}
	if v, ok := byFeature[f.Name]; ok {
		return v
	}
	if len(byFeature) == 1 {
		for _, v := range byFeature {
			return v
		}
	}
	return nil
}

func validTimes[T any](p pool.Pool[T]) []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	add := func(series []timeseries.TimeSeries[T]) {
		for _, s := range series {
			for _, t := range s.ValidTimes() {
				if _, ok := seen[t.UTC()]; !ok {
					seen[t.UTC()] = struct{}{}
					out = append(out, t)
				}
			}
		}
	}
	add(p.Data())
	add(p.BaselineData())
	return out
}
