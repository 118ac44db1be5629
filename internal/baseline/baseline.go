// Package baseline synthesizes baseline series from a source of observations.
package baseline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/retrieval"
	"github.com/okian/hydropool/internal/upscale"
	"github.com/okian/hydropool/pkg/logger"
)

// Generator turns a template series into a baseline series with the same
// valid times.
type Generator[T any] interface {
	Generate(template timeseries.TimeSeries[T]) (timeseries.TimeSeries[T], error)
}

// Func adapts a function to a Generator.
type Func[T any] func(template timeseries.TimeSeries[T]) (timeseries.TimeSeries[T], error)

// Generate implements Generator.
func (f Func[T]) Generate(template timeseries.TimeSeries[T]) (timeseries.TimeSeries[T], error) {
	return f(template)
}

// Persistence predicts that the value k steps before a reference time, or
// before each valid time for series without reference times, persists.
type Persistence struct {
	order      int
	source     map[string]timeseries.TimeSeries[float64]
	sourceMeta timeseries.Metadata
	upscaler   upscale.Upscaler[float64]
	admissible func(float64) bool
	logger     logger.Logger
}

var _ Generator[float64] = (*Persistence)(nil)

// NewPersistence reads the source once and consolidates it per feature. The
// default order is one.
func NewPersistence(ctx context.Context, source retrieval.Retriever[float64], opts ...Option) (*Persistence, error) {
	p := &Persistence{
		order:      1,
		upscaler:   upscale.NewSingleValued(),
		admissible: func(float64) bool { return true },
		logger:     logger.Named("baseline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.order < 0 {
		return nil, fmt.Errorf("%w: persistence order must not be negative: %d", ErrBaselineGeneration, p.order)
	}

	series, err := source.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading the persistence source: %w", ErrBaselineGeneration, err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: the persistence source is empty", ErrBaselineGeneration)
	}
	for _, s := range series {
		if _, ok := s.Metadata().ReferenceTime(timeseries.T0); ok {
			return nil, fmt.Errorf("%w: the persistence source contains forecasts (%s); declare observations instead",
				ErrBaselineGeneration, s.Metadata())
		}
	}

	grouped := make(map[string][]timeseries.TimeSeries[float64])
	for _, s := range series {
		if s.Len() < p.order {
			continue
		}
		name := s.Metadata().Feature.Name
		grouped[name] = append(grouped[name], s)
	}
	p.source = make(map[string]timeseries.TimeSeries[float64], len(grouped))
	for name, list := range grouped {
		merged, dups := timeseries.Consolidate(list)
		if dups > 0 {
			p.logger.Warn(ctx, "duplicate events in persistence source, keeping the first at each time",
				logger.String("feature", name),
				logger.Int("duplicates", dups))
		}
		p.source[name] = merged
	}
	if len(p.source) == 0 {
		return nil, fmt.Errorf("%w: no source series has the %d events needed for persistence of order %d",
			ErrBaselineGeneration, p.order, p.order)
	}
	p.sourceMeta = p.source[sortedKeys(p.source)[0]].Metadata()
	p.logger.Debug(ctx, "created persistence generator", logger.Int("order", p.order),
		logger.Int("features", len(p.source)))
	return p, nil
}

// Generate implements Generator. A template feature missing from the source is
// an error; a missing or inadmissible persisted value yields an empty series.
func (p *Persistence) Generate(template timeseries.TimeSeries[float64]) (timeseries.TimeSeries[float64], error) {
	if template.IsEmpty() {
		return template, nil
	}
	name := template.Metadata().Feature.Name
	source, ok := p.source[name]
	if !ok {
		return timeseries.TimeSeries[float64]{}, fmt.Errorf("%w: no persistence source for feature %q; available: %v",
			ErrBaselineGeneration, name, sortedKeys(p.source))
	}
	if ref, ok := template.Metadata().FirstReferenceTime(); ok {
		return p.forReferenceTime(template, source, ref)
	}
	return p.forEachValidTime(template, source)
}

func (p *Persistence) needsUpscaling(template timeseries.TimeSeries[float64]) bool {
	desired, existing := template.TimeScale(), p.sourceMeta.TimeScale
	return desired != nil && existing != nil && !desired.Equal(*existing)
}

func (p *Persistence) forReferenceTime(template, source timeseries.TimeSeries[float64], ref time.Time,
) (timeseries.TimeSeries[float64], error) {
	meta := template.Metadata().WithUnit(p.sourceMeta.Unit)
	event, ok := nthEarlier(source.Events(), ref, p.order)
	if !ok {
		p.logger.Debug(context.Background(), "no persistence value before reference time",
			logger.Time("reference_time", ref))
		return timeseries.Empty[float64](meta), nil
	}
	value := event.Value
	if p.needsUpscaling(template) {
		up, err := p.upscaler.Upscale(source, *template.TimeScale(), []time.Time{event.Time})
		if err != nil {
			return timeseries.TimeSeries[float64]{}, fmt.Errorf("%w: %w", ErrBaselineGeneration, err)
		}
		first, ok := up.First()
		if !ok {
			return timeseries.Empty[float64](meta), nil
		}
		value = first.Value
	}
	if !p.admissible(value) {
		p.logger.Debug(context.Background(), "inadmissible persistence value",
			logger.Float64("value", value), logger.String("template", template.Metadata().String()))
		return timeseries.Empty[float64](meta), nil
	}
	return timeseries.Transform(template, func(float64) float64 { return value }).WithMetadata(meta), nil
}

func (p *Persistence) forEachValidTime(template, source timeseries.TimeSeries[float64],
) (timeseries.TimeSeries[float64], error) {
	meta := template.Metadata().WithUnit(p.sourceMeta.Unit)
	search := source.Events()
	if p.needsUpscaling(template) {
		up, err := p.upscaler.Upscale(source, *template.TimeScale(), template.ValidTimes())
		if err != nil {
			return timeseries.TimeSeries[float64]{}, fmt.Errorf("%w: %w", ErrBaselineGeneration, err)
		}
		search = up.Events()
	}
	return timeseries.MapEvents(template, func(e timeseries.Event[float64]) (float64, bool) {
		prior, ok := nthEarlier(search, e.Time, p.order)
		if !ok || !p.admissible(prior.Value) {
			return 0, false
		}
		return prior.Value, true
	}).WithMetadata(meta), nil
}

// nthEarlier finds the k-th nearest event strictly earlier than t. An event
// exactly at t counts as the zeroth.
func nthEarlier(events []timeseries.Event[float64], t time.Time, k int) (timeseries.Event[float64], bool) {
	if len(events) == 0 || !events[0].Time.Before(t) {
		return timeseries.Event[float64]{}, false
	}
	i := sort.Search(len(events), func(i int) bool { return !events[i].Time.Before(t) })
	if i < len(events) && events[i].Time.Equal(t) {
		if j := i - k; j >= 0 {
			return events[j], true
		}
		return timeseries.Event[float64]{}, false
	}
	// events[i-1] is the closest earlier event and already one step back.
	if j := i - max(k, 1); j >= 0 {
		return events[j], true
	}
	return timeseries.Event[float64]{}, false
}

func sortedKeys(m map[string]timeseries.TimeSeries[float64]) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
