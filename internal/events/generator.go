// Package events detects hydrologic events in time series and turns them into
// time windows for event-based pooling.
package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/hydropool/internal/covariate"
	"github.com/okian/hydropool/internal/domain/declaration"
	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timewindow"
	"github.com/okian/hydropool/internal/retrieval"
	"github.com/okian/hydropool/internal/upscale"
	"github.com/okian/hydropool/pkg/logger"
	"github.com/okian/hydropool/pkg/metrics"
)

// Detection methods.
const (
	MethodReginaOgden = "REGINA_OGDEN"
	MethodDefault     = "DEFAULT"
)

// NewDetector builds the detector named by a declaration. The empty and
// default methods select ReginaOgden.
func NewDetector(d declaration.EventDetection) (Detector, error) {
	switch strings.ToUpper(strings.TrimSpace(d.Method)) {
	case "", MethodDefault, MethodReginaOgden:
		return NewReginaOgden(ParametersOf(d.Parameters))
	}
	return nil, fmt.Errorf("%w: unknown detection method %q", ErrInvalidParameters, d.Method)
}

// Generator detects events per feature group across the declared datasets
// and combines them into pool windows.
type Generator struct {
	detector    Detector
	eval        declaration.Evaluation
	combination string
	aggregation timewindow.Aggregation
	covariates  []covariate.Covariate
	scales      map[string]*timescale.TimeScale
	opts        options
}

// NewGenerator returns a generator for an evaluation that declares event
// detection.
func NewGenerator(eval declaration.Evaluation, detector Detector, opts ...Option) (*Generator, error) {
	if eval.EventDetection == nil {
		return nil, fmt.Errorf("%w: event detection is not declared", ErrInvalidParameters)
	}
	if detector == nil {
		return nil, fmt.Errorf("%w: no detector", ErrInvalidParameters)
	}
	params := eval.EventDetection.Parameters
	combination := strings.ToUpper(strings.TrimSpace(params.Combination))
	switch combination {
	case "":
		combination = declaration.CombinationUnion
	case declaration.CombinationUnion, declaration.CombinationIntersection:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCombination, params.Combination)
	}
	aggregation, err := timewindow.ParseAggregation(params.Aggregation)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}

	var covs []covariate.Covariate
	for _, d := range eval.CovariatesFor(declaration.PurposeDetect) {
		c, err := covariate.FromDeclaration(d)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
		}
		covs = append(covs, c)
	}

	scales := make(map[string]*timescale.TimeScale, 3)
	for name, d := range map[string]declaration.Dataset{
		declaration.Observed:  eval.Left,
		declaration.Predicted: eval.Right,
		declaration.Baseline:  eval.BaselineDataset(),
	} {
		if scales[name], err = d.Scale(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
		}
	}

	o := options{
		upscaler: upscale.NewSingleValued(),
		logger:   logger.Named("events"),
	}
	if o.desired, err = eval.DesiredTimeScale(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Generator{
		detector:    detector,
		eval:        eval,
		combination: combination,
		aggregation: aggregation,
		covariates:  covs,
		scales:      scales,
		opts:        o,
	}, nil
}

// Generate returns the de-duplicated event windows of every group, in
// window order.
func (g *Generator) Generate(ctx context.Context, retrievers retrieval.Factory[float64, float64],
	groups []feature.Group,
) ([]timewindow.TimeWindow, error) {
	var all []timewindow.TimeWindow
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := g.forGroup(ctx, retrievers, group)
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}
	out := timewindow.Sorted(all)
	g.opts.logger.Info(ctx, "detected events",
		logger.Int("groups", len(groups)),
		logger.Int("events", len(out)))
	return out, nil
}

// source is one dataset to run detection on.
type source struct {
	dataset   string
	name      string
	retriever retrieval.Retriever[float64]
	desired   *timescale.TimeScale
}

func (g *Generator) forGroup(ctx context.Context, retrievers retrieval.Factory[float64, float64],
	group feature.Group,
) ([]timewindow.TimeWindow, error) {
	window := g.retrievalWindow()

	var events []timewindow.TimeWindow
	attempted := 0
	for _, src := range g.sources(retrievers, group, &window) {
		found, err := g.detect(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("%w: group %s: %w", ErrEventDetection, group, err)
		}
		metrics.RecordEventsDetected(src.dataset, len(found))
		g.opts.logger.Debug(ctx, "detected events in dataset",
			logger.String("group", group.Name),
			logger.String("dataset", src.name),
			logger.Int("events", len(found)))

		if events, err = combine(attempted > 0, events, found, g.combination); err != nil {
			return nil, err
		}
		attempted++
	}

	if attempted > 1 && g.aggregation != 0 {
		aggregated, err := aggregate(events, g.aggregation)
		if err != nil {
			return nil, fmt.Errorf("%w: group %s: %w", ErrEventDetection, group, err)
		}
		events = aggregated
	}
	return g.constrain(events), nil
}

// retrievalWindow admits every time except outside the declared valid dates,
// widened for the desired time scale.
func (g *Generator) retrievalWindow() timewindow.TimeWindow {
	w := timewindow.Unbounded()
	if iv := g.eval.ValidDates; iv != nil {
		w.EarliestValidTime = iv.Minimum.UTC()
		w.LatestValidTime = iv.Maximum.UTC()
	}
	return timewindow.AdjustForTimeScale(w, g.opts.desired)
}

// sources lists the datasets in declaration order.
func (g *Generator) sources(retrievers retrieval.Factory[float64, float64], group feature.Group,
	window *timewindow.TimeWindow,
) []source {
	var out []source
	for _, d := range g.eval.EventDetection.Datasets {
		switch strings.ToUpper(d) {
		case declaration.Observed:
			out = append(out, source{
				dataset:   declaration.Observed,
				name:      declaration.Observed,
				retriever: retrieval.WithDefaultTimeScale[float64](retrieval.NewInstrumented(retrieval.Left,
					retrievers.Left(group.Lefts(), window)), g.scales[declaration.Observed]),
				desired:   g.opts.desired,
			})
		case declaration.Predicted:
			out = append(out, source{
				dataset:   declaration.Predicted,
				name:      declaration.Predicted,
				retriever: retrieval.WithDefaultTimeScale[float64](retrieval.NewInstrumented(retrieval.Right,
					retrievers.Right(group.Rights(), window)), g.scales[declaration.Predicted]),
				desired:   g.opts.desired,
			})
		case declaration.Baseline:
			out = append(out, source{
				dataset:   declaration.Baseline,
				name:      declaration.Baseline,
				retriever: retrieval.WithDefaultTimeScale[float64](retrieval.NewInstrumented(retrieval.Baseline,
					retrievers.Baseline(group.Baselines(), window)), g.scales[declaration.Baseline]),
				desired:   g.opts.desired,
			})
		case declaration.Covariates:
			for _, c := range g.covariates {
				out = append(out, source{
					dataset: declaration.Covariates,
					name:    declaration.Covariates + ":" + c.Name,
					retriever: retrieval.WithDefaultTimeScale[float64](retrieval.NewInstrumented(retrieval.Covariate,
						retrievers.Covariate(c.Name, group.Lefts(), window)), c.TimeScale),
					desired: covariateScale(g.opts.desired, c),
				})
			}
		}
	}
	return out
}

// covariateScale is the desired scale with the covariate rescale function,
// when declared.
func covariateScale(desired *timescale.TimeScale, c covariate.Covariate) *timescale.TimeScale {
	if desired == nil || c.RescaleFunction == timescale.Unknown {
		return desired
	}
	out := *desired
	out.Function = c.RescaleFunction
	return &out
}

// detect runs the detector on every series of one dataset.
func (g *Generator) detect(ctx context.Context, src source) ([]timewindow.TimeWindow, error) {
	series, err := src.retriever.Get(ctx)
	if err != nil {
		return nil, err
	}
	var out []timewindow.TimeWindow
	for _, s := range series {
		if existing := s.TimeScale(); existing != nil && src.desired != nil &&
			timescale.RequiresRescaling(existing, src.desired) {
			if s, err = g.opts.upscaler.Upscale(s, *src.desired, nil); err != nil {
				return nil, fmt.Errorf("%s: %w", src.name, err)
			}
		}
		found, err := g.detector.Detect(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.name, err)
		}
		out = append(out, found...)
	}
	return out, nil
}

// combine merges the events of one dataset into the running result. The
// first dataset seeds the result.
func combine(seeded bool, events, found []timewindow.TimeWindow, combination string) ([]timewindow.TimeWindow, error) {
	if !seeded {
		return timewindow.Sorted(found), nil
	}
	switch combination {
	case declaration.CombinationUnion:
		return timewindow.Sorted(append(events, found...)), nil
	case declaration.CombinationIntersection:
		return timewindow.Intersection(events, found), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCombination, combination)
}

// aggregate replaces each event with the aggregate of itself and every event
// intersecting it. An event without partners is kept as it is.
func aggregate(events []timewindow.TimeWindow, method timewindow.Aggregation) ([]timewindow.TimeWindow, error) {
	out := make([]timewindow.TimeWindow, 0, len(events))
	for i, e := range events {
		set := []timewindow.TimeWindow{e}
		for j, o := range events {
			if i != j && timewindow.Intersects(e, o) {
				set = append(set, o)
			}
		}
		if len(set) == 1 {
			out = append(out, e)
			continue
		}
		a, err := timewindow.Aggregate(set, method)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return timewindow.Sorted(out), nil
}

// constrain applies the declared reference and lead bounds to each event. When
// reference or lead pools are declared, each event is crossed with every
// declared pool.
func (g *Generator) constrain(events []timewindow.TimeWindow) []timewindow.TimeWindow {
	refs := g.eval.ReferenceDateBounds()
	leads := g.eval.LeadTimeBounds()

	out := make([]timewindow.TimeWindow, 0, len(events)*len(refs)*len(leads))
	for _, e := range events {
		for _, r := range refs {
			for _, l := range leads {
				w := e
				w.EarliestReferenceTime, w.LatestReferenceTime = r.Earliest, r.Latest
				w.EarliestLeadDuration, w.LatestLeadDuration = l.Earliest, l.Latest
				out = append(out, w)
			}
		}
	}
	return out
}
