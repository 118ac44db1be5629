package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/hydropool/internal/domain/declaration"
	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/domain/timewindow"
	"github.com/okian/hydropool/internal/retrieval"
	"github.com/okian/hydropool/pkg/logger"
)

// Variables names the stored variable read for each dataset.
type Variables struct {
	Left, Right, Baseline string
	Covariates            map[string]string
}

// VariablesOf reads the variables of an evaluation.
func VariablesOf(eval declaration.Evaluation) Variables {
	v := Variables{
		Left:       eval.LeftVariable,
		Right:      eval.RightVariable,
		Baseline:   eval.BaselineVariable,
		Covariates: make(map[string]string, len(eval.Covariates)),
	}
	if v.Baseline == "" {
		v.Baseline = v.Right
	}
	for _, c := range eval.Covariates {
		v.Covariates[c.Name] = c.Variable
	}
	return v
}

// Factory serves single-valued series from a store.
type Factory struct {
	store    Store
	vars     Variables
	opts     options
	breakers map[retrieval.Orientation]*retrieval.Breaker[float64]
}

var _ retrieval.Factory[float64, float64] = (*Factory)(nil)

// NewFactory returns a factory reading from store.
func NewFactory(store Store, vars Variables, opts ...Option) *Factory {
	o := options{logger: logger.Named("source")}
	for _, opt := range opts {
		opt(&o)
	}
	f := &Factory{store: store, vars: vars, opts: o}
	if o.breaker != nil {
		f.breakers = make(map[retrieval.Orientation]*retrieval.Breaker[float64])
		for _, or := range []retrieval.Orientation{retrieval.Left, retrieval.Right, retrieval.Baseline, retrieval.Covariate} {
			f.breakers[or] = retrieval.NewBreaker[float64]("source-"+string(or), nil, *o.breaker)
		}
	}
	return f
}

// Left implements retrieval.Factory.
func (f *Factory) Left(features []feature.Feature, window *timewindow.TimeWindow) retrieval.Retriever[float64] {
	return f.single(query(retrieval.Left, "", f.vars.Left, features, window))
}

// Right implements retrieval.Factory.
func (f *Factory) Right(features []feature.Feature, window *timewindow.TimeWindow) retrieval.Retriever[float64] {
	return f.single(query(retrieval.Right, "", f.vars.Right, features, window))
}

// Baseline implements retrieval.Factory.
func (f *Factory) Baseline(features []feature.Feature, window *timewindow.TimeWindow) retrieval.Retriever[float64] {
	return f.single(query(retrieval.Baseline, "", f.vars.Baseline, features, window))
}

// Covariate implements retrieval.Factory.
func (f *Factory) Covariate(name string, features []feature.Feature, window *timewindow.TimeWindow,
) retrieval.Retriever[float64] {
	return f.single(query(retrieval.Covariate, name, f.vars.Covariates[name], features, window))
}

func (f *Factory) single(q Query) retrieval.Retriever[float64] {
	r := retrieval.Retriever[float64](retrieval.Func[float64](func(ctx context.Context) ([]timeseries.TimeSeries[float64], error) {
		rows, err := f.store.Fetch(ctx, q)
		if err != nil {
			return nil, err
		}
		series, err := assemble(rows)
		if err != nil {
			return nil, err
		}
		f.opts.logger.Debug(ctx, "fetched series",
			logger.String("orientation", string(q.Orientation)),
			logger.String("variable", q.Variable),
			logger.Int("rows", len(rows)),
			logger.Int("series", len(series)))
		return retrieval.Select(series, nil, q.Window), nil
	}))
	if b, ok := f.breakers[q.Orientation]; ok {
		r = b.Guard(r)
	}
	return r
}

// EnsembleFactory serves ensemble predictions and single-valued observations
// and covariates from a store.
type EnsembleFactory struct {
	*Factory
	ensembleBreakers map[retrieval.Orientation]*retrieval.Breaker[timeseries.Ensemble]
}

var _ retrieval.Factory[float64, timeseries.Ensemble] = (*EnsembleFactory)(nil)

// NewEnsembleFactory returns an ensemble factory reading from store.
func NewEnsembleFactory(store Store, vars Variables, opts ...Option) *EnsembleFactory {
	f := &EnsembleFactory{Factory: NewFactory(store, vars, opts...)}
	if f.opts.breaker != nil {
		f.ensembleBreakers = map[retrieval.Orientation]*retrieval.Breaker[timeseries.Ensemble]{
			retrieval.Right:    retrieval.NewBreaker[timeseries.Ensemble]("source-right-ensemble", nil, *f.opts.breaker),
			retrieval.Baseline: retrieval.NewBreaker[timeseries.Ensemble]("source-baseline-ensemble", nil, *f.opts.breaker),
		}
	}
	return f
}

// Right implements retrieval.Factory.
func (f *EnsembleFactory) Right(features []feature.Feature, window *timewindow.TimeWindow,
) retrieval.Retriever[timeseries.Ensemble] {
	return f.ensemble(query(retrieval.Right, "", f.vars.Right, features, window))
}

// Baseline implements retrieval.Factory.
func (f *EnsembleFactory) Baseline(features []feature.Feature, window *timewindow.TimeWindow,
) retrieval.Retriever[timeseries.Ensemble] {
	return f.ensemble(query(retrieval.Baseline, "", f.vars.Baseline, features, window))
}

func (f *EnsembleFactory) ensemble(q Query) retrieval.Retriever[timeseries.Ensemble] {
	r := retrieval.Retriever[timeseries.Ensemble](retrieval.Func[timeseries.Ensemble](
		func(ctx context.Context) ([]timeseries.TimeSeries[timeseries.Ensemble], error) {
			rows, err := f.store.Fetch(ctx, q)
			if err != nil {
				return nil, err
			}
			series, err := assembleEnsembles(rows)
			if err != nil {
				return nil, err
			}
			return retrieval.Select(series, nil, q.Window), nil
		}))
	if b, ok := f.ensembleBreakers[q.Orientation]; ok {
		r = b.Guard(r)
	}
	return r
}

func query(or retrieval.Orientation, dataset, variable string, features []feature.Feature,
	window *timewindow.TimeWindow,
) Query {
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.Name
	}
	return Query{Orientation: or, Dataset: dataset, Variable: variable, Features: names, Window: window}
}

// seriesKey identifies the series a row belongs to.
type seriesKey struct {
	feature       string
	variable      string
	unit          string
	reference     time.Time
	hasReference  bool
	scalePeriod   time.Duration
	scaleFunction string
}

func keyOf(r Row) seriesKey {
	k := seriesKey{
		feature:       r.Feature,
		variable:      r.Variable,
		unit:          r.Unit,
		scalePeriod:   r.ScalePeriod,
		scaleFunction: r.ScaleFunction,
	}
	if r.ReferenceTime != nil {
		k.reference, k.hasReference = r.ReferenceTime.UTC(), true
	}
	return k
}

func (k seriesKey) less(o seriesKey) bool {
	if k.feature != o.feature {
		return k.feature < o.feature
	}
	if k.hasReference != o.hasReference {
		return !k.hasReference
	}
	if !k.reference.Equal(o.reference) {
		return k.reference.Before(o.reference)
	}
	if k.variable != o.variable {
		return k.variable < o.variable
	}
	if k.scalePeriod != o.scalePeriod {
		return k.scalePeriod < o.scalePeriod
	}
	if k.scaleFunction != o.scaleFunction {
		return k.scaleFunction < o.scaleFunction
	}
	return k.unit < o.unit
}

func (k seriesKey) metadata() (timeseries.Metadata, error) {
	meta := timeseries.Metadata{
		Feature:  feature.Of(k.feature),
		Variable: k.variable,
		Unit:     k.unit,
	}
	if k.hasReference {
		meta.ReferenceTimes = map[timeseries.ReferenceTimeType]time.Time{
			timeseries.T0: k.reference,
		}
	}
	if k.scalePeriod > 0 || k.scaleFunction != "" {
		fn, err := timescale.ParseFunction(k.scaleFunction)
		if err != nil {
			return timeseries.Metadata{}, err
		}
		ts, err := timescale.New(k.scalePeriod, fn)
		if err != nil {
			return timeseries.Metadata{}, err
		}
		meta.TimeScale = ts.Ptr()
	}
	return meta, nil
}

// group buckets rows by series in a stable order.
func group(rows []Row) ([]seriesKey, map[seriesKey][]Row) {
	byKey := make(map[seriesKey][]Row)
	var keys []seriesKey
	for _, r := range rows {
		k := keyOf(r)
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys, byKey
}

func assemble(rows []Row) ([]timeseries.TimeSeries[float64], error) {
	keys, byKey := group(rows)
	out := make([]timeseries.TimeSeries[float64], 0, len(keys))
	for _, k := range keys {
		meta, err := k.metadata()
		if err != nil {
			return nil, fmt.Errorf("%w: feature %s: %w", ErrMalformedRow, k.feature, err)
		}
		b := timeseries.NewBuilder[float64]().SetMetadata(meta)
		for _, r := range byKey[k] {
			b.AddEvent(timeseries.EventOf(r.ValidTime, r.Value))
		}
		s, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("%w: feature %s: %w", ErrMalformedRow, k.feature, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// assembleEnsembles builds one ensemble per valid time with members ordered
// by label.
func assembleEnsembles(rows []Row) ([]timeseries.TimeSeries[timeseries.Ensemble], error) {
	keys, byKey := group(rows)
	out := make([]timeseries.TimeSeries[timeseries.Ensemble], 0, len(keys))
	for _, k := range keys {
		meta, err := k.metadata()
		if err != nil {
			return nil, fmt.Errorf("%w: feature %s: %w", ErrMalformedRow, k.feature, err)
		}
		members := make(map[time.Time][]Row)
		var times []time.Time
		for _, r := range byKey[k] {
			at := r.ValidTime.UTC()
			if _, ok := members[at]; !ok {
				times = append(times, at)
			}
			members[at] = append(members[at], r)
		}
		b := timeseries.NewBuilder[timeseries.Ensemble]().SetMetadata(meta)
		for _, t := range times {
			m := members[t]
			sort.SliceStable(m, func(i, j int) bool { return m[i].Member < m[j].Member })
			values := make([]float64, len(m))
			labels := make([]string, len(m))
			for i, r := range m {
				values[i], labels[i] = r.Value, r.Member
			}
			b.AddEvent(timeseries.EventOf(t, timeseries.EnsembleOf(values, labels)))
		}
		s, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("%w: feature %s: %w", ErrMalformedRow, k.feature, err)
		}
		out = append(out, s)
	}
	return out, nil
}
