package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/hydropool/internal/adapters/source"
	"github.com/okian/hydropool/internal/app"
	"github.com/okian/hydropool/internal/config"
	"github.com/okian/hydropool/internal/domain/declaration"
	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/domain/timewindow"
	"github.com/okian/hydropool/internal/factory"
	"github.com/okian/hydropool/internal/retrieval"
)

func at(day, hour int) time.Time {
	return time.Date(2551, 3, day, hour, 0, 0, 0, time.UTC)
}

var (
	observed = []float64{313, 317, 331, 347, 349, 353, 359, 367, 373, 379, 383, 389, 397, 401, 409, 419, 421, 431,
		433, 439, 443, 449, 457, 461, 463, 467, 479, 487, 491, 499, 503, 509, 521, 523, 541, 547}
	forecast = []float64{73, 79, 83, 89, 97, 101, 103, 107, 109, 113, 127}
)

func evaluation(features ...string) declaration.Evaluation {
	eval := declaration.Evaluation{
		LeftVariable:  "STREAMFLOW",
		RightVariable: "STREAMFLOW",
		Unit:          "CMS",
		TimeScale:     &declaration.TimeScale{Period: 3 * time.Hour, Function: "MEAN"},
	}
	for _, f := range features {
		eval.Features = append(eval.Features, feature.TupleOf(f, f, ""))
	}
	return eval
}

func series(meta timeseries.Metadata, start time.Time, step time.Duration, values []float64,
) timeseries.TimeSeries[float64] {
	b := timeseries.NewBuilder[float64]().SetMetadata(meta)
	for i, v := range values {
		b.AddEvent(timeseries.EventOf(start.Add(time.Duration(i)*step), v))
	}
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func memory() *retrieval.Memory[float64, float64] {
	return &retrieval.Memory[float64, float64]{
		LeftSeries: []timeseries.TimeSeries[float64]{series(timeseries.Metadata{
			Feature:   feature.Of("DRRC2"),
			TimeScale: timescale.TimeScale{Period: time.Hour, Function: timescale.Mean}.Ptr(),
		}, at(17, 0), time.Hour, observed)},
		RightSeries: []timeseries.TimeSeries[float64]{series(timeseries.Metadata{
			ReferenceTimes: map[timeseries.ReferenceTimeType]time.Time{timeseries.T0: at(17, 12)},
			Feature:        feature.Of("DRRC2"),
			TimeScale:      timescale.TimeScale{Period: 3 * time.Hour, Function: timescale.Mean}.Ptr(),
		}, at(17, 15), 3*time.Hour, forecast)},
	}
}

// offline fails every right retrieval for one feature.
type offline struct {
	*retrieval.Memory[float64, float64]
	feature string
}

func (o offline) Right(features []feature.Feature, w *timewindow.TimeWindow) retrieval.Retriever[float64] {
	for _, f := range features {
		if f.Name == o.feature {
			return retrieval.Func[float64](func(context.Context) ([]timeseries.TimeSeries[float64], error) {
				return nil, errors.New("gauge offline")
			})
		}
	}
	return o.Memory.Right(features, w)
}

// stalled blocks every right retrieval until its context ends.
type stalled struct {
	*retrieval.Memory[float64, float64]
}

func (stalled) Right([]feature.Feature, *timewindow.TimeWindow) retrieval.Retriever[float64] {
	return retrieval.Func[float64](func(ctx context.Context) ([]timeseries.TimeSeries[float64], error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func bindings(retrievers retrieval.Factory[float64, float64], features ...string) []factory.Binding[float64] {
	f, err := factory.New(evaluation(features...))
	if err != nil {
		panic(err)
	}
	out, err := f.SingleValuedPools(f.GetPoolRequests(), retrievers)
	if err != nil {
		panic(err)
	}
	return out
}

func TestRunner(t *testing.T) {
	convey.Convey("Given two pools where the second source is offline", t, func() {
		bound := bindings(offline{Memory: memory(), feature: "DRRC3"}, "DRRC2", "DRRC3")
		runner := app.NewRunner[float64](app.WithWorkers(2), app.WithQueueSize(1))

		convey.Convey("When the pools are run", func() {
			outcomes := runner.Run(context.Background(), bound)

			convey.Convey("Then outcomes keep request order and the failure stays with its pool", func() {
				convey.So(outcomes, convey.ShouldHaveLength, 2)
				convey.So(outcomes[0].Request.ID, convey.ShouldEqual, bound[0].Request.ID)
				convey.So(outcomes[1].Request.ID, convey.ShouldEqual, bound[1].Request.ID)
				convey.So(outcomes[0].Err, convey.ShouldBeNil)
				convey.So(outcomes[0].Pool.PairCount(), convey.ShouldEqual, 7)
				convey.So(errors.Is(outcomes[1].Err, retrieval.ErrRetrieval), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given pools whose retrieval never returns", t, func() {
		bound := bindings(stalled{Memory: memory()}, "DRRC2", "DRRC3")
		runner := app.NewRunner[float64](app.WithWorkers(1))

		convey.Convey("When the context expires", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			outcomes := runner.Run(ctx, bound)

			convey.Convey("Then every outstanding pool reports the context error", func() {
				convey.So(outcomes, convey.ShouldHaveLength, 2)
				for _, o := range outcomes {
					convey.So(errors.Is(o.Err, context.DeadlineExceeded), convey.ShouldBeTrue)
				}
			})
		})
	})

	convey.Convey("Given no pools", t, func() {
		convey.Convey("Then the runner returns nothing", func() {
			convey.So(app.NewRunner[float64]().Run(context.Background(), nil), convey.ShouldBeEmpty)
		})
	})
}

func rows(s timeseries.TimeSeries[float64], orientation retrieval.Orientation) []source.Row {
	meta := s.Metadata()
	var ref *time.Time
	if t0, ok := meta.ReferenceTime(timeseries.T0); ok {
		ref = &t0
	}
	var out []source.Row
	for _, e := range s.Events() {
		r := source.Row{
			Orientation: orientation, Variable: "STREAMFLOW", Feature: meta.Feature.Name, ReferenceTime: ref,
			ValidTime: e.Time, Value: e.Value, Unit: "CMS",
		}
		if meta.TimeScale != nil {
			r.ScalePeriod, r.ScaleFunction = meta.TimeScale.Period, "MEAN"
		}
		out = append(out, r)
	}
	return out
}

func TestService(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a service over a memory store", t, func() {
		m := memory()
		store := source.NewMemory(append(rows(m.LeftSeries[0], retrieval.Left),
			rows(m.RightSeries[0], retrieval.Right)...)...)
		cfg := config.New(ctx)
		cfg.WorkerCount = 2
		cfg.Evaluation = evaluation("DRRC2")
		svc := app.New(cfg, app.WithStore(store))

		convey.Convey("When nothing has been evaluated", func() {
			_, ok := svc.LastSummary()

			convey.Convey("Then there is no summary but the service is ready", func() {
				convey.So(ok, convey.ShouldBeFalse)
				convey.So(svc.Ready(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When one evaluation runs", func() {
			summary, err := svc.Evaluate(ctx)

			convey.Convey("Then the pool is summarised and remembered", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(summary.EvaluationID, convey.ShouldNotBeBlank)
				convey.So(summary.Pools, convey.ShouldHaveLength, 1)
				convey.So(summary.Pools[0].Pairs, convey.ShouldEqual, 7)
				convey.So(summary.Pools[0].Series, convey.ShouldEqual, 1)
				convey.So(summary.Failures(), convey.ShouldEqual, 0)
				last, ok := svc.LastSummary()
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(last.EvaluationID, convey.ShouldEqual, summary.EvaluationID)
			})
		})

		convey.Convey("When the declaration is invalid", func() {
			cfg.Evaluation.LeftVariable = ""
			_, err := svc.Evaluate(ctx)

			convey.Convey("Then the evaluation fails as a whole", func() {
				convey.So(errors.Is(err, app.ErrEvaluation), convey.ShouldBeTrue)
				convey.So(errors.Is(err, factory.ErrConfiguration), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given event detection on the observations", t, func() {
		start := time.Date(2079, 12, 3, 0, 0, 0, 0, time.UTC)
		var data []source.Row
		for i, v := range []float64{5, 5, 24, 25, 5, 5, 5, 84, 85, 87, 5, 5} {
			data = append(data, source.Row{
				Orientation: retrieval.Left, Variable: "STREAMFLOW", Feature: "DRRC2",
				ValidTime: start.Add(time.Duration(i) * time.Hour), Value: v,
			})
		}
		window, halfLife, minimum := 6*time.Hour, 2*time.Hour, time.Duration(0)
		cfg := config.New(ctx)
		cfg.Evaluation = evaluation("DRRC2")
		cfg.Evaluation.TimeScale = nil
		cfg.Evaluation.EventDetection = &declaration.EventDetection{
			Datasets: []string{declaration.Observed},
			Parameters: declaration.EventParameters{
				WindowSize: &window, HalfLife: &halfLife, MinimumEventDuration: &minimum,
			},
		}
		svc := app.New(cfg, app.WithStore(source.NewMemory(data...)))

		convey.Convey("When the evaluation runs", func() {
			summary, err := svc.Evaluate(ctx)

			convey.Convey("Then one pool is requested per detected event", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(summary.Events, convey.ShouldEqual, 2)
				convey.So(summary.Pools, convey.ShouldHaveLength, 2)
				convey.So(summary.Pools[0].Window.EarliestValidTime.Hour(), convey.ShouldEqual, 3)
				convey.So(summary.Pools[1].Window.LatestValidTime.Hour(), convey.ShouldEqual, 10)
			})
		})
	})

	convey.Convey("Given a service without a store", t, func() {
		svc := app.New(config.New(ctx))

		convey.Convey("Then it is not ready and cannot evaluate", func() {
			convey.So(errors.Is(svc.Ready(ctx), app.ErrNotOpen), convey.ShouldBeTrue)
			_, err := svc.Evaluate(ctx)
			convey.So(errors.Is(err, app.ErrNotOpen), convey.ShouldBeTrue)
		})

		convey.Convey("When the memory source is opened and closed", func() {
			convey.So(svc.Open(ctx), convey.ShouldBeNil)

			convey.Convey("Then it becomes ready until closed", func() {
				convey.So(svc.Ready(ctx), convey.ShouldBeNil)
				convey.So(svc.Close(), convey.ShouldBeNil)
				convey.So(errors.Is(svc.Ready(ctx), app.ErrNotOpen), convey.ShouldBeTrue)
			})
		})
	})
}

func TestOpenSource(t *testing.T) {
	convey.Convey("Given an unknown source kind", t, func() {
		_, err := app.OpenSource(context.Background(), config.Source{Kind: "oracle"})

		convey.Convey("Then opening fails", func() {
			convey.So(errors.Is(err, source.ErrUnknownSource), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given an in-memory sqlite source", t, func() {
		store, err := app.OpenSource(context.Background(), config.Source{Kind: config.SourceSQLite, Path: ":memory:"})

		convey.Convey("Then it opens and closes", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(store.Close(), convey.ShouldBeNil)
		})
	})
}
