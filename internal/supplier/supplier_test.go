package supplier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/hydropool/internal/baseline"
	"github.com/okian/hydropool/internal/crosspair"
	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/pool"
	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/domain/timewindow"
	"github.com/okian/hydropool/internal/retrieval"
	"github.com/okian/hydropool/internal/supplier"
	"github.com/okian/hydropool/internal/upscale"
	"github.com/smartystreets/goconvey/convey"
)

var start = time.Date(2551, 3, 17, 0, 0, 0, 0, time.UTC)

func at(day, hour int) time.Time {
	return time.Date(2551, 3, day, hour, 0, 0, 0, time.UTC)
}

func threeHourMean() *timescale.TimeScale {
	return timescale.TimeScale{Period: 3 * time.Hour, Function: timescale.Mean}.Ptr()
}

func observations(name string) timeseries.TimeSeries[float64] {
	values := []float64{313, 317, 331, 347, 349, 353, 359, 367, 373, 379, 383, 389, 397, 401, 409, 419, 421, 431,
		433, 439, 443, 449, 457, 461, 463, 467, 479, 487, 491, 499, 503, 509, 521, 523, 541, 547, 557, 563, 569, 571,
		577, 587, 593, 599, 601, 607, 613, 617, 619, 631, 641, 643, 647, 653, 659, 661, 673, 677, 683, 691, 701, 709,
		719, 727, 733, 739, 743, 751, 757, 761, 769, 773, 787, 797, 809, 811, 821, 823, 827, 829, 839, 853, 857, 859,
		863}
	meta := timeseries.Metadata{
		Feature:   feature.Of(name),
		Variable:  "STREAMFLOW",
		Unit:      "CMS",
		TimeScale: timescale.TimeScale{Period: time.Hour, Function: timescale.Mean}.Ptr(),
	}
	b := timeseries.NewBuilder[float64]().SetMetadata(meta)
	for i, v := range values {
		b.AddEvent(timeseries.EventOf(start.Add(time.Duration(i)*time.Hour), v))
	}
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func forecast(name string, t0 time.Time, values ...float64) timeseries.TimeSeries[float64] {
	meta := timeseries.Metadata{
		ReferenceTimes: map[timeseries.ReferenceTimeType]time.Time{timeseries.T0: t0},
		Feature:        feature.Of(name),
		Variable:       "STREAMFLOW",
		Unit:           "CMS",
		TimeScale:      threeHourMean(),
	}
	b := timeseries.NewBuilder[float64]().SetMetadata(meta)
	for i, v := range values {
		b.AddEvent(timeseries.EventOf(t0.Add(time.Duration(3*(i+1))*time.Hour), v))
	}
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func forecasts() []timeseries.TimeSeries[float64] {
	return []timeseries.TimeSeries[float64]{
		forecast("DRRC2", at(17, 12), 73, 79, 83, 89, 97, 101, 103, 107, 109, 113, 127),
		forecast("DRRC2", at(18, 0), 131, 137, 139, 149, 151, 157, 163, 167, 173, 179, 181),
		forecast("DRRC2", at(18, 12), 191, 193, 197, 199, 211, 223, 227, 229, 233, 239, 241),
		forecast("DRRC2", at(19, 0), 251, 257, 263, 269, 271, 277, 281, 283, 293, 307, 311),
	}
}

func metadata(from, to time.Time, earliestLead, latestLead time.Duration, tuples ...feature.Tuple) pool.Metadata {
	w, err := timewindow.New(
		timewindow.WithReferenceTimes(from, to),
		timewindow.WithLeadDurations(earliestLead, latestLead))
	if err != nil {
		panic(err)
	}
	if len(tuples) == 0 {
		tuples = []feature.Tuple{feature.TupleOf("DRRC2", "DRRC2", "")}
	}
	g, err := feature.NewGroup("", tuples...)
	if err != nil {
		panic(err)
	}
	return pool.Metadata{
		Evaluation: pool.Evaluation{LeftVariable: "STREAMFLOW", RightVariable: "STREAMFLOW", MeasurementUnit: "CMS"},
		Group:      g,
		Window:     w,
		TimeScale:  threeHourMean(),
	}
}

func upscalers() []supplier.Option[float64] {
	return []supplier.Option[float64]{
		supplier.WithLeftUpscaler[float64](upscale.NewSingleValued()),
		supplier.WithRightUpscaler[float64](upscale.NewSingleValued()),
	}
}

func build(req pool.Request, left, right retrieval.Retriever[float64], extra ...supplier.Option[float64],
) (pool.Pool[pool.Pair[float64, float64]], error) {
	opts := append(upscalers(),
		supplier.WithRequest[float64](req),
		supplier.WithLeft[float64](left),
		supplier.WithRight[float64](right))
	s, err := supplier.New(append(opts, extra...)...)
	if err != nil {
		return pool.Pool[pool.Pair[float64, float64]]{}, err
	}
	return s.Get(context.Background())
}

func TestGet(t *testing.T) {
	convey.Convey("Given hourly observations and three-hourly forecasts", t, func() {
		left := retrieval.Of(observations("DRRC2"))
		right := retrieval.Of(forecasts()...)

		convey.Convey("When the pool covers the first forecast and leads up to 23 hours", func() {
			req := pool.NewRequest(metadata(at(17, 0), at(17, 13), 0, 23*time.Hour), nil)
			p, err := build(req, left, right)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the upscaled observations are paired with the forecast", func() {
				data := p.Data()
				convey.So(len(data), convey.ShouldEqual, 1)
				want := []pool.Pair[float64, float64]{
					{Left: 409.6666666666667, Right: 73},
					{Left: 428.3333333333333, Right: 79},
					{Left: 443.6666666666667, Right: 83},
					{Left: 460.3333333333333, Right: 89},
					{Left: 477.6666666666667, Right: 97},
					{Left: 497.6666666666667, Right: 101},
					{Left: 517.6666666666666, Right: 103},
				}
				convey.So(data[0].Len(), convey.ShouldEqual, len(want))
				for i, w := range want {
					e := data[0].At(i)
					convey.So(e.Time, convey.ShouldEqual, at(17, 15).Add(time.Duration(3*i)*time.Hour))
					convey.So(e.Value.Left, convey.ShouldAlmostEqual, w.Left, 1e-9)
					convey.So(e.Value.Right, convey.ShouldEqual, w.Right)
				}
				convey.So(p.Metadata().TimeScale.Equal(*threeHourMean()), convey.ShouldBeTrue)
				convey.So(p.Metadata().PoolID, convey.ShouldEqual, req.ID)
			})
		})

		convey.Convey("When the pool covers two forecasts", func() {
			req := pool.NewRequest(metadata(at(18, 11), at(19, 0), 0, 23*time.Hour), nil)
			p, err := build(req, left, right)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then each forecast yields its own series ordered by reference time", func() {
				data := p.Data()
				convey.So(len(data), convey.ShouldEqual, 2)
				convey.So(p.PairCount(), convey.ShouldEqual, 14)
				first, _ := data[0].Metadata().FirstReferenceTime()
				convey.So(first, convey.ShouldEqual, at(18, 12))
				convey.So(data[1].At(0).Value.Right, convey.ShouldEqual, 251.0)
			})
		})

		convey.Convey("When no forecast falls inside the pool", func() {
			req := pool.NewRequest(metadata(at(19, 8), at(19, 21), 17*time.Hour, 40*time.Hour), nil)
			p, err := build(req, left, right)

			convey.Convey("Then the pool is empty but valid", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(p.IsEmpty(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the forecasts are shifted by three hours", func() {
			req := pool.NewRequest(metadata(at(17, 0), at(17, 13), 0, 23*time.Hour), nil)
			p, err := build(req, left, right, supplier.WithTimeShifts[float64](0, 3*time.Hour, 0))
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the forecast values meet later observations", func() {
				data := p.Data()
				convey.So(len(data), convey.ShouldEqual, 1)
				convey.So(data[0].At(0).Time, convey.ShouldEqual, at(17, 18))
				convey.So(data[0].At(0).Value.Left, convey.ShouldAlmostEqual, 428.3333333333333, 1e-9)
				convey.So(data[0].At(0).Value.Right, convey.ShouldEqual, 73.0)
			})
		})
	})

	convey.Convey("Given two features cross-paired exactly across features", t, func() {
		left := retrieval.Of(observations("DRRC2"), observations("DRRC3"))
		right := retrieval.Of(
			forecast("DRRC2", at(17, 12), 73, 79, 83, 89, 97, 101, 103, 107, 109, 113, 127),
			forecast("DRRC3", at(17, 12), 1, 2))
		meta := metadata(at(17, 0), at(17, 13), 0, 23*time.Hour,
			feature.TupleOf("DRRC2", "DRRC2", ""), feature.TupleOf("DRRC3", "DRRC3", ""))
		req := pool.NewRequest(meta, nil)

		convey.Convey("When the pool is built", func() {
			cp := crosspair.New[pool.Pair[float64, float64]](crosspair.WithMethod(crosspair.Exact))
			p, err := build(req, left, right, supplier.WithCrossPairing[float64](cp, crosspair.AcrossFeatures))
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then both features keep only their common valid times", func() {
				data := p.Data()
				convey.So(len(data), convey.ShouldEqual, 2)
				byFeature := timeseries.GroupByFeature(data)
				drrc2, drrc3 := byFeature["DRRC2"], byFeature["DRRC3"]
				convey.So(len(drrc2), convey.ShouldEqual, 1)
				convey.So(len(drrc3), convey.ShouldEqual, 1)
				convey.So(drrc2[0].Len(), convey.ShouldEqual, 2)
				convey.So(drrc3[0].Len(), convey.ShouldEqual, 2)
				convey.So(drrc2[0].At(0).Value.Left, convey.ShouldAlmostEqual, 409.6666666666667, 1e-9)
				convey.So(drrc2[0].At(1).Value.Right, convey.ShouldEqual, 79.0)
				convey.So(drrc3[0].At(0).Value.Right, convey.ShouldEqual, 1.0)
				convey.So(drrc3[0].At(1).Value.Left, convey.ShouldAlmostEqual, 428.3333333333333, 1e-9)
			})
		})
	})

	convey.Convey("Given a persistence baseline generated from the observations", t, func() {
		meta := metadata(at(17, 0), at(17, 13), 0, 23*time.Hour)
		bm := meta
		bm.Evaluation.BaselineGenerated = true
		req := pool.NewRequest(meta, &bm)
		persistence := func(ctx context.Context, src retrieval.Retriever[float64]) (baseline.Generator[float64], error) {
			p, err := baseline.NewPersistence(ctx, src)
			if err != nil {
				return nil, err
			}
			return p, nil
		}

		convey.Convey("When the pool is built", func() {
			p, err := build(req, retrieval.Of(observations("DRRC2")), retrieval.Of(forecasts()...),
				supplier.WithBaselineGenerator[float64](persistence))
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then every baseline pair persists the last value before the reference time", func() {
				convey.So(p.HasBaseline(), convey.ShouldBeTrue)
				convey.So(p.BaselinePairCount(), convey.ShouldEqual, 7)
				for _, s := range p.BaselineData() {
					for _, e := range s.Events() {
						convey.So(e.Value.Right, convey.ShouldAlmostEqual, 383.6666666666667, 1e-9)
					}
				}
				bmeta, ok := p.BaselineMetadata()
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(bmeta.IsBaseline, convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a persistence baseline whose order outreaches the history of one forecast", t, func() {
		meta := metadata(at(17, 11), at(18, 0), 0, 23*time.Hour)
		bm := meta
		bm.Evaluation.BaselineGenerated = true
		req := pool.NewRequest(meta, &bm)
		persistence := func(ctx context.Context, src retrieval.Retriever[float64]) (baseline.Generator[float64], error) {
			p, err := baseline.NewPersistence(ctx, src, baseline.WithOrder(13))
			if err != nil {
				return nil, err
			}
			return p, nil
		}
		right := retrieval.Of(forecasts()[0], forecasts()[1])

		convey.Convey("When the pool is built", func() {
			p, err := build(req, retrieval.Of(observations("DRRC2")), right,
				supplier.WithBaselineGenerator[float64](persistence))
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then both forecasts are paired but only the later one has a baseline", func() {
				convey.So(len(p.Data()), convey.ShouldEqual, 2)
				convey.So(p.PairCount(), convey.ShouldEqual, 14)
				convey.So(p.HasBaseline(), convey.ShouldBeTrue)
				baselines := p.BaselineData()
				convey.So(len(baselines), convey.ShouldEqual, 1)
				ref, ok := baselines[0].Metadata().FirstReferenceTime()
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(ref, convey.ShouldEqual, at(18, 0))
				convey.So(p.BaselinePairCount(), convey.ShouldEqual, 7)
				for _, e := range baselines[0].Events() {
					convey.So(e.Value.Right, convey.ShouldAlmostEqual, 383.6666666666667, 1e-9)
				}
			})
		})
	})

	convey.Convey("Given a climatology request", t, func() {
		convey.Convey("When the left data covers every feature", func() {
			req := pool.NewRequest(metadata(at(17, 0), at(17, 13), 0, 23*time.Hour), nil)
			p, err := build(req, retrieval.Of(observations("DRRC2")), retrieval.Of(forecasts()...),
				supplier.WithClimatology[float64]())
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the climatology holds the upscaled left values", func() {
				convey.So(p.Climatology().Features(), convey.ShouldResemble, []string{"DRRC2"})
				convey.So(len(p.Climatology().Get("DRRC2")), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When a declared feature has no left data", func() {
			meta := metadata(at(17, 0), at(17, 13), 0, 23*time.Hour,
				feature.TupleOf("DRRC2", "DRRC2", ""), feature.TupleOf("DRRC3", "DRRC3", ""))
			_, err := build(pool.NewRequest(meta, nil), retrieval.Of(observations("DRRC2")),
				retrieval.Of(forecasts()...), supplier.WithClimatology[float64]())

			convey.Convey("Then the pool fails", func() {
				convey.So(errors.Is(err, supplier.ErrClimatology), convey.ShouldBeTrue)
				convey.So(errors.Is(err, supplier.ErrPoolBuild), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a right source that fails", t, func() {
		req := pool.NewRequest(metadata(at(17, 0), at(17, 13), 0, 23*time.Hour), nil)
		broken := retrieval.Func[float64](func(context.Context) ([]timeseries.TimeSeries[float64], error) {
			return nil, errors.New("connection refused")
		})

		convey.Convey("When the pool is built", func() {
			_, err := build(req, retrieval.Of(observations("DRRC2")), broken)

			convey.Convey("Then the failure names the request and the retrieval", func() {
				var pe *supplier.PoolError
				convey.So(errors.As(err, &pe), convey.ShouldBeTrue)
				convey.So(pe.Request.ID, convey.ShouldEqual, req.ID)
				convey.So(errors.Is(err, retrieval.ErrRetrieval), convey.ShouldBeTrue)
				convey.So(errors.Is(err, supplier.ErrPoolBuild), convey.ShouldBeTrue)
			})
		})
	})
}

func TestNew(t *testing.T) {
	convey.Convey("Given incomplete supplier configurations", t, func() {
		meta := metadata(at(17, 0), at(17, 13), 0, 23*time.Hour)
		req := pool.NewRequest(meta, nil)
		left := retrieval.Of(observations("DRRC2"))
		right := retrieval.Of(forecasts()...)

		convey.Convey("When the request is missing", func() {
			_, err := supplier.New(supplier.WithLeft[float64](left), supplier.WithRight[float64](right))
			convey.So(errors.Is(err, supplier.ErrConfiguration), convey.ShouldBeTrue)
		})

		convey.Convey("When the left retriever is missing", func() {
			_, err := supplier.New(append(upscalers(), supplier.WithRequest[float64](req),
				supplier.WithRight[float64](right))...)
			convey.So(errors.Is(err, supplier.ErrConfiguration), convey.ShouldBeTrue)
		})

		convey.Convey("When the desired scale has no right upscaler", func() {
			_, err := supplier.New(supplier.WithRequest[float64](req),
				supplier.WithLeft[float64](left), supplier.WithRight[float64](right),
				supplier.WithLeftUpscaler[float64](upscale.NewSingleValued()))
			convey.So(errors.Is(err, supplier.ErrConfiguration), convey.ShouldBeTrue)
		})

		convey.Convey("When baseline metadata has no baseline source", func() {
			bm := meta
			_, err := supplier.New(append(upscalers(), supplier.WithRequest[float64](pool.NewRequest(meta, &bm)),
				supplier.WithLeft[float64](left), supplier.WithRight[float64](right))...)
			convey.So(errors.Is(err, supplier.ErrConfiguration), convey.ShouldBeTrue)
		})

		convey.Convey("When a baseline source has no baseline metadata", func() {
			_, err := supplier.New(append(upscalers(), supplier.WithRequest[float64](req),
				supplier.WithLeft[float64](left), supplier.WithRight[float64](right),
				supplier.WithBaseline[float64](right))...)
			convey.So(errors.Is(err, supplier.ErrConfiguration), convey.ShouldBeTrue)
		})

		convey.Convey("When cross-pairing is declared without a cross-pairer", func() {
			_, err := supplier.New(append(upscalers(), supplier.WithRequest[float64](req),
				supplier.WithLeft[float64](left), supplier.WithRight[float64](right),
				supplier.WithCrossPairing[float64](nil, crosspair.WithinFeatures))...)
			convey.So(errors.Is(err, supplier.ErrConfiguration), convey.ShouldBeTrue)
		})

		convey.Convey("When everything is present", func() {
			s, err := supplier.New(append(upscalers(), supplier.WithRequest[float64](req),
				supplier.WithLeft[float64](left), supplier.WithRight[float64](right))...)
			convey.So(err, convey.ShouldBeNil)
			convey.So(s.Request().ID, convey.ShouldEqual, req.ID)
		})
	})
}
