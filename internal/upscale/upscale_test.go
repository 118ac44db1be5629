package upscale_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/upscale"
	"github.com/smartystreets/goconvey/convey"
)

var start = time.Date(2551, 3, 17, 0, 0, 0, 0, time.UTC)

func hourly(scale *timescale.TimeScale, values ...float64) timeseries.TimeSeries[float64] {
	meta := timeseries.Metadata{Feature: feature.Of("DRRC2"), Variable: "STREAMFLOW", Unit: "CMS", TimeScale: scale}
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

func scale(period time.Duration, fn timescale.Function) timescale.TimeScale {
	return timescale.TimeScale{Period: period, Function: fn}
}

func TestSingleValued(t *testing.T) {
	oneHourMean := scale(time.Hour, timescale.Mean)
	threeHourMean := scale(3*time.Hour, timescale.Mean)
	observed := hourly(oneHourMean.Ptr(), 313, 317, 331, 347, 349, 353, 359, 367, 373, 379, 383, 389, 397, 401,
		409, 419, 421, 431, 433, 439)

	convey.Convey("Given hourly mean observations", t, func() {
		u := upscale.NewSingleValued()

		convey.Convey("When upscaled to three-hour means ending at forecast valid times", func() {
			ends := []time.Time{start.Add(18 * time.Hour), start.Add(15 * time.Hour)}
			out, err := u.Upscale(observed, threeHourMean, ends)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then each bucket is the mean of the three hours ending at its valid time", func() {
				convey.So(out.Len(), convey.ShouldEqual, 2)
				convey.So(out.At(0).Time, convey.ShouldEqual, start.Add(15*time.Hour))
				convey.So(out.At(0).Value, convey.ShouldAlmostEqual, 409.6666666666667, 1e-9)
				convey.So(out.At(1).Value, convey.ShouldAlmostEqual, 428.3333333333333, 1e-9)
				convey.So(out.TimeScale().Equal(threeHourMean), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When upscaled to the scale it already has", func() {
			out, err := u.Upscale(observed, oneHourMean, nil)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the events are unchanged", func() {
				convey.So(out.Events(), convey.ShouldResemble, observed.Events())
			})
		})

		convey.Convey("When upscaled without explicit bucket ends", func() {
			totals := hourly(scale(time.Hour, timescale.Total).Ptr(), 1, 2, 3, 4, 5, 6)
			out, err := u.Upscale(totals, scale(3*time.Hour, timescale.Total), nil)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then buckets start one step before the first event", func() {
				convey.So(out.Len(), convey.ShouldEqual, 2)
				convey.So(out.At(0).Time, convey.ShouldEqual, start.Add(2*time.Hour))
				convey.So(out.At(0).Value, convey.ShouldEqual, 6.0)
				convey.So(out.At(1).Value, convey.ShouldEqual, 15.0)
			})
		})
	})

	convey.Convey("Given a gap inside a required bucket", t, func() {
		b := timeseries.NewBuilder[float64]().SetMetadata(observed.Metadata())
		for _, e := range observed.Events() {
			if !e.Time.Equal(start.Add(14 * time.Hour)) {
				b.AddEvent(e)
			}
		}
		gappy, err := b.Build()
		convey.So(err, convey.ShouldBeNil)
		ends := []time.Time{start.Add(15 * time.Hour), start.Add(18 * time.Hour)}

		convey.Convey("When upscaled leniently", func() {
			out, err := upscale.NewSingleValued().Upscale(gappy, threeHourMean, ends)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the incomplete bucket is skipped", func() {
				convey.So(out.Len(), convey.ShouldEqual, 1)
				convey.So(out.At(0).Time, convey.ShouldEqual, start.Add(18*time.Hour))
			})
		})

		convey.Convey("When upscaled strictly", func() {
			_, err := upscale.NewSingleValued(upscale.WithStrict()).Upscale(gappy, threeHourMean, ends)

			convey.Convey("Then upscaling fails", func() {
				convey.So(errors.Is(err, upscale.ErrUpscaling), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given incompatible scales", t, func() {
		u := upscale.NewSingleValued()
		cases := map[string]timescale.TimeScale{
			"unknown function":    scale(3*time.Hour, timescale.Unknown),
			"downscaling":         scale(30*time.Minute, timescale.Mean),
			"non-integer":         scale(90*time.Minute, timescale.Mean),
			"function mismatch":   scale(time.Hour, timescale.Maximum),
			"total from the mean": scale(3*time.Hour, timescale.Total),
		}
		for name, desired := range cases {
			convey.Convey("When the desired scale is a "+name, func() {
				_, err := u.Upscale(observed, desired, nil)

				convey.Convey("Then upscaling fails", func() {
					convey.So(errors.Is(err, upscale.ErrUpscaling), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When instantaneous values are accumulated", func() {
			inst := hourly(timescale.Instantaneous().Ptr(), 1, 2, 3)
			_, err := u.Upscale(inst, scale(3*time.Hour, timescale.Total), nil)

			convey.Convey("Then upscaling fails", func() {
				convey.So(errors.Is(err, upscale.ErrUpscaling), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the series has no time scale", func() {
			_, err := u.Upscale(hourly(nil, 1, 2, 3), threeHourMean, nil)

			convey.Convey("Then upscaling fails", func() {
				convey.So(errors.Is(err, upscale.ErrUpscaling), convey.ShouldBeTrue)
			})
		})
	})
}

func TestAggregate(t *testing.T) {
	convey.Convey("Given a bucket of values", t, func() {
		values := []float64{379, 383, 389}

		convey.Convey("Then each function aggregates it", func() {
			convey.So(upscale.Aggregate(timescale.Mean, values), convey.ShouldAlmostEqual, 383.6666666666667, 1e-9)
			convey.So(upscale.Aggregate(timescale.Total, values), convey.ShouldEqual, 1151.0)
			convey.So(upscale.Aggregate(timescale.Maximum, values), convey.ShouldEqual, 389.0)
			convey.So(upscale.Aggregate(timescale.Minimum, values), convey.ShouldEqual, 379.0)
		})

		convey.Convey("Then a missing member makes the aggregate missing", func() {
			convey.So(math.IsNaN(upscale.Aggregate(timescale.Mean, []float64{1, math.NaN()})), convey.ShouldBeTrue)
		})
	})
}

func TestEnsemble(t *testing.T) {
	convey.Convey("Given an hourly two-member ensemble", t, func() {
		meta := timeseries.Metadata{Feature: feature.Of("DRRC2"), TimeScale: scale(time.Hour, timescale.Mean).Ptr()}
		b := timeseries.NewBuilder[timeseries.Ensemble]().SetMetadata(meta)
		for i := 0; i < 6; i++ {
			v := float64(i + 1)
			b.AddEvent(timeseries.EventOf(start.Add(time.Duration(i)*time.Hour),
				timeseries.EnsembleOf([]float64{v, 10 * v}, []string{"a", "b"})))
		}
		series, err := b.Build()
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When upscaled to three-hour maxima", func() {
			out, err := upscale.NewEnsemble().Upscale(series, scale(3*time.Hour, timescale.Maximum), nil)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then each member is aggregated independently", func() {
				convey.So(out.Len(), convey.ShouldEqual, 2)
				convey.So(out.At(0).Value.Members, convey.ShouldResemble, []float64{3, 30})
				convey.So(out.At(1).Value.Members, convey.ShouldResemble, []float64{6, 60})
				convey.So(out.At(1).Value.Labels, convey.ShouldResemble, []string{"a", "b"})
			})
		})
	})
}
