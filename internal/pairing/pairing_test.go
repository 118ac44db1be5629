package pairing_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/pool"
	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/pairing"
	"github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2039, 1, 12, 0, 0, 0, 0, time.UTC)

func series(meta timeseries.Metadata, at map[int]float64) timeseries.TimeSeries[float64] {
	b := timeseries.NewBuilder[float64]().SetMetadata(meta)
	for h, v := range at {
		b.AddEvent(timeseries.EventOf(base.Add(time.Duration(h)*time.Hour), v))
	}
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func TestTimePairer(t *testing.T) {
	obsMeta := timeseries.Metadata{Feature: feature.Of("FAKE"), Variable: "STREAMFLOW"}
	fcMeta := obsMeta.WithReferenceTimes(map[timeseries.ReferenceTimeType]time.Time{
		timeseries.T0: time.Date(2039, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	convey.Convey("Given observations and a forecast sharing some valid times", t, func() {
		left := series(obsMeta, map[int]float64{1: math.Inf(1), 3: 3, 7: 7, 8: 15, 10: 79, 11: 80, 18: 93})
		right := series(fcMeta, map[int]float64{1: 1, 2: 3, 6: 7, 8: math.NaN(), 9: 79, 11: 80, 19: 93})

		convey.Convey("When paired admitting everything", func() {
			pairs, err := pairing.New[float64, float64]().Pair(left, right)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then only exactly matching times are paired", func() {
				convey.So(pairs.Len(), convey.ShouldEqual, 3)
				convey.So(pairs.Metadata().HasReferenceTimes(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When paired admitting only finite values", func() {
			finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
			p := pairing.New(pairing.WithLeftAdmissible[float64, float64](finite),
				pairing.WithRightAdmissible[float64, float64](finite))
			pairs, err := p.Pair(left, right)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then one pair remains", func() {
				convey.So(pairs.Len(), convey.ShouldEqual, 1)
				convey.So(pairs.At(0).Time, convey.ShouldEqual, base.Add(11*time.Hour))
				convey.So(pairs.At(0).Value, convey.ShouldResemble, pool.PairOf(80.0, 80.0))
			})
		})
	})

	convey.Convey("Given series without common valid times", t, func() {
		left := series(obsMeta, map[int]float64{1: 1, 2: 2})
		right := series(fcMeta, map[int]float64{3: 3})

		convey.Convey("When paired", func() {
			pairs, err := pairing.New[float64, float64]().Pair(left, right)

			convey.Convey("Then the result is empty, not an error", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(pairs.IsEmpty(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given series with different time scales", t, func() {
		left := timeseries.Empty[float64](obsMeta.WithTimeScale(timescale.Instantaneous().Ptr()))
		right := timeseries.Empty[float64](obsMeta.WithTimeScale(
			timescale.TimeScale{Period: time.Hour, Function: timescale.Unknown}.Ptr()))

		convey.Convey("When paired", func() {
			_, err := pairing.New[float64, float64]().Pair(left, right)

			convey.Convey("Then pairing fails", func() {
				convey.So(errors.Is(err, pairing.ErrPairing), convey.ShouldBeTrue)
			})
		})
	})
}
