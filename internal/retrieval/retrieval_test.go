package retrieval_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"github.com/sony/gobreaker/v2"

	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/domain/timewindow"
	"github.com/okian/hydropool/internal/retrieval"
)

var start = time.Date(2551, 3, 17, 0, 0, 0, 0, time.UTC)

func observed(name string, hours int) timeseries.TimeSeries[float64] {
	b := timeseries.NewBuilder[float64]().SetMetadata(timeseries.Metadata{Feature: feature.Of(name)})
	for i := 0; i < hours; i++ {
		b.AddEvent(timeseries.EventOf(start.Add(time.Duration(i)*time.Hour), float64(i)))
	}
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func TestCaching(t *testing.T) {
	convey.Convey("Given a counting source", t, func() {
		var calls atomic.Int32
		src := retrieval.Func[float64](func(context.Context) ([]timeseries.TimeSeries[float64], error) {
			calls.Add(1)
			return []timeseries.TimeSeries[float64]{observed("DRRC2", 3)}, nil
		})

		convey.Convey("When a caching retriever is read twice", func() {
			c := retrieval.NewCaching[float64](src)
			a, errA := c.Get(context.Background())
			b, errB := c.Get(context.Background())

			convey.Convey("Then the source is read once", func() {
				convey.So(errA, convey.ShouldBeNil)
				convey.So(errB, convey.ShouldBeNil)
				convey.So(calls.Load(), convey.ShouldEqual, 1)
				convey.So(len(a), convey.ShouldEqual, 1)
				convey.So(len(b), convey.ShouldEqual, 1)
			})
		})
	})
}

func TestInstrumented(t *testing.T) {
	convey.Convey("Given a failing source", t, func() {
		boom := errors.New("boom")
		src := retrieval.Func[float64](func(context.Context) ([]timeseries.TimeSeries[float64], error) {
			return nil, boom
		})

		convey.Convey("When read through the instrumented decorator", func() {
			_, err := retrieval.NewInstrumented[float64](retrieval.Right, src).Get(context.Background())

			convey.Convey("Then the failure is a retrieval error that keeps its cause", func() {
				convey.So(errors.Is(err, retrieval.ErrRetrieval), convey.ShouldBeTrue)
				convey.So(errors.Is(err, boom), convey.ShouldBeTrue)
			})
		})
	})
}

func TestBreaker(t *testing.T) {
	convey.Convey("Given a source that always fails", t, func() {
		var calls atomic.Int32
		src := retrieval.Func[float64](func(context.Context) ([]timeseries.TimeSeries[float64], error) {
			calls.Add(1)
			return nil, errors.New("unavailable")
		})
		settings := retrieval.DefaultBreakerSettings()
		settings.ConsecutiveFailures = 1
		b := retrieval.NewBreaker[float64]("test-source", src, settings)

		convey.Convey("When the failures exceed the threshold", func() {
			_, _ = b.Get(context.Background())
			_, _ = b.Get(context.Background())
			_, err := b.Get(context.Background())

			convey.Convey("Then the breaker opens and stops calling the source", func() {
				convey.So(errors.Is(err, gobreaker.ErrOpenState), convey.ShouldBeTrue)
				convey.So(b.State(), convey.ShouldEqual, gobreaker.StateOpen)
				convey.So(calls.Load(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When two guarded retrievers share the breaker", func() {
			first := b.Guard(src)
			second := b.Guard(src)
			_, _ = first.Get(context.Background())
			_, _ = second.Get(context.Background())
			_, err := second.Get(context.Background())

			convey.Convey("Then failures of either trip the shared circuit", func() {
				convey.So(errors.Is(err, gobreaker.ErrOpenState), convey.ShouldBeTrue)
				convey.So(calls.Load(), convey.ShouldEqual, 2)
			})
		})
	})
}

func TestMemory(t *testing.T) {
	convey.Convey("Given an in-memory factory with two features", t, func() {
		m := &retrieval.Memory[float64, float64]{
			LeftSeries: []timeseries.TimeSeries[float64]{observed("DRRC2", 6), observed("DRRC3", 6)},
		}

		convey.Convey("When left data is requested for one feature and a valid-time window", func() {
			w, err := timewindow.New(timewindow.WithValidTimes(start.Add(time.Hour), start.Add(3*time.Hour)))
			convey.So(err, convey.ShouldBeNil)
			series, err := m.Left([]feature.Feature{feature.Of("DRRC3")}, &w).Get(context.Background())
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then only that feature within the window is returned", func() {
				convey.So(len(series), convey.ShouldEqual, 1)
				convey.So(series[0].Metadata().Feature.Name, convey.ShouldEqual, "DRRC3")
				convey.So(series[0].Len(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When an undeclared covariate is requested", func() {
			_, err := m.Covariate("precipitation", nil, nil).Get(context.Background())

			convey.Convey("Then retrieval fails", func() {
				convey.So(errors.Is(err, retrieval.ErrUnknownCovariate), convey.ShouldBeTrue)
			})
		})
	})
}
