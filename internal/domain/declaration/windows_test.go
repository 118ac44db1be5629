package declaration_test

import (
	"testing"
	"time"

	"github.com/okian/hydropool/internal/domain/declaration"
	"github.com/okian/hydropool/internal/domain/timewindow"
	"github.com/smartystreets/goconvey/convey"
)

func TestTimeWindows(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2551, 3, d, h, 0, 0, 0, time.UTC) }

	convey.Convey("Given reference and lead intervals with overlapping pools", t, func() {
		eval := declaration.Evaluation{
			ReferenceDates:     &declaration.TimeInterval{Minimum: day(17, 0), Maximum: day(20, 0)},
			ReferenceDatePools: &declaration.PoolSize{Period: 13 * time.Hour, Frequency: 7 * time.Hour},
			LeadTimes:          &declaration.LeadTimeInterval{Minimum: 0, Maximum: 40 * time.Hour},
			LeadTimePools:      &declaration.PoolSize{Period: 23 * time.Hour, Frequency: 17 * time.Hour},
		}

		convey.Convey("When slicing the axes", func() {
			refs := eval.ReferenceDateBounds()
			leads := eval.LeadTimeBounds()
			windows := eval.TimeWindows()

			convey.Convey("Then the pools stop before passing the interval maximum", func() {
				convey.So(refs, convey.ShouldHaveLength, 9)
				convey.So(refs[8].Earliest.Equal(day(19, 8)), convey.ShouldBeTrue)
				convey.So(refs[8].Latest.Equal(day(19, 21)), convey.ShouldBeTrue)
				convey.So(leads, convey.ShouldResemble, []declaration.DurationBounds{
					{Earliest: 0, Latest: 23 * time.Hour},
					{Earliest: 17 * time.Hour, Latest: 40 * time.Hour},
				})
				convey.So(windows, convey.ShouldHaveLength, 18)
				convey.So(windows[1].EarliestLeadDuration, convey.ShouldEqual, 17*time.Hour)
				convey.So(windows[1].HasUnboundedValidTimes(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given no intervals", t, func() {
		eval := declaration.Evaluation{}

		convey.Convey("When slicing the axes", func() {
			windows := eval.TimeWindows()

			convey.Convey("Then one unbounded window results", func() {
				convey.So(windows, convey.ShouldHaveLength, 1)
				convey.So(windows[0].Equal(timewindow.Unbounded()), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool without frequency", t, func() {
		p := declaration.PoolSize{Period: 6 * time.Hour}

		convey.Convey("When asking for the increment", func() {
			convey.Convey("Then it is the period", func() {
				convey.So(p.Increment(), convey.ShouldEqual, 6*time.Hour)
			})
		})
	})
}
