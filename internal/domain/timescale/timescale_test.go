package timescale_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/smartystreets/goconvey/convey"
)

func TestTimeScale(t *testing.T) {
	convey.Convey("Given time scales", t, func() {
		threeHourMean := timescale.TimeScale{Period: 3 * time.Hour, Function: timescale.Mean}
		oneHourMean := timescale.TimeScale{Period: time.Hour, Function: timescale.Mean}

		convey.Convey("Then instantaneous scales compare equal regardless of function", func() {
			a := timescale.TimeScale{Period: time.Second, Function: timescale.Maximum}
			convey.So(a.Equal(timescale.Instantaneous()), convey.ShouldBeTrue)
			convey.So(a.String(), convey.ShouldEqual, "[INSTANTANEOUS]")
		})

		convey.Convey("Then rescaling is required only between different scales", func() {
			convey.So(timescale.RequiresRescaling(oneHourMean.Ptr(), threeHourMean.Ptr()), convey.ShouldBeTrue)
			convey.So(timescale.RequiresRescaling(threeHourMean.Ptr(), threeHourMean.Ptr()), convey.ShouldBeFalse)
			convey.So(timescale.RequiresRescaling(oneHourMean.Ptr(), nil), convey.ShouldBeFalse)
			convey.So(timescale.RequiresRescaling(nil, threeHourMean.Ptr()), convey.ShouldBeTrue)
		})

		convey.Convey("Then functions parse from declared names", func() {
			fn, err := timescale.ParseFunction("max")
			convey.So(err, convey.ShouldBeNil)
			convey.So(fn, convey.ShouldEqual, timescale.Maximum)

			_, err = timescale.ParseFunction("median")
			convey.So(errors.Is(err, timescale.ErrInvalidTimeScale), convey.ShouldBeTrue)
		})

		convey.Convey("Then negative periods are rejected", func() {
			_, err := timescale.New(-time.Hour, timescale.Mean)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
