package archive_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/hydropool/internal/adapters/source"
	"github.com/okian/hydropool/internal/adapters/source/archive"
	"github.com/okian/hydropool/internal/retrieval"
)

func TestArchive(t *testing.T) {
	issued := time.Date(2551, 3, 17, 12, 0, 0, 0, time.UTC)
	rows := []source.Row{
		{
			Orientation: retrieval.Left, Variable: "STREAMFLOW", Feature: "DRRC2",
			ValidTime: issued, Value: 313, Unit: "CMS", ScalePeriod: time.Hour, ScaleFunction: "MEAN",
		},
		{
			Orientation: retrieval.Right, Variable: "STREAMFLOW", Feature: "DRRC2", ReferenceTime: &issued,
			ValidTime: issued.Add(3 * time.Hour), Value: 73.5, Member: "1985",
		},
	}

	convey.Convey("Given rows written to an archive file", t, func() {
		var buf bytes.Buffer
		convey.So(archive.Write(&buf, rows), convey.ShouldBeNil)
		path := filepath.Join(t.TempDir(), "values.csv.zst")
		convey.So(os.WriteFile(path, buf.Bytes(), 0o600), convey.ShouldBeNil)

		convey.Convey("When the archive is opened and queried", func() {
			store, err := archive.Open(path)
			convey.So(err, convey.ShouldBeNil)
			defer store.Close()
			left, err := store.Fetch(context.Background(), source.Query{Orientation: retrieval.Left})
			convey.So(err, convey.ShouldBeNil)
			right, err := store.Fetch(context.Background(), source.Query{Orientation: retrieval.Right})
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the rows round-trip", func() {
				convey.So(left, convey.ShouldHaveLength, 1)
				convey.So(left[0].ReferenceTime, convey.ShouldBeNil)
				convey.So(left[0].ScalePeriod, convey.ShouldEqual, time.Hour)
				convey.So(left[0].Unit, convey.ShouldEqual, "CMS")
				convey.So(right, convey.ShouldHaveLength, 1)
				convey.So(right[0].ReferenceTime.Equal(issued), convey.ShouldBeTrue)
				convey.So(right[0].Value, convey.ShouldEqual, 73.5)
				convey.So(right[0].Member, convey.ShouldEqual, "1985")
			})
		})
	})

	convey.Convey("Given an archive with an unparseable value", t, func() {
		var buf bytes.Buffer
		enc, err := zstd.NewWriter(&buf)
		convey.So(err, convey.ShouldBeNil)
		_, err = enc.Write([]byte("orientation,dataset,variable,feature,reference_time,valid_time,member,value,unit," +
			"scale_period,scale_function\nleft,,Q,DRRC2,,2551-03-17T12:00:00Z,,high,,,\n"))
		convey.So(err, convey.ShouldBeNil)
		convey.So(enc.Close(), convey.ShouldBeNil)

		convey.Convey("When it is read", func() {
			_, err := archive.Read(&buf)

			convey.Convey("Then the row is rejected", func() {
				convey.So(errors.Is(err, source.ErrMalformedRow), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a missing archive", t, func() {
		convey.Convey("When it is opened", func() {
			_, err := archive.Open(filepath.Join(t.TempDir(), "missing.csv.zst"))

			convey.Convey("Then opening fails", func() {
				convey.So(errors.Is(err, source.ErrOpenSource), convey.ShouldBeTrue)
			})
		})
	})
}
