package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/okian/hydropool/internal/adapters/source"
	"github.com/okian/hydropool/internal/adapters/source/postgres"
	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/retrieval"
)

func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("hydropool"),
		tcpostgres.WithUsername("hydropool"),
		tcpostgres.WithPassword("hydropool"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	convey.Convey("Given a postgres store holding one forecast", t, func() {
		store, err := postgres.Open(ctx, dsn)
		convey.So(err, convey.ShouldBeNil)
		defer store.Close()

		issued := time.Date(2051, 3, 17, 12, 0, 0, 0, time.UTC)
		var rows []source.Row
		for i, v := range []float64{73, 79, 83} {
			rows = append(rows, source.Row{
				Orientation: retrieval.Right, Variable: "STREAMFLOW", Feature: "DRRC2", ReferenceTime: &issued,
				ValidTime: issued.Add(time.Duration(3*(i+1)) * time.Hour), Value: v,
				ScalePeriod: 3 * time.Hour, ScaleFunction: "MEAN",
			})
		}
		convey.So(store.Insert(ctx, rows...), convey.ShouldBeNil)

		convey.Convey("When the forecast is read through a factory", func() {
			f := source.NewFactory(store, source.Variables{Right: "STREAMFLOW"})
			series, err := f.Right([]feature.Feature{feature.Of("DRRC2")}, nil).Get(ctx)

			convey.Convey("Then one series with its issue time is assembled", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(series, convey.ShouldHaveLength, 1)
				got, ok := series[0].Metadata().ReferenceTime(timeseries.T0)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(got.Equal(issued), convey.ShouldBeTrue)
				convey.So(series[0].Len(), convey.ShouldEqual, 3)
				convey.So(series[0].At(2).Value, convey.ShouldEqual, 83)
			})
		})
	})
}
