package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/hydropool/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.Source.Kind, convey.ShouldEqual, config.SourceMemory)
			convey.So(cfg.Breaker.ConsecutiveFailures, convey.ShouldEqual, 5)
			convey.So(cfg.Metrics.Enabled, convey.ShouldBeTrue)
			convey.So(cfg.Metrics.Namespace, convey.ShouldEqual, "hydropool")
			convey.So(cfg.Metrics.Options(), convey.ShouldHaveLength, 3)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When the breaker is converted", func() {
			s := cfg.Breaker.Settings()

			convey.Convey("Then the retrieval settings match", func() {
				convey.So(s.Timeout, convey.ShouldEqual, 30*time.Second)
				convey.So(s.MaxRequests, convey.ShouldEqual, 1)
			})
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("When a postgres source has no dsn", func() {
			cfg.Source.Kind = config.SourcePostgres
			err := cfg.Validate()

			convey.Convey("Then it is invalid", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the metrics namespace is blank", func() {
			cfg.Metrics.Namespace = ""
			err := cfg.Validate()

			convey.Convey("Then it is invalid", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the source kind is unknown", func() {
			cfg.Source.Kind = "oracle"
			err := cfg.Validate()

			convey.Convey("Then it is invalid", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the worker count is zero", func() {
			cfg.WorkerCount = 0

			convey.Convey("Then it is invalid", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
