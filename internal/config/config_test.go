package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/stride/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.JobQueueSize, convey.ShouldEqual, 1_024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
			convey.So(cfg.HRFillWindow, convey.ShouldEqual, 5)
			convey.So(cfg.RollingWindow, convey.ShouldEqual, 3)
			convey.So(cfg.CTLSpan, convey.ShouldEqual, 42)
			convey.So(cfg.ATLSpan, convey.ShouldEqual, 7)
			convey.So(cfg.NeutralIntensity, convey.ShouldEqual, 1.0)
			convey.So(cfg.CacheTTL(), convey.ShouldEqual, time.Hour)
			convey.So(cfg.MetricsRefresh(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the default start date parses", func() {
			start, err := cfg.DefaultStartDate()
			convey.So(err, convey.ShouldBeNil)
			convey.So(start, convey.ShouldEqual, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("When the store driver is unknown", func() {
			cfg.StoreDriver = "redis"
			err := cfg.Validate()

			convey.Convey("Then it should be rejected as invalid", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the sqlite driver has no path", func() {
			cfg.StoreDriver = "sqlite"
			cfg.SQLitePath = " "
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a window is zero", func() {
			cfg.HRFillWindow = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the neutral intensity is not positive", func() {
			cfg.NeutralIntensity = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the metrics refresh is zero", func() {
			cfg.MetricsRefreshSeconds = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the default start is malformed", func() {
			cfg.DefaultStart = "01/01/2020"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
