package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	service "github.com/okian/stride/internal/app"
	"github.com/okian/stride/internal/config"
	"github.com/okian/stride/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

const sampleExport = `Activity ID,Activity Date,Activity Type,Moving Time,Distance,Elevation Gain,Distance
1,"Mar 1, 2024, 8:00:00 AM",Ride,3600,20.0,150,20000
2,"Mar 2, 2024, 8:00:00 AM",Run,1500,5.0,20,5000
`

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("STRIDE_ADDR", ":8080")
			_ = os.Setenv("STRIDE_QUEUE_SIZE", "1000")
			_ = os.Setenv("STRIDE_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("STRIDE_ADDR")
				_ = os.Unsetenv("STRIDE_QUEUE_SIZE")
				_ = os.Unsetenv("STRIDE_WORKER_COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.JobQueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When the routes are mounted on a started service", func() {
			ctx := context.Background()
			cfg := config.New(ctx)
			opts, err := service.OptionsFromConfig(cfg)
			convey.So(err, convey.ShouldBeNil)
			svc := service.New(append(opts, service.WithWorkerCount(1), service.WithLogger(logger.Nop()))...)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			srv := httptest.NewServer(newMux(ctx, cfg, svc, logger.Nop()))
			defer srv.Close()

			convey.Convey("Then the operational endpoints answer", func() {
				for _, path := range []string{"/healthz", "/stats", "/openapi.yaml", "/openapi.json", "/api-docs"} {
					resp, err := http.Get(srv.URL + path)
					convey.So(err, convey.ShouldBeNil)
					_ = resp.Body.Close()
					convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				}
			})

			convey.Convey("Then an export can be analyzed synchronously", func() {
				resp, err := http.Post(srv.URL+"/analyze", "text/csv", strings.NewReader(sampleExport))
				convey.So(err, convey.ShouldBeNil)
				_ = resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestMetricsOptions(t *testing.T) {
	convey.Convey("Given a config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then only the refresh interval is set by default", func() {
			convey.So(metricsOptions(cfg), convey.ShouldHaveLength, 1)
		})

		convey.Convey("Then an instance adds a constant label", func() {
			cfg.MetricsInstance = "a"
			convey.So(metricsOptions(cfg), convey.ShouldHaveLength, 2)
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a configuration listening on a free port", t, func() {
		cfg := config.New(context.Background())
		cfg.Addr = "127.0.0.1:0"
		cfg.WorkerCount = 1

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- run(ctx, cfg, logger.Nop()) }()
			time.Sleep(50 * time.Millisecond)
			cancel()

			convey.Convey("Then run shuts down cleanly", func() {
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(10 * time.Second):
					convey.So("run did not return", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When the updaters run until their context expires", func() {
			svc := service.New(service.WithLogger(logger.Nop()))

			convey.Convey("Then they return without panicking", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
				convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When metrics are refreshed directly", func() {
			svc := service.New(service.WithLogger(logger.Nop()))

			convey.Convey("Then nothing panics, started or not", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
				convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
			})
		})
	})
}
