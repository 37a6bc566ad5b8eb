package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/stride/internal/adapters/cache"
	"github.com/okian/stride/internal/adapters/repository"
	service "github.com/okian/stride/internal/app"
	"github.com/okian/stride/internal/config"
	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func export() activity.RawTable {
	return activity.RawTable{
		Columns: []string{"Activity ID", "Activity Date", "Activity Type", "Moving Time", "Distance", "Distance.1", "Elevation Gain"},
		Rows: [][]string{
			{"1", "Jan 5, 2024, 7:00:00 AM", "Ride", "3600", "20", "20000", "150"},
			{"2", "Jan 6, 2024, 7:00:00 AM", "Run", "1500", "5", "5000", "20"},
			{"3", "Jan 7, 2024, 7:00:00 AM", "Swim", "1200", "1", "1000", "0"},
		},
	}
}

func started(opts ...service.Option) *service.Service {
	svc := service.New(append([]service.Option{service.WithWorkerCount(2), service.WithQueueSize(4)}, opts...)...)
	So(svc.Start(context.Background()), ShouldBeNil)
	Reset(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Stop(ctx)
	})
	return svc
}

func waitFinished(ctx context.Context, svc *service.Service, id string) repository.Run {
	deadline := time.Now().Add(5 * time.Second)
	for {
		run, err := svc.GetRun(ctx, id)
		So(err, ShouldBeNil)
		if run.Status.Finished() || time.Now().After(deadline) {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithWorkerCount(2))
		ctx := context.Background()

		Convey("When it has not been started", func() {
			_, err := svc.GetRun(ctx, "x")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Analyze(ctx, "csv", export(), activity.DateRange{})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
			So(svc.Stop(ctx), ShouldBeNil)
		})

		Convey("When it is started and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.GetStats()["workerCount"], ShouldEqual, 2)

			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Analyze(t *testing.T) {
	Convey("Given a started service with a cache", t, func() {
		svc := started()
		ctx := context.Background()

		Convey("When an export is analyzed twice", func() {
			first, err := svc.Analyze(ctx, "csv", export(), activity.DateRange{})
			So(err, ShouldBeNil)
			second, err := svc.Analyze(ctx, "csv", export(), activity.DateRange{})
			So(err, ShouldBeNil)

			Convey("Then both runs are done and share the digest", func() {
				So(first.ID, ShouldNotEqual, second.ID)
				So(first.Status, ShouldEqual, repository.StatusDone)
				So(first.Digest, ShouldEqual, second.Digest)
				So(*second.Result.Views[activity.Ride].Rows[0].Speed, ShouldEqual, 20.0)
			})

			Convey("Then the second run is served from the cache", func() {
				stats := svc.GetStats()
				So(stats["storedRuns"], ShouldEqual, 2)
				So(stats["cache"].(cache.Stats).Hits, ShouldEqual, 1)
			})
		})

		Convey("When the export fails the schema check", func() {
			raw := activity.RawTable{Columns: []string{"Activity Date"}, Rows: [][]string{{"2024-01-01"}}}
			run, err := svc.Analyze(ctx, "csv", raw, activity.DateRange{})

			Convey("Then the error is returned and the failed run kept", func() {
				So(errors.Is(err, activity.ErrSchema), ShouldBeTrue)
				So(run.Status, ShouldEqual, repository.StatusFailed)
				So(run.Outcome, ShouldEqual, "schema_error")

				stored, err := svc.GetRun(ctx, run.ID)
				So(err, ShouldBeNil)
				So(stored.Error, ShouldNotBeEmpty)
			})
		})
	})
}

func TestService_Submit(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := started()
		ctx := context.Background()

		Convey("When an export is submitted", func() {
			run, err := svc.Submit(ctx, "csv", export(), activity.DateRange{})
			So(err, ShouldBeNil)
			So(run.Status, ShouldEqual, repository.StatusQueued)

			Convey("Then a worker finishes it", func() {
				done := waitFinished(ctx, svc, run.ID)
				So(done.Status, ShouldEqual, repository.StatusDone)
				So(done.Result, ShouldNotBeNil)
				So(done.Result.Load.Points, ShouldHaveLength, 3)

				runs, err := svc.ListRuns(ctx, 10)
				So(err, ShouldBeNil)
				So(runs, ShouldHaveLength, 1)
			})
		})

		Convey("When the range runs backwards", func() {
			rng, err := activity.ParseDateRange("2024-02-01", "2024-01-01")
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, "csv", export(), rng)

			Convey("Then it is rejected before queueing", func() {
				So(errors.Is(err, activity.ErrDateRange), ShouldBeTrue)
				So(svc.GetStats()["storedRuns"], ShouldEqual, 0)
			})
		})
	})
}

func TestService_SQLite(t *testing.T) {
	Convey("Given a service storing runs in SQLite", t, func() {
		path := filepath.Join(t.TempDir(), "runs.db")
		svc := started(service.WithSQLite(path), service.WithCache(0, 0))
		ctx := context.Background()

		Convey("When an export is analyzed", func() {
			run, err := svc.Analyze(ctx, "csv", export(), activity.DateRange{})
			So(err, ShouldBeNil)

			Convey("Then the run is read back from the database", func() {
				got, err := svc.GetRun(ctx, run.ID)
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, repository.StatusDone)
				So(*got.Result.Views[activity.Run].Rows[0].Pace, ShouldEqual, 5.0)
				So(svc.GetStats()["store"], ShouldEqual, service.DriverSQLite)
				So(svc.GetStats()["cache"], ShouldBeNil)
			})
		})
	})
}

func TestOptionsFromConfig(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		cfg := config.New(context.Background())

		Convey("Then it maps onto service options", func() {
			opts, err := service.OptionsFromConfig(cfg)
			So(err, ShouldBeNil)
			So(opts, ShouldNotBeEmpty)
			So(service.New(opts...), ShouldNotBeNil)
		})

		Convey("Then the sqlite driver adds a store option", func() {
			base, err := service.OptionsFromConfig(cfg)
			So(err, ShouldBeNil)
			cfg.StoreDriver = "sqlite"
			opts, err := service.OptionsFromConfig(cfg)
			So(err, ShouldBeNil)
			So(len(opts), ShouldEqual, len(base)+1)
		})

		Convey("Then a malformed default start is rejected", func() {
			cfg.DefaultStart = "someday"
			_, err := service.OptionsFromConfig(cfg)
			So(err, ShouldNotBeNil)
		})
	})
}
