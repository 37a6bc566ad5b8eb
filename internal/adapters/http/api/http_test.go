package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/stride/internal/adapters/http/api"
	"github.com/okian/stride/internal/adapters/mq/queue"
	"github.com/okian/stride/internal/adapters/repository"
	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/pipeline"
)

const exportCSV = `Activity ID,Activity Date,Activity Name,Activity Type,Moving Time,Distance,Elevation Gain,Distance
1,"Jan 5, 2024, 7:00:00 AM",Morning Ride,Ride,3600,20,150,20000
2,"Jan 6, 2024, 7:00:00 AM",Easy Run,Run,1500,5,20,5000
3,"Jan 7, 2024, 7:00:00 AM",Pool,Swim,1200,1,0,1000
`

// fakeDeps runs the pipeline inline and keeps runs in a memory store.
type fakeDeps struct {
	mu    sync.Mutex
	store *repository.MemoryStore
	full  bool
	seq   int
}

func (f *fakeDeps) nextID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("run-%d", f.seq)
}

func (f *fakeDeps) Analyze(ctx context.Context, src string, raw activity.RawTable, rng activity.DateRange) (repository.Run, error) {
	res, err := pipeline.Run(ctx, raw, pipeline.Options{Range: rng})
	if err != nil {
		return repository.Run{}, err
	}
	now := time.Now().UTC()
	run := repository.Run{ID: f.nextID(), Status: repository.StatusDone, Source: src, Outcome: "ok", Result: &res, CreatedAt: now, UpdatedAt: now}
	return run, f.store.Save(ctx, run)
}

func (f *fakeDeps) Submit(ctx context.Context, src string, _ activity.RawTable, _ activity.DateRange) (repository.Run, error) {
	if f.full {
		return repository.Run{}, queue.ErrFull
	}
	now := time.Now().UTC()
	run := repository.Run{ID: f.nextID(), Status: repository.StatusQueued, Source: src, CreatedAt: now, UpdatedAt: now}
	return run, f.store.Save(ctx, run)
}

func (f *fakeDeps) GetRun(ctx context.Context, id string) (repository.Run, error) {
	return f.store.Get(ctx, id)
}

func (f *fakeDeps) ListRuns(ctx context.Context, n int) ([]repository.Run, error) {
	return f.store.List(ctx, n)
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *fakeDeps) *http.ServeMux {
	mux := http.NewServeMux()
	stats := &mockStatsProvider{stats: map[string]interface{}{"runs": 0}}
	api.NewServer(deps, stats, api.WithMaxUploadBytes(1<<20)).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestAnalyze(t *testing.T) {
	Convey("Given a server backed by an inline pipeline", t, func() {
		deps := &fakeDeps{store: repository.NewMemoryStore()}
		mux := newMux(deps)

		Convey("When a valid export is analyzed", func() {
			w := do(mux, http.MethodPost, "/analyze", exportCSV)

			Convey("Then the run summary lists every sport", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
				body := decode(w)
				So(body["status"], ShouldEqual, "done")
				summary := body["summary"].(map[string]any)
				So(summary["sports"], ShouldHaveLength, 3)
			})

			id := decode(w)["id"].(string)

			Convey("Then the ride view carries the speed", func() {
				w := do(mux, http.MethodGet, "/runs/"+id+"/views/ride", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				rows := decode(w)["rows"].([]any)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].(map[string]any)["speed_kmh"], ShouldEqual, 20.0)
			})

			Convey("Then series, rankings, load and predictions are served", func() {
				w := do(mux, http.MethodGet, "/runs/"+id+"/series?sport=run&period=week", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["points"], ShouldHaveLength, 1)

				w = do(mux, http.MethodGet, "/runs/"+id+"/rankings?sport=Run&by=fastest&n=1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				rows := decode(w)["rows"].([]any)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].(map[string]any)["pace"], ShouldEqual, 5.0)

				So(do(mux, http.MethodGet, "/runs/"+id+"/load", "").Code, ShouldEqual, http.StatusOK)
				So(do(mux, http.MethodGet, "/runs/"+id+"/predictions", "").Code, ShouldEqual, http.StatusOK)
			})

			Convey("Then bad query parameters are rejected", func() {
				So(do(mux, http.MethodGet, "/runs/"+id+"/series?sport=run&period=year", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(mux, http.MethodGet, "/runs/"+id+"/rankings?sport=run&by=slowest", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(mux, http.MethodGet, "/runs/"+id+"/rankings?sport=run&n=0", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(mux, http.MethodGet, "/runs/"+id+"/views/curling", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(mux, http.MethodGet, "/runs/"+id+"/views/padel", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the export lacks the activity type column", func() {
			w := do(mux, http.MethodPost, "/analyze", "Activity Date,Distance\n2024-01-01,5\n")

			Convey("Then the request is unprocessable", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(decode(w)["code"], ShouldEqual, "schema_error")
			})
		})

		Convey("When the range runs backwards", func() {
			w := do(mux, http.MethodPost, "/analyze?from=2024-05-01&to=2024-01-01", exportCSV)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(decode(w)["code"], ShouldEqual, "date_range_error")
		})

		Convey("When the range excludes every activity", func() {
			w := do(mux, http.MethodPost, "/analyze?from=2023-01-01&to=2023-01-31", exportCSV)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(decode(w)["code"], ShouldEqual, "empty_result")
		})

		Convey("When the request is malformed", func() {
			So(do(mux, http.MethodPost, "/analyze?from=May", exportCSV).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/analyze", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/analyze?format=gpx", exportCSV).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestSubmit(t *testing.T) {
	Convey("Given a server with a queue", t, func() {
		deps := &fakeDeps{store: repository.NewMemoryStore()}
		mux := newMux(deps)

		Convey("When an export is submitted", func() {
			w := do(mux, http.MethodPost, "/runs", exportCSV)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			body := decode(w)
			So(body["status"], ShouldEqual, "queued")
			id := body["id"].(string)

			Convey("Then the run can be looked up but has no result yet", func() {
				w := do(mux, http.MethodGet, "/runs/"+id, "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["status"], ShouldEqual, "queued")

				w = do(mux, http.MethodGet, "/runs/"+id+"/load", "")
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode(w)["code"], ShouldEqual, "not_ready")
			})

			Convey("Then it is listed", func() {
				w := do(mux, http.MethodGet, "/runs?limit=10", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var runs []map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &runs), ShouldBeNil)
				So(runs, ShouldHaveLength, 1)
				So(do(mux, http.MethodGet, "/runs?limit=ten", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(mux, http.MethodGet, "/runs?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the queue is full", func() {
			deps.full = true
			w := do(mux, http.MethodPost, "/runs", exportCSV)

			Convey("Then the server applies backpressure", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(decode(w)["code"], ShouldEqual, "backpressure")
			})
		})

		Convey("When the run is unknown", func() {
			w := do(mux, http.MethodGet, "/runs/nope", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given a registered server", t, func() {
		mux := newMux(&fakeDeps{store: repository.NewMemoryStore()})

		Convey("Then /healthz serves metrics and /stats serves JSON", func() {
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Cache-Control"), ShouldEqual, "no-store")
			body := decode(w)
			So(body["runs"], ShouldEqual, 0.0)
			So(body["time"], ShouldNotBeEmpty)
		})

		Convey("Then every route is listed once", func() {
			routes := api.Routes()
			So(routes, ShouldContain, "POST /analyze")
			So(routes, ShouldContain, "GET /runs/{id}/predictions")
			seen := map[string]bool{}
			for _, r := range routes {
				So(seen[r], ShouldBeFalse)
				seen[r] = true
			}
		})

		Convey("Then a nil mux panics", func() {
			So(func() { api.NewServer(nil, nil).Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}

func TestUploadLimit(t *testing.T) {
	Convey("Given a server with a tiny upload limit", t, func() {
		mux := http.NewServeMux()
		deps := &fakeDeps{store: repository.NewMemoryStore()}
		api.NewServer(deps, nil, api.WithMaxUploadBytes(32)).Register(context.Background(), mux)

		Convey("When a larger export is posted", func() {
			w := do(mux, http.MethodPost, "/analyze", exportCSV)

			Convey("Then the body is refused as too large", func() {
				So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
				So(decode(w)["code"], ShouldEqual, "too_large")
			})
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given tagged errors", t, func() {
		cause := errors.New("boom")

		Convey("Then kind and cause both match", func() {
			err := api.WrapKind("api.op", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: boom")
		})

		Convey("Then nil stays nil", func() {
			So(api.Wrap("api.op", nil), ShouldBeNil)
			So(api.WrapKind("api.op", api.ErrBadRequest, nil), ShouldBeNil)
		})

		Convey("Then NewKind carries only the kind", func() {
			err := api.NewKind("api.op", api.ErrBackpressure)
			So(errors.Is(err, api.ErrBackpressure), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: backpressure")
		})
	})
}
