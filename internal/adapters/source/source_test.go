package source_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/stride/internal/adapters/source"
	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestReadCSV(t *testing.T) {
	ctx := context.Background()

	Convey("Given a UTF-8 export with a duplicated distance column", t, func() {
		in := "Activity ID,Activity Type,Distance,Distance\n1,Run,5.00,5000\n2,Ride,20.0,20000\n"
		raw, err := source.ReadCSV(ctx, strings.NewReader(in))

		Convey("Then the header is disambiguated and rows are kept", func() {
			So(err, ShouldBeNil)
			So(raw.Columns, ShouldResemble, []string{"Activity ID", "Activity Type", "Distance", "Distance.1"})
			So(len(raw.Rows), ShouldEqual, 2)
			So(raw.Rows[1][3], ShouldEqual, "20000")
		})
	})

	Convey("Given a Latin-1 export", t, func() {
		in := []byte("Activity Name,Activity Type\nCaf\xe9 ride,Ride\n")
		raw, err := source.ReadCSV(ctx, bytes.NewReader(in))

		Convey("Then cells are decoded to UTF-8", func() {
			So(err, ShouldBeNil)
			So(raw.Rows[0][0], ShouldEqual, "Café ride")
		})
	})

	Convey("Given an export with a malformed line", t, func() {
		in := "Activity ID,Activity Type\n1,Run\n2,Ride,extra\n3,Swim\n"
		raw, err := source.ReadCSV(ctx, strings.NewReader(in))

		Convey("Then the bad line is skipped", func() {
			So(err, ShouldBeNil)
			So(len(raw.Rows), ShouldEqual, 2)
			So(raw.Rows[1][0], ShouldEqual, "3")
		})
	})

	Convey("Given an empty input", t, func() {
		_, err := source.ReadCSV(ctx, strings.NewReader(""))

		Convey("Then ErrEmptyInput is returned", func() {
			So(errors.Is(err, source.ErrEmptyInput), ShouldBeTrue)
		})
	})
}

func TestMergeAndWrite(t *testing.T) {
	Convey("Given two tables with different columns", t, func() {
		a := activity.RawTable{Columns: []string{"Activity ID", "Activity Type"}, Rows: [][]string{{"1", "Run"}}}
		b := activity.RawTable{Columns: []string{"Activity Type", "Distance.1"}, Rows: [][]string{{"Ride", "20000"}}}
		m := source.Merge(a, b)

		Convey("Then rows are laid out under the union of columns", func() {
			So(m.Columns, ShouldResemble, []string{"Activity ID", "Activity Type", "Distance.1"})
			So(m.Rows, ShouldResemble, [][]string{{"1", "Run", ""}, {"", "Ride", "20000"}})
		})

		Convey("When written as CSV and read back", func() {
			var buf bytes.Buffer
			So(source.WriteCSV(&buf, m), ShouldBeNil)

			Convey("Then the duplicate distance keeps its export name", func() {
				So(strings.SplitN(buf.String(), "\n", 2)[0], ShouldEqual, "Activity ID,Activity Type,Distance")
				back, err := source.ReadCSV(context.Background(), &buf)
				So(err, ShouldBeNil)
				So(back.Rows, ShouldResemble, m.Rows)
			})
		})
	})
}

func TestReadFile(t *testing.T) {
	ctx := context.Background()

	Convey("Given files on disk", t, func() {
		dir := t.TempDir()

		Convey("When the extension is unknown", func() {
			p := filepath.Join(dir, "export.xlsx")
			So(os.WriteFile(p, []byte("x"), 0o600), ShouldBeNil)
			_, err := source.ReadFile(ctx, p)

			Convey("Then the format is rejected", func() {
				So(errors.Is(err, source.ErrUnsupportedFormat), ShouldBeTrue)
			})
		})

		Convey("When a CSV file is read", func() {
			p := filepath.Join(dir, "export.csv")
			So(os.WriteFile(p, []byte("Activity Type\nRun\n"), 0o600), ShouldBeNil)
			raw, err := source.ReadFile(ctx, p)

			Convey("Then it is parsed", func() {
				So(err, ShouldBeNil)
				So(len(raw.Rows), ShouldEqual, 1)
			})
		})

		Convey("When a FIT file is corrupt", func() {
			p := filepath.Join(dir, "ride.fit")
			So(os.WriteFile(p, []byte("not a fit file"), 0o600), ShouldBeNil)
			_, err := source.ReadFile(ctx, p)

			Convey("Then decoding fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestStravaClient(t *testing.T) {
	ctx := context.Background()

	Convey("Given a paginated activity listing", t, func() {
		var auth []string
		var pages, paths []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = append(auth, r.Header.Get("Authorization"))
			pages = append(pages, r.URL.Query().Get("page"))
			paths = append(paths, r.URL.Path)
			switch r.URL.Query().Get("page") {
			case "1":
				fmt.Fprint(w, `[{"id":1,"name":"Morning Run","type":"Run","start_date_local":"2024-01-05T07:30:00Z","moving_time":1500,"distance":5000,"total_elevation_gain":12,"average_heartrate":150.5},
				               {"id":2,"name":"Spin","type":"VirtualRide","start_date_local":"2024-01-06T18:00:00Z","moving_time":3600,"distance":30000}]`)
			case "2":
				fmt.Fprint(w, `[{"id":2,"name":"Spin","type":"VirtualRide","start_date_local":"2024-01-06T18:00:00Z","moving_time":3600,"distance":30000}]`)
			default:
				fmt.Fprint(w, `[]`)
			}
		}))
		defer srv.Close()

		c := source.NewStravaClient("secret", source.WithBaseURL(srv.URL), source.WithPaging(2, 5))
		raw, err := c.Fetch(ctx)

		Convey("Then pages are requested with the bearer token until one is empty", func() {
			So(err, ShouldBeNil)
			So(pages, ShouldResemble, []string{"1", "2", "3"})
			So(auth[0], ShouldEqual, "Bearer secret")
			So(paths[0], ShouldEqual, "/athlete/activities")
		})

		Convey("Then repeated activities are dropped", func() {
			So(len(raw.Rows), ShouldEqual, 2)
		})

		Convey("Then the rows use export columns", func() {
			idx := raw.Index()
			So(raw.Cell(raw.Rows[0], idx, activity.ColType), ShouldEqual, "Run")
			So(raw.Cell(raw.Rows[0], idx, activity.ColDistanceDup), ShouldEqual, "5000")
			So(raw.Cell(raw.Rows[0], idx, activity.ColAvgHeartRate), ShouldEqual, "150.5")
			So(raw.Cell(raw.Rows[1], idx, activity.ColAvgHeartRate), ShouldEqual, "")
		})
	})

	Convey("Given a shared deduper and a listing that fails on page two", t, func() {
		fail := true
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("page") {
			case "1":
				fmt.Fprint(w, `[{"id":7,"name":"Lunch Run","type":"Run","start_date_local":"2024-02-01T12:00:00Z","moving_time":1800,"distance":6000}]`)
			case "2":
				if fail {
					http.Error(w, "unavailable", http.StatusServiceUnavailable)
					return
				}
				fmt.Fprint(w, `[]`)
			default:
				fmt.Fprint(w, `[]`)
			}
		}))
		defer srv.Close()

		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		c := source.NewStravaClient("secret", source.WithBaseURL(srv.URL), source.WithPaging(1, 5), source.WithDeduper(d))
		_, err := c.Fetch(ctx)

		Convey("Then the failed fetch leaves nothing recorded", func() {
			So(errors.Is(err, source.ErrStravaStatus), ShouldBeTrue)
			So(d.Size(), ShouldEqual, 0)
		})

		Convey("Then a retry returns the activities of the first page", func() {
			fail = false
			raw, err := c.Fetch(ctx)
			So(err, ShouldBeNil)
			So(len(raw.Rows), ShouldEqual, 1)
			So(raw.Cell(raw.Rows[0], raw.Index(), activity.ColID), ShouldEqual, "7")
		})
	})

	Convey("Given a listing that rejects the token", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"message":"Authorization Error"}`, http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := source.NewStravaClient("expired", source.WithBaseURL(srv.URL)).Fetch(ctx)

		Convey("Then ErrStravaStatus is returned", func() {
			So(errors.Is(err, source.ErrStravaStatus), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "401")
		})
	})
}
