package load_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/load"
	. "github.com/smartystreets/goconvey/convey"
)

var origin = time.Date(2024, time.January, 1, 7, 0, 0, 0, time.UTC)

func daily(n int, seconds float64) []activity.Activity {
	rows := make([]activity.Activity, n)
	for i := range rows {
		rows[i] = activity.Activity{Index: i, Category: activity.Run, Start: origin.AddDate(0, 0, i), MovingTime: seconds}
	}
	return rows
}

func TestCompute(t *testing.T) {
	Convey("Given a constant effort every day", t, func() {
		rows := daily(400, 3600)

		Convey("When computing the load series", func() {
			s, err := load.Compute(rows)

			Convey("Then fitness and fatigue converge to the effort and form to zero", func() {
				So(err, ShouldBeNil)
				last, ok := s.Last()
				So(ok, ShouldBeTrue)
				So(last.CTL, ShouldAlmostEqual, 1.0, 1e-9)
				So(last.ATL, ShouldAlmostEqual, 1.0, 1e-9)
				So(last.TSB, ShouldAlmostEqual, 0, 1e-9)
			})
		})
	})

	Convey("Given two activities", t, func() {
		rows := daily(2, 3600)
		rows[1].MovingTime = 7200
		rows[1].Intensity = activity.Float(1.5)

		s, err := load.Compute(rows)

		Convey("Then the first point seeds both averages", func() {
			So(err, ShouldBeNil)
			So(s.Points[0].CTL, ShouldEqual, 1)
			So(s.Points[0].ATL, ShouldEqual, 1)
		})

		Convey("Then the recurrence uses alpha of two over span plus one", func() {
			p := s.Points[1]
			So(p.Effort, ShouldEqual, 3)
			So(p.CTL, ShouldAlmostEqual, 1+2.0/43*2, 1e-12)
			So(p.ATL, ShouldAlmostEqual, 1+2.0/8*2, 1e-12)
			So(p.TSB, ShouldAlmostEqual, p.CTL-p.ATL, 1e-12)
			So(p.Form, ShouldEqual, "Slightly fatigued")
		})
	})

	Convey("Given custom spans and neutral intensity", t, func() {
		rows := daily(2, 3600)
		s, err := load.Compute(rows, load.WithSpans(3, 1), load.WithNeutralIntensity(2))

		Convey("Then the options are applied", func() {
			So(err, ShouldBeNil)
			So(s.Points[0].Effort, ShouldEqual, 2)
			So(s.Points[1].ATL, ShouldEqual, 2)
		})
	})

	Convey("Given rows out of start order", t, func() {
		rows := daily(3, 3600)
		rows[0], rows[2] = rows[2], rows[0]

		Convey("Then Compute refuses them", func() {
			_, err := load.Compute(rows)
			So(errors.Is(err, load.ErrNotSorted), ShouldBeTrue)
		})

		Convey("Then sorting first makes them acceptable", func() {
			sorted := load.SortByStart(rows)
			So(sorted[0].Index, ShouldEqual, 0)
			So(rows[0].Index, ShouldEqual, 2)
			_, err := load.Compute(sorted)
			So(err, ShouldBeNil)
		})
	})

	Convey("Given a row with an invalid moving time", t, func() {
		rows := daily(3, 3600)
		rows[1].MovingTime = math.NaN()
		s, err := load.Compute(rows)

		Convey("Then it is skipped and recorded", func() {
			So(err, ShouldBeNil)
			So(len(s.Points), ShouldEqual, 2)
			So(len(s.Errors), ShouldEqual, 1)
			So(errors.Is(s.Err(), activity.ErrRowComputation), ShouldBeTrue)
		})
	})
}

func TestFormLabel(t *testing.T) {
	Convey("Given TSB values across the bands", t, func() {
		So(load.FormLabel(30), ShouldEqual, "Very fresh")
		So(load.FormLabel(15), ShouldEqual, "Fresh")
		So(load.FormLabel(5), ShouldEqual, "Neutral")
		So(load.FormLabel(0), ShouldEqual, "Slightly fatigued")
		So(load.FormLabel(-20), ShouldEqual, "Tired")
		So(load.FormLabel(-40), ShouldEqual, "Very fatigued")
	})
}
