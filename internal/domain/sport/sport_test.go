package sport_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/sport"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2024, time.April, 1, 8, 0, 0, 0, time.UTC)

func act(i int, c activity.Category, meters, seconds float64) activity.Activity {
	return activity.Activity{Index: i, Category: c, Start: base.Add(time.Duration(i) * time.Hour), Distance: meters, MovingTime: seconds}
}

func TestTransform(t *testing.T) {
	Convey("Given one activity of each endurance sport", t, func() {
		ride := act(0, activity.Ride, 20000, 3600)
		ride.ElevationGain = 250
		ride.DirtDistance = activity.Float(25000)
		tbl := activity.Table{Rows: []activity.Activity{
			ride,
			act(1, activity.Run, 10000, 3000),
			act(2, activity.Swim, 1500, 1350),
			act(3, activity.WeightTraining, 0, 2700),
		}}

		views := sport.Transform(tbl)

		Convey("Then rides report speed in km/h", func() {
			r := views[activity.Ride].Rows[0]
			So(*r.Speed, ShouldEqual, 20.0)
			So(r.Pace, ShouldBeNil)
			So(r.Duration, ShouldEqual, 1)
			So(*r.ElevationPerKm, ShouldEqual, 12.5)
		})

		Convey("Then the dirt share is clipped to the total distance", func() {
			r := views[activity.Ride].Rows[0]
			So(*r.DirtKm, ShouldEqual, 20)
			So(*r.PavedKm, ShouldEqual, 0)
		})

		Convey("Then runs report pace in min/km", func() {
			r := views[activity.Run].Rows[0]
			So(*r.Pace, ShouldEqual, 5.00)
			So(*r.Metric(), ShouldEqual, 5.00)
		})

		Convey("Then swims report pace in min/100m", func() {
			So(*views[activity.Swim].Rows[0].Pace, ShouldEqual, 1.5)
		})

		Convey("Then only formula categories get a view", func() {
			_, ok := views[activity.WeightTraining]
			So(ok, ShouldBeFalse)
			So(len(views.Ordered()), ShouldEqual, 3)
		})

		Convey("Then every view holds only its own category", func() {
			for c, v := range views {
				for _, r := range v.Rows {
					So(r.Category, ShouldEqual, c)
				}
			}
		})

		Convey("Then the input table is untouched", func() {
			So(tbl.Rows[0].Distance, ShouldEqual, 20000)
		})
	})

	Convey("Given activities that cannot produce a ratio", t, func() {
		tbl := activity.Table{Rows: []activity.Activity{
			act(0, activity.Run, 0, 1200),
			act(1, activity.Run, 5000, 0),
			act(2, activity.Ride, 0, 3600),
			act(3, activity.Run, 5000, 1500),
		}}

		views := sport.Transform(tbl)
		runs := views[activity.Run]

		Convey("Then the rows stay with the metric masked", func() {
			So(len(runs.Rows), ShouldEqual, 3)
			So(runs.Rows[0].Pace, ShouldBeNil)
			So(runs.Rows[1].Pace, ShouldBeNil)
			So(*runs.Rows[2].Pace, ShouldEqual, 5.00)
		})

		Convey("Then each masked metric is recorded as a row error", func() {
			So(len(runs.Errors), ShouldEqual, 2)
			So(runs.Errors[0].Index, ShouldEqual, 0)
			So(errors.Is(runs.Err(), activity.ErrRowComputation), ShouldBeTrue)

			ride := views[activity.Ride]
			So(len(ride.Errors), ShouldEqual, 2)
			So(ride.Rows[0].Speed, ShouldBeNil)
			So(ride.Rows[0].ElevationPerKm, ShouldBeNil)
			So(views.ErrorCount(), ShouldEqual, 4)
		})

		Convey("Then a clean view has no error", func() {
			So(views[activity.Swim].Err(), ShouldBeNil)
		})
	})

	Convey("Given runs with missing heart rate out of start order", t, func() {
		rows := []activity.Activity{
			act(3, activity.Run, 5000, 1500),
			act(0, activity.Run, 5000, 1500),
			act(1, activity.Run, 5000, 1500),
			act(2, activity.Run, 5000, 1500),
			act(4, activity.Run, 5000, 1500),
		}
		rows[1].AvgHeartRate = activity.Float(70)
		rows[3].AvgHeartRate = activity.Float(74)
		rows[4].AvgHeartRate = activity.Float(78)

		views := sport.Transform(activity.Table{Rows: rows}, sport.WithHeartRateWindow(5))
		runs := views[activity.Run].Rows

		Convey("Then the view is ordered by start and heart rate is filled", func() {
			So(runs[0].Index, ShouldEqual, 0)
			So(*runs[1].HeartRate, ShouldEqual, 70)
			So(*runs[3].HeartRate, ShouldAlmostEqual, 71.33, 0.01)
			So(*runs[4].HeartRate, ShouldEqual, 78)
		})
	})
}

func TestRound2(t *testing.T) {
	Convey("Given values with more than two decimals", t, func() {
		So(sport.Round2(5.004), ShouldEqual, 5.0)
		So(sport.Round2(1.23456), ShouldEqual, 1.23)
	})
}
