package predict_test

import (
	"math"
	"testing"
	"time"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/predict"
	"github.com/okian/stride/internal/domain/sport"
	. "github.com/smartystreets/goconvey/convey"
)

func run(i int, km, minutes float64) sport.Row {
	return sport.Row{
		Index:      i,
		Category:   activity.Run,
		Start:      time.Date(2024, time.May, i+1, 7, 0, 0, 0, time.UTC),
		DistanceKm: km,
		Duration:   minutes,
		Pace:       activity.Float(sport.Round2(minutes / km)),
	}
}

func TestRiegel(t *testing.T) {
	Convey("Given a 10K in 50 minutes", t, func() {
		Convey("Then the same distance predicts the same time", func() {
			So(predict.Riegel(50, 10, 10), ShouldEqual, 50)
		})

		Convey("Then doubling the distance scales by two to the power 1.06", func() {
			So(predict.Riegel(50, 10, 20), ShouldAlmostEqual, 50*math.Pow(2, 1.06), 1e-9)
		})
	})
}

func TestPredict(t *testing.T) {
	Convey("Given runs near 5K and one far from any target", t, func() {
		rows := []sport.Row{
			run(0, 5.0, 25),
			run(1, 5.2, 24),
			run(2, 4.7, 26),
			run(3, 7.5, 40),
		}

		preds := predict.Predict(rows)

		Convey("Then only the 5K target has a prediction", func() {
			So(len(preds), ShouldEqual, 1)
			So(preds[0].From.Name, ShouldEqual, "5K")
		})

		Convey("Then the best runs are ordered by pace", func() {
			top := preds[0].Top
			So(len(top), ShouldEqual, 3)
			So(top[0].Index, ShouldEqual, 1)
			So(top[2].Index, ShouldEqual, 2)
		})

		Convey("Then every other target is estimated with a spread", func() {
			est := preds[0].Estimates
			So(len(est), ShouldEqual, 4)
			So(est[1].Target, ShouldEqual, "10K")
			So(est[1].MinMinutes, ShouldBeLessThanOrEqualTo, est[1].AvgMinutes)
			So(est[1].AvgMinutes, ShouldBeLessThanOrEqualTo, est[1].MaxMinutes)
			So(est[1].MinMinutes, ShouldAlmostEqual, predict.Riegel(24, 5.2, 10), 1e-9)
		})
	})

	Convey("Given a narrower margin and a top of one", t, func() {
		preds := predict.Predict([]sport.Row{run(0, 5.0, 25), run(1, 5.2, 24)},
			predict.WithMargin(0.01), predict.WithTop(1))

		Convey("Then only runs inside the margin count", func() {
			So(len(preds[0].Top), ShouldEqual, 1)
			So(preds[0].Top[0].Index, ShouldEqual, 0)
		})
	})

	Convey("Given no runs", t, func() {
		So(predict.Predict(nil), ShouldBeEmpty)
	})
}
