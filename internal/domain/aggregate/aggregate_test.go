package aggregate_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/aggregate"
	"github.com/okian/stride/internal/domain/calendar"
	"github.com/okian/stride/internal/domain/sport"
	. "github.com/smartystreets/goconvey/convey"
)

func row(i int, c activity.Category, start time.Time, km, seconds float64) sport.Row {
	r := sport.Row{
		Index:      i,
		Category:   c,
		Start:      start,
		Calendar:   calendar.Derive(start),
		DistanceKm: km,
		MovingTime: seconds,
	}
	return r
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 8, 0, 0, 0, time.UTC)
}

func TestSeries(t *testing.T) {
	Convey("Given runs in January and April only", t, func() {
		rows := []sport.Row{
			row(0, activity.Run, date(2024, time.January, 3), 10, 3600),
			row(1, activity.Run, date(2024, time.January, 20), 20, 7200),
			row(2, activity.Run, date(2024, time.April, 2), 6, 1800),
			row(3, activity.Ride, date(2024, time.March, 2), 50, 7200),
		}

		Convey("When building the monthly run series", func() {
			s := aggregate.Series(rows, aggregate.SeriesOptions{Period: calendar.Monthly, Category: activity.Run})

			Convey("Then idle months appear as zeros", func() {
				So(len(s), ShouldEqual, 4)
				So(s[1].Bucket.String(), ShouldEqual, "2024-02")
				So(s[1].Count, ShouldEqual, 0)
				So(s[2].DistanceKm, ShouldEqual, 0)
			})

			Convey("Then sums and means are per bucket", func() {
				So(s[0].Count, ShouldEqual, 2)
				So(s[0].DistanceKm, ShouldEqual, 30)
				So(s[0].Hours, ShouldEqual, 3)
				So(s[0].MeanDistanceKm, ShouldEqual, 15)
			})

			Convey("Then cumulative sums run over the filled grid", func() {
				So(s[2].CumDistanceKm, ShouldEqual, 30)
				So(s[3].CumDistanceKm, ShouldEqual, 36)
			})

			Convey("Then the rolling mean counts idle months", func() {
				So(s[0].RollDistanceKm, ShouldEqual, 30)
				So(s[1].RollDistanceKm, ShouldEqual, 15)
				So(s[2].RollDistanceKm, ShouldEqual, 10)
				So(s[3].RollDistanceKm, ShouldEqual, 2)
			})
		})

		Convey("When building a weekly series across the year boundary", func() {
			s := aggregate.Series([]sport.Row{
				row(0, activity.Run, date(2024, time.December, 23), 5, 1800),
				row(1, activity.Run, date(2025, time.January, 8), 5, 1800),
			}, aggregate.SeriesOptions{Period: calendar.Weekly})

			Convey("Then weeks follow the ISO week-year", func() {
				So(len(s), ShouldEqual, 3)
				So(s[0].Bucket.String(), ShouldEqual, "2024-W52")
				So(s[1].Bucket.String(), ShouldEqual, "2025-W01")
				So(s[2].Bucket.String(), ShouldEqual, "2025-W02")
			})
		})

		Convey("When there are no rows", func() {
			So(aggregate.Series(nil, aggregate.SeriesOptions{}), ShouldBeEmpty)
		})
	})
}

func TestByCategory(t *testing.T) {
	Convey("Given activities of two categories", t, func() {
		rows := []activity.Activity{
			{Category: activity.Run, Distance: 5000, MovingTime: 1800},
			{Category: activity.Ride, Distance: 40000, MovingTime: 7200},
			{Category: activity.Run, Distance: 15000, MovingTime: 5400},
		}
		totals := aggregate.ByCategory(rows)

		Convey("Then totals follow display order", func() {
			So(len(totals), ShouldEqual, 2)
			So(totals[0].Category, ShouldEqual, activity.Ride)
			So(totals[1].Count, ShouldEqual, 2)
			So(totals[1].DistanceKm, ShouldEqual, 20)
			So(totals[1].MeanDistanceKm, ShouldEqual, 10)
			So(totals[1].MeanHours, ShouldEqual, 1)
		})
	})
}

func TestTopN(t *testing.T) {
	Convey("Given runs with tied distances", t, func() {
		day := date(2024, time.May, 1)
		rows := []sport.Row{
			row(0, activity.Run, day, 10, 3000),
			row(1, activity.Run, day, 21, 6300),
			row(2, activity.Run, day, 10, 2700),
			row(3, activity.Run, day, 5, 1200),
		}
		rows[0].Pace = activity.Float(5.0)
		rows[1].Pace = activity.Float(5.0)
		rows[2].Pace = activity.Float(4.5)
		rows[0].ElevationGain = 120

		Convey("When ranking the longest", func() {
			top := aggregate.TopN(rows, aggregate.Longest, 3)

			Convey("Then ties keep their original order", func() {
				So(top[0].Index, ShouldEqual, 1)
				So(top[1].Index, ShouldEqual, 0)
				So(top[2].Index, ShouldEqual, 2)
			})
		})

		Convey("When ranking the fastest runs", func() {
			top := aggregate.TopN(rows, aggregate.Fastest, 5)

			Convey("Then lower pace wins and masked rows are left out", func() {
				So(len(top), ShouldEqual, 3)
				So(top[0].Index, ShouldEqual, 2)
				So(top[1].Index, ShouldEqual, 0)
				So(top[2].Index, ShouldEqual, 1)
			})
		})

		Convey("When ranking by elevation", func() {
			top := aggregate.TopN(rows, aggregate.Elevation, 1)
			So(top[0].Index, ShouldEqual, 0)
		})
	})

	Convey("Given rides ranked by speed", t, func() {
		day := date(2024, time.May, 1)
		rows := []sport.Row{row(0, activity.Ride, day, 40, 7200), row(1, activity.Ride, day, 30, 3600)}
		rows[0].Speed = activity.Float(20)
		rows[1].Speed = activity.Float(30)

		Convey("Then higher speed wins", func() {
			top := aggregate.TopN(rows, aggregate.Fastest, 2)
			So(top[0].Index, ShouldEqual, 1)
		})
	})

	Convey("Given ranking names", t, func() {
		k, err := aggregate.ParseRankKey("Fastest")
		So(err, ShouldBeNil)
		So(k, ShouldEqual, aggregate.Fastest)

		_, err = aggregate.ParseRankKey("slowest")
		So(errors.Is(err, aggregate.ErrUnknownRankKey), ShouldBeTrue)
	})
}

func TestSummaries(t *testing.T) {
	Convey("Given rows with gear", t, func() {
		rows := []sport.Row{
			row(0, activity.Run, date(2024, time.January, 1), 10, 3000),
			row(1, activity.Run, date(2024, time.January, 11), 5.01, 1500),
			row(2, activity.Run, date(2024, time.February, 1), 8, 2400),
		}
		rows[0].Gear, rows[1].Gear = "Pegasus", "Pegasus"

		Convey("Then gear is summarized by name", func() {
			g := aggregate.Gear(rows)
			So(len(g), ShouldEqual, 1)
			So(g[0].Count, ShouldEqual, 2)
			So(g[0].DistanceKm, ShouldEqual, 15.01)
			So(g[0].DurationDays, ShouldEqual, 10)
		})

		Convey("Then totals cover every endurance sport", func() {
			totals := aggregate.Totals(sport.Views{activity.Run: {Category: activity.Run, Rows: rows}})
			So(len(totals), ShouldEqual, 3)
			So(totals[1].Category, ShouldEqual, activity.Run)
			So(totals[1].Count, ShouldEqual, 3)
			So(totals[0].Count, ShouldEqual, 0)
		})
	})

	Convey("Given activities on known days and hours", t, func() {
		start := time.Date(2024, time.June, 1, 6, 0, 0, 0, time.UTC)
		rows := []activity.Activity{
			{Start: start, Calendar: calendar.Derive(start)},
			{Start: start, Calendar: calendar.Derive(start)},
		}
		h := aggregate.Heatmaps(rows)

		Convey("Then counts land in the month and weekday cells", func() {
			So(h.ByWeekday[5][5], ShouldEqual, 2)
			So(h.ByHour[5][6], ShouldEqual, 2)
		})
	})
}

func TestWeather(t *testing.T) {
	Convey("Given condition codes", t, func() {
		code := func(v int) *int { return &v }
		So(aggregate.ConditionLabel(code(1)), ShouldEqual, "Clear")
		So(aggregate.ConditionLabel(code(6)), ShouldEqual, "Snowy")
		So(aggregate.ConditionLabel(code(9)), ShouldEqual, "Unknown")
		So(aggregate.ConditionLabel(nil), ShouldEqual, "Unknown")
	})

	Convey("Given activities with weather", t, func() {
		start := time.Date(2024, time.March, 3, 8, 0, 0, 0, time.UTC)
		sunrise := time.Date(2024, time.March, 3, 6, 45, 0, 0, time.UTC)
		rainy, clear := 4, 1
		rows := []activity.Activity{
			{Start: start, Calendar: calendar.Derive(start), MovingTime: 1000,
				Weather: activity.Weather{Condition: &rainy, Temperature: activity.Float(5), WindSpeed: activity.Float(10), Sunrise: &sunrise}},
			{Start: start, Calendar: calendar.Derive(start), MovingTime: 3000,
				Weather: activity.Weather{Condition: &rainy, Temperature: activity.Float(15), WindSpeed: activity.Float(20)}},
			{Start: start, Calendar: calendar.Derive(start), MovingTime: 2000,
				Weather: activity.Weather{Condition: &clear}},
		}
		w := aggregate.WeatherBreakdown(rows)

		Convey("Then conditions are counted by label", func() {
			So(w.Conditions, ShouldResemble, []aggregate.LabelCount{{Label: "Rainy", Count: 2}, {Label: "Clear", Count: 1}})
			So(w.MostFrequent, ShouldEqual, "Rainy")
		})

		Convey("Then the sunrise offset uses the shifted hour", func() {
			So(w.SunriseOffsets[3], ShouldEqual, 1)
		})

		Convey("Then monthly temperature averages skip missing readings", func() {
			So(len(w.Months), ShouldEqual, 1)
			So(w.Months[0].Count, ShouldEqual, 3)
			So(*w.Months[0].AvgTemperature, ShouldEqual, 10)
		})

		Convey("Then the temperature bins carry mean moving time", func() {
			So(len(w.TemperatureBins), ShouldEqual, 10)
			So(*w.TemperatureBins[0].Mean, ShouldEqual, 1000)
			So(*w.TemperatureBins[9].Mean, ShouldEqual, 3000)
			So(w.WindSpeedBins[9].Count, ShouldEqual, 1)
		})
	})
}

func TestHistogram(t *testing.T) {
	Convey("Given values spanning zero to ten", t, func() {
		bins := aggregate.Histogram([]float64{0, 1, 5, 10}, nil, 10)

		Convey("Then the minimum falls in the first bin", func() {
			So(bins[0].Lower, ShouldBeLessThan, 0)
			So(bins[0].Count, ShouldEqual, 2)
			So(bins[4].Count, ShouldEqual, 1)
			So(bins[9].Count, ShouldEqual, 1)
			So(bins[0].Mean, ShouldBeNil)
		})
	})

	Convey("Given a constant series", t, func() {
		bins := aggregate.Histogram([]float64{7, 7}, nil, 10)

		Convey("Then every value still lands in a bin", func() {
			total := 0
			for _, b := range bins {
				total += b.Count
			}
			So(total, ShouldEqual, 2)
		})
	})

	Convey("Given no values", t, func() {
		So(aggregate.Histogram(nil, nil, 10), ShouldBeNil)
	})
}
