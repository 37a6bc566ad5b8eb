package aggregate

import (
	"sort"
	"time"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/sport"
)

// SportTotal is the overall volume of one endurance sport.
type SportTotal struct {
	Category   activity.Category `json:"category"`
	Count      int               `json:"count"`
	DistanceKm float64           `json:"distance_km"`
	Hours      float64           `json:"hours"`
}

// Totals returns the Ride, Run and Swim volumes of views, including sports
// with no activity.
func Totals(views sport.Views) []SportTotal {
	out := make([]SportTotal, 0, 3)
	for _, c := range []activity.Category{activity.Ride, activity.Run, activity.Swim} {
		t := SportTotal{Category: c}
		for _, r := range views[c].Rows {
			t.Count++
			t.DistanceKm += r.DistanceKm
			t.Hours += r.MovingTime / 3600
		}
		t.DistanceKm = sport.Round2(t.DistanceKm)
		t.Hours = sport.Round2(t.Hours)
		out = append(out, t)
	}
	return out
}

// GearSummary is the usage of one piece of gear.
type GearSummary struct {
	Gear         string    `json:"gear"`
	DistanceKm   float64   `json:"distance_km"`
	Count        int       `json:"count"`
	FirstUse     time.Time `json:"first_use"`
	LastUse      time.Time `json:"last_use"`
	DurationDays int       `json:"duration_days"`
}

// Gear summarizes rows by gear name, sorted by name. Rows without gear are
// ignored.
func Gear(rows []sport.Row) []GearSummary {
	acc := map[string]*GearSummary{}
	for _, r := range rows {
		if r.Gear == "" {
			continue
		}
		g, ok := acc[r.Gear]
		if !ok {
			g = &GearSummary{Gear: r.Gear, FirstUse: r.Start, LastUse: r.Start}
			acc[r.Gear] = g
		}
		g.Count++
		g.DistanceKm += r.DistanceKm
		if r.Start.Before(g.FirstUse) {
			g.FirstUse = r.Start
		}
		if r.Start.After(g.LastUse) {
			g.LastUse = r.Start
		}
	}
	out := make([]GearSummary, 0, len(acc))
	for _, g := range acc {
		g.DistanceKm = sport.Round2(g.DistanceKm)
		g.DurationDays = int(g.LastUse.Sub(g.FirstUse) / (24 * time.Hour))
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Gear < out[j].Gear })
	return out
}

// Heatmap holds activity counts by month against weekday and against hour.
// ByWeekday is indexed [month-1][dayOfWeek] and ByHour [month-1][hour-1].
type Heatmap struct {
	ByWeekday [12][7]int  `json:"by_weekday"`
	ByHour    [12][24]int `json:"by_hour"`
}

// Heatmaps counts rows by their calendar fields.
func Heatmaps(rows []activity.Activity) Heatmap {
	var h Heatmap
	for _, a := range rows {
		c := a.Calendar
		if c.Month < 1 || c.Month > 12 {
			continue
		}
		if c.DayOfWeek >= 0 && c.DayOfWeek < 7 {
			h.ByWeekday[c.Month-1][c.DayOfWeek]++
		}
		if c.Hour >= 1 && c.Hour <= 24 {
			h.ByHour[c.Month-1][c.Hour-1]++
		}
	}
	return h
}
