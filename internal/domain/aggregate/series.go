// Package aggregate groups activities into bucketed series, rankings and
// summary tables.
package aggregate

import (
	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/calendar"
	"github.com/okian/stride/internal/domain/smoothing"
	"github.com/okian/stride/internal/domain/sport"
)

// DefaultRollingWindow is the number of buckets in the rolling mean.
const DefaultRollingWindow = 3

// SeriesOptions selects the bucket period, an optional category and the
// rolling window.
type SeriesOptions struct {
	Period   calendar.Period
	Category activity.Category
	Window   int
}

// SeriesPoint is one bucket of a gap-filled series. Distances are in km and
// times in hours.
type SeriesPoint struct {
	Bucket         calendar.Bucket `json:"bucket"`
	Count          int             `json:"count"`
	DistanceKm     float64         `json:"distance_km"`
	Hours          float64         `json:"hours"`
	MeanDistanceKm float64         `json:"mean_distance_km"`
	MeanHours      float64         `json:"mean_hours"`
	CumDistanceKm  float64         `json:"cum_distance_km"`
	CumHours       float64         `json:"cum_hours"`
	RollDistanceKm float64         `json:"rolling_distance_km"`
	RollHours      float64         `json:"rolling_hours"`
}

// Series sums rows per bucket, fills idle buckets with zeros and then adds
// cumulative sums and a trailing rolling mean over the filled grid.
func Series(rows []sport.Row, opts SeriesOptions) []SeriesPoint {
	window := opts.Window
	if window < 1 {
		window = DefaultRollingWindow
	}

	var points []SeriesPoint
	pos := map[calendar.Bucket]int{}
	for _, r := range rows {
		if opts.Category != "" && r.Category != opts.Category {
			continue
		}
		b := calendar.BucketOf(opts.Period, r.Calendar)
		i, ok := pos[b]
		if !ok {
			i = len(points)
			pos[b] = i
			points = append(points, SeriesPoint{Bucket: b})
		}
		points[i].Count++
		points[i].DistanceKm += r.DistanceKm
		points[i].Hours += r.MovingTime / 3600
	}

	points = smoothing.Reindex(points,
		func(p SeriesPoint) calendar.Bucket { return p.Bucket },
		func(b calendar.Bucket) SeriesPoint { return SeriesPoint{Bucket: b} })

	var cumDist, cumHours float64
	for i := range points {
		p := &points[i]
		if p.Count > 0 {
			p.MeanDistanceKm = p.DistanceKm / float64(p.Count)
			p.MeanHours = p.Hours / float64(p.Count)
		}
		cumDist += p.DistanceKm
		cumHours += p.Hours
		p.CumDistanceKm = cumDist
		p.CumHours = cumHours

		lo := max(0, i-window+1)
		var d, h float64
		for j := lo; j <= i; j++ {
			d += points[j].DistanceKm
			h += points[j].Hours
		}
		n := float64(i - lo + 1)
		p.RollDistanceKm = d / n
		p.RollHours = h / n
	}
	return points
}

// CategoryTotal is the per-category sum, mean and count of distance and
// moving time.
type CategoryTotal struct {
	Category       activity.Category `json:"category"`
	Count          int               `json:"count"`
	DistanceKm     float64           `json:"distance_km"`
	Hours          float64           `json:"hours"`
	MeanDistanceKm float64           `json:"mean_distance_km"`
	MeanHours      float64           `json:"mean_hours"`
}

// ByCategory totals rows per category in display order. Categories without
// rows are omitted.
func ByCategory(rows []activity.Activity) []CategoryTotal {
	acc := map[activity.Category]*CategoryTotal{}
	for _, a := range rows {
		t, ok := acc[a.Category]
		if !ok {
			t = &CategoryTotal{Category: a.Category}
			acc[a.Category] = t
		}
		t.Count++
		t.DistanceKm += a.Distance / 1000
		t.Hours += a.MovingTime / 3600
	}
	out := make([]CategoryTotal, 0, len(acc))
	for _, c := range activity.Categories {
		t, ok := acc[c]
		if !ok {
			continue
		}
		t.MeanDistanceKm = t.DistanceKm / float64(t.Count)
		t.MeanHours = t.Hours / float64(t.Count)
		out = append(out, *t)
	}
	return out
}
