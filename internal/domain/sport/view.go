package sport

import (
	"math"
	"sort"
	"time"

	"go.uber.org/multierr"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/smoothing"
)

// Row is one activity in display units. Speed is set for rides and Pace for
// runs and swims; a nil metric could not be computed.
type Row struct {
	Index    int               `json:"index"`
	ID       string            `json:"id,omitempty"`
	Name     string            `json:"name,omitempty"`
	Category activity.Category `json:"category"`
	Start    time.Time         `json:"start"`
	Calendar activity.Calendar `json:"calendar"`

	DistanceKm    float64 `json:"distance_km"`
	Duration      float64 `json:"duration"`
	MovingTime    float64 `json:"moving_time_s"`
	ElevationGain float64 `json:"elevation_gain_m"`

	Speed          *float64 `json:"speed_kmh,omitempty"`
	Pace           *float64 `json:"pace,omitempty"`
	ElevationPerKm *float64 `json:"elevation_per_km,omitempty"`
	DirtKm         *float64 `json:"dirt_km,omitempty"`
	PavedKm        *float64 `json:"paved_km,omitempty"`

	HeartRate *float64         `json:"heart_rate,omitempty"`
	MaxSpeed  *float64         `json:"max_speed,omitempty"`
	Gear      string           `json:"gear,omitempty"`
	Weather   activity.Weather `json:"weather"`
}

// Metric returns the category's headline metric.
func (r Row) Metric() *float64 {
	if f, ok := Lookup(r.Category); ok && f.Metric == MetricSpeed {
		return r.Speed
	}
	return r.Pace
}

// View is the rows of one category in ascending start order.
type View struct {
	Category activity.Category               `json:"category"`
	Formula  Formula                         `json:"-"`
	Rows     []Row                           `json:"rows"`
	Errors   []*activity.RowComputationError `json:"-"`
}

// Err combines the row errors of the view, or nil.
func (v View) Err() error {
	errs := make([]error, len(v.Errors))
	for i, e := range v.Errors {
		errs[i] = e
	}
	return multierr.Combine(errs...)
}

// Views holds one view per formula category.
type Views map[activity.Category]View

// Ordered returns the views in display order.
func (vs Views) Ordered() []View {
	out := make([]View, 0, len(vs))
	for _, c := range activity.Categories {
		if v, ok := vs[c]; ok {
			out = append(out, v)
		}
	}
	return out
}

// ErrorCount returns the number of row errors across all views.
func (vs Views) ErrorCount() int {
	n := 0
	for _, v := range vs {
		n += len(v.Errors)
	}
	return n
}

// Option configures Transform.
type Option func(*transformer)

type transformer struct {
	hrWindow int
}

// WithHeartRateWindow sets the trailing window used to fill heart rate.
func WithHeartRateWindow(n int) Option {
	return func(t *transformer) {
		if n > 0 {
			t.hrWindow = n
		}
	}
}

// Transform returns the Ride, Run and Swim views of tbl. Rows whose metric
// cannot be computed stay in the view with the metric masked and an error
// recorded.
func Transform(tbl activity.Table, opts ...Option) Views {
	t := &transformer{hrWindow: smoothing.DefaultWindow}
	for _, opt := range opts {
		opt(t)
	}

	views := make(Views, len(Formulas))
	for c, f := range Formulas {
		src := tbl.OfCategory(c)
		sort.SliceStable(src, func(i, j int) bool {
			if !src[i].Start.Equal(src[j].Start) {
				return src[i].Start.Before(src[j].Start)
			}
			return src[i].Index < src[j].Index
		})

		v := View{Category: c, Formula: f, Rows: make([]Row, 0, len(src))}
		for _, a := range src {
			row, errs := convert(a, f)
			v.Rows = append(v.Rows, row)
			v.Errors = append(v.Errors, errs...)
		}
		fillHeartRate(v.Rows, src, t.hrWindow)
		views[c] = v
	}
	return views
}

func convert(a activity.Activity, f Formula) (Row, []*activity.RowComputationError) {
	km := a.Distance / f.DistanceDivisor
	duration := a.MovingTime / f.DurationDivisor
	row := Row{
		Index:         a.Index,
		ID:            a.ID,
		Name:          a.Name,
		Category:      a.Category,
		Start:         a.Start,
		Calendar:      a.Calendar,
		DistanceKm:    km,
		Duration:      duration,
		MovingTime:    a.MovingTime,
		ElevationGain: a.ElevationGain,
		MaxSpeed:      a.MaxSpeed,
		Gear:          a.Gear,
		Weather:       a.Weather,
	}

	var errs []*activity.RowComputationError
	fail := func(metric, reason string) {
		errs = append(errs, &activity.RowComputationError{
			Index: a.Index, Category: a.Category, Metric: metric, Reason: reason,
		})
	}

	var metric *float64
	switch {
	case !usable(km):
		fail(f.Metric, "distance is not positive")
	case !usable(duration):
		fail(f.Metric, "moving time is not positive")
	default:
		metric = activity.Float(Round2(f.Ratio(km, duration)))
	}
	if f.Metric == MetricSpeed {
		row.Speed = metric
	} else {
		row.Pace = metric
	}

	if a.Category == activity.Ride {
		if usable(km) {
			row.ElevationPerKm = activity.Float(Round2(a.ElevationGain / km))
		} else {
			fail(MetricElevationPerKm, "distance is not positive")
		}
		dirt := 0.0
		if a.DirtDistance != nil && !math.IsNaN(*a.DirtDistance) {
			dirt = *a.DirtDistance / f.DistanceDivisor
		}
		dirt = math.Min(math.Max(dirt, 0), math.Max(km, 0))
		row.DirtKm = activity.Float(dirt)
		row.PavedKm = activity.Float(math.Max(km-dirt, 0))
	}
	return row, errs
}

func fillHeartRate(rows []Row, src []activity.Activity, window int) {
	values := make([]float64, len(src))
	for i, a := range src {
		values[i] = math.NaN()
		if a.AvgHeartRate != nil {
			values[i] = *a.AvgHeartRate
		}
	}
	for i, v := range smoothing.FillTrailingMean(values, window) {
		if !math.IsNaN(v) {
			rows[i].HeartRate = activity.Float(v)
		}
	}
}
