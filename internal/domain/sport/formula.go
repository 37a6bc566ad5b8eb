// Package sport builds per-category views with display units and derived
// ratios such as pace and speed.
package sport

import (
	"math"

	"github.com/okian/stride/internal/domain/activity"
)

// Direction tells which end of a metric is better.
type Direction int

const (
	// LowerIsBetter applies to pace.
	LowerIsBetter Direction = iota
	// HigherIsBetter applies to speed.
	HigherIsBetter
)

// Metric names.
const (
	MetricSpeed          = "speed"
	MetricPace           = "pace"
	MetricElevationPerKm = "elevation_per_km"
)

// Formula binds a category to its unit conversion and ratio.
type Formula struct {
	Category        activity.Category
	DistanceDivisor float64
	DurationDivisor float64
	DurationUnit    string
	Metric          string
	Unit            string
	Direction       Direction
	// Ratio computes the metric from distance in km and duration in the
	// formula's unit. Callers guard against non-positive inputs.
	Ratio func(km, duration float64) float64
}

// Formulas is the per-category formula table.
var Formulas = map[activity.Category]Formula{
	activity.Ride: {
		Category:        activity.Ride,
		DistanceDivisor: 1000,
		DurationDivisor: 3600,
		DurationUnit:    "h",
		Metric:          MetricSpeed,
		Unit:            "km/h",
		Direction:       HigherIsBetter,
		Ratio:           func(km, h float64) float64 { return km / h },
	},
	activity.Run: {
		Category:        activity.Run,
		DistanceDivisor: 1000,
		DurationDivisor: 60,
		DurationUnit:    "min",
		Metric:          MetricPace,
		Unit:            "min/km",
		Direction:       LowerIsBetter,
		Ratio:           func(km, min float64) float64 { return min / km },
	},
	activity.Swim: {
		Category:        activity.Swim,
		DistanceDivisor: 1000,
		DurationDivisor: 60,
		DurationUnit:    "min",
		Metric:          MetricPace,
		Unit:            "min/100m",
		Direction:       LowerIsBetter,
		Ratio:           func(km, min float64) float64 { return min / (km * 10) },
	},
}

// Lookup returns the formula of c.
func Lookup(c activity.Category) (Formula, bool) {
	f, ok := Formulas[c]
	return f, ok
}

// Round2 rounds v to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func usable(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
