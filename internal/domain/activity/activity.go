// Package activity contains the data model shared by every pipeline stage:
// raw export tables, normalized activities, derived calendar fields and the
// error kinds surfaced by the pipeline.
package activity

import (
	"time"
)

// Category is a recognized activity type.
type Category string

// Recognized categories.
const (
	Ride           Category = "Ride"
	Run            Category = "Run"
	Swim           Category = "Swim"
	WeightTraining Category = "Weight Training"
	Football       Category = "Football"
	Padel          Category = "Padel"
)

// Categories lists the recognized set in display order.
var Categories = []Category{Ride, Run, Swim, WeightTraining, Football, Padel}

// Valid reports whether c is in the recognized set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }

// ParseCategory resolves an exact category label.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	return c, c.Valid()
}

// Weather holds the optional weather attributes of an activity.
type Weather struct {
	Condition   *int       `json:"condition,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	Humidity    *float64   `json:"humidity,omitempty"`
	WindSpeed   *float64   `json:"wind_speed,omitempty"`
	Sunrise     *time.Time `json:"sunrise,omitempty"`
}

// Calendar holds fields derived from the start timestamp.
// Hour is the stored hour plus one (1..24).
type Calendar struct {
	Hour      int    `json:"hour"`
	Day       int    `json:"day"`
	Week      int    `json:"week"`
	ISOYear   int    `json:"iso_year"`
	Month     int    `json:"month"`
	Year      int    `json:"year"`
	YearMonth Period `json:"year_month"`
	YearWeek  string `json:"year_week"`
	DayOfWeek int    `json:"day_of_week"`
	Quarter   int    `json:"quarter"`
	IsWeekend bool   `json:"is_weekend"`
}

// Period is a calendar month key.
type Period struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// String formats the period as YYYY-MM.
func (p Period) String() string {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// MarshalText renders the period as YYYY-MM.
func (p Period) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText parses YYYY-MM.
func (p *Period) UnmarshalText(b []byte) error {
	t, err := time.Parse("2006-01", string(b))
	if err != nil {
		return err
	}
	p.Year, p.Month = t.Year(), t.Month()
	return nil
}

// Activity is one row of the normalized table.
type Activity struct {
	// Index is the original row position and the identity of the row.
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`

	Category Category  `json:"category"`
	Start    time.Time `json:"start"`

	MovingTime    float64 `json:"moving_time_s"`
	Distance      float64 `json:"distance_m"`
	ElevationGain float64 `json:"elevation_gain_m"`

	AvgHeartRate *float64 `json:"avg_heart_rate,omitempty"`
	MaxSpeed     *float64 `json:"max_speed,omitempty"`
	DirtDistance *float64 `json:"dirt_distance_m,omitempty"`
	Intensity    *float64 `json:"intensity,omitempty"`
	Gear         string   `json:"gear,omitempty"`
	Weather      Weather  `json:"weather"`

	Calendar Calendar `json:"calendar"`
}

// Clone returns a deep copy of a.
func (a Activity) Clone() Activity {
	out := a
	out.AvgHeartRate = cloneFloat(a.AvgHeartRate)
	out.MaxSpeed = cloneFloat(a.MaxSpeed)
	out.DirtDistance = cloneFloat(a.DirtDistance)
	out.Intensity = cloneFloat(a.Intensity)
	out.Weather.Temperature = cloneFloat(a.Weather.Temperature)
	out.Weather.Humidity = cloneFloat(a.Weather.Humidity)
	out.Weather.WindSpeed = cloneFloat(a.Weather.WindSpeed)
	if a.Weather.Condition != nil {
		v := *a.Weather.Condition
		out.Weather.Condition = &v
	}
	if a.Weather.Sunrise != nil {
		v := *a.Weather.Sunrise
		out.Weather.Sunrise = &v
	}
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
