package aggregate

import (
	"math"

	"github.com/okian/stride/internal/domain/activity"
)

var conditionLabels = map[int]string{
	1: "Clear",
	2: "Cloudy",
	3: "Partly Cloudy",
	4: "Rainy",
	5: "Windy",
	6: "Snowy",
}

// UnknownCondition labels a missing or out of range condition code.
const UnknownCondition = "Unknown"

// ConditionLabel names a weather condition code.
func ConditionLabel(code *int) string {
	if code == nil {
		return UnknownCondition
	}
	if l, ok := conditionLabels[*code]; ok {
		return l
	}
	return UnknownCondition
}

// HoursFromSunrise returns the shifted start hour minus the sunrise hour, or
// nil when sunrise is unknown.
func HoursFromSunrise(a activity.Activity) *int {
	if a.Weather.Sunrise == nil {
		return nil
	}
	v := a.Calendar.Hour - a.Weather.Sunrise.Hour()
	return &v
}

// LabelCount is the number of activities under one label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// MonthTemperature is the activity count and mean temperature of a calendar
// month across all years.
type MonthTemperature struct {
	Month          int      `json:"month"`
	Count          int      `json:"count"`
	AvgTemperature *float64 `json:"avg_temperature,omitempty"`
}

// Weather summarizes the weather attributes of a set of activities.
type Weather struct {
	Conditions      []LabelCount       `json:"conditions"`
	MostFrequent    string             `json:"most_frequent,omitempty"`
	SunriseOffsets  map[int]int        `json:"sunrise_offsets,omitempty"`
	Months          []MonthTemperature `json:"months"`
	TemperatureBins []Bin              `json:"temperature_bins,omitempty"`
	WindSpeedBins   []Bin              `json:"wind_speed_bins,omitempty"`
}

// HistogramBins is the bin count of the weather histograms.
const HistogramBins = 10

// WeatherBreakdown counts activities per condition label, per hour offset from
// sunrise and per month, and bins temperature against mean moving time and
// wind speed against counts.
func WeatherBreakdown(rows []activity.Activity) Weather {
	var w Weather
	counts := map[string]int{}
	var order []string
	offsets := map[int]int{}
	var months [12]struct {
		count, tempN int
		tempSum      float64
	}
	var temps, times, winds []float64

	for _, a := range rows {
		if a.Weather.Condition != nil {
			l := ConditionLabel(a.Weather.Condition)
			if _, seen := counts[l]; !seen {
				order = append(order, l)
			}
			counts[l]++
		}
		if off := HoursFromSunrise(a); off != nil {
			offsets[*off]++
		}
		if m := a.Calendar.Month; m >= 1 && m <= 12 {
			months[m-1].count++
			if t := a.Weather.Temperature; t != nil && !math.IsNaN(*t) {
				months[m-1].tempN++
				months[m-1].tempSum += *t
			}
		}
		if t := a.Weather.Temperature; t != nil && !math.IsNaN(*t) {
			temps = append(temps, *t)
			times = append(times, a.MovingTime)
		}
		if v := a.Weather.WindSpeed; v != nil && !math.IsNaN(*v) {
			winds = append(winds, *v)
		}
	}

	best := 0
	for _, l := range order {
		w.Conditions = append(w.Conditions, LabelCount{Label: l, Count: counts[l]})
		if counts[l] > best {
			best = counts[l]
			w.MostFrequent = l
		}
	}
	if len(offsets) > 0 {
		w.SunriseOffsets = offsets
	}
	for i, m := range months {
		if m.count == 0 {
			continue
		}
		mt := MonthTemperature{Month: i + 1, Count: m.count}
		if m.tempN > 0 {
			avg := m.tempSum / float64(m.tempN)
			mt.AvgTemperature = &avg
		}
		w.Months = append(w.Months, mt)
	}
	w.TemperatureBins = Histogram(temps, times, HistogramBins)
	w.WindSpeedBins = Histogram(winds, nil, HistogramBins)
	return w
}
