// Package load computes training load: a per-activity effort and its long
// (fitness) and short (fatigue) exponentially weighted averages.
package load

import (
	"math"
	"sort"
	"time"

	"go.uber.org/multierr"

	"github.com/okian/stride/internal/domain/activity"
)

// Defaults.
const (
	DefaultCTLSpan          = 42
	DefaultATLSpan          = 7
	DefaultNeutralIntensity = 1.0
)

// Point is the load state after one activity.
type Point struct {
	Index    int               `json:"index"`
	Start    time.Time         `json:"start"`
	Category activity.Category `json:"category"`
	Effort   float64           `json:"effort"`
	CTL      float64           `json:"ctl"`
	ATL      float64           `json:"atl"`
	TSB      float64           `json:"tsb"`
	Form     string            `json:"form"`
}

// Series is the load series of a run and the rows it skipped.
type Series struct {
	Points []Point                         `json:"points"`
	Errors []*activity.RowComputationError `json:"-"`
}

// Err combines the skipped-row errors, or nil.
func (s Series) Err() error {
	errs := make([]error, len(s.Errors))
	for i, e := range s.Errors {
		errs[i] = e
	}
	return multierr.Combine(errs...)
}

// Last returns the most recent point.
func (s Series) Last() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

type model struct {
	ctlSpan int
	atlSpan int
	neutral float64
}

// SortByStart returns a copy of rows ordered by start time, ties by index.
func SortByStart(rows []activity.Activity) []activity.Activity {
	out := make([]activity.Activity, len(rows))
	for i, a := range rows {
		out[i] = a.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// Compute runs the recurrence over rows, which must already be sorted by
// start time. Effort is moving hours times intensity, with the neutral
// intensity standing in when a row has none. Rows with a negative or
// non-finite moving time are skipped and reported.
func Compute(rows []activity.Activity, opts ...Option) (Series, error) {
	m := &model{ctlSpan: DefaultCTLSpan, atlSpan: DefaultATLSpan, neutral: DefaultNeutralIntensity}
	for _, opt := range opts {
		opt(m)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Start.Before(rows[i-1].Start) {
			return Series{}, ErrNotSorted
		}
	}

	ctlAlpha := 2 / float64(m.ctlSpan+1)
	atlAlpha := 2 / float64(m.atlSpan+1)

	var s Series
	var ctl, atl float64
	for _, a := range rows {
		if math.IsNaN(a.MovingTime) || math.IsInf(a.MovingTime, 0) || a.MovingTime < 0 {
			s.Errors = append(s.Errors, &activity.RowComputationError{
				Index: a.Index, Category: a.Category, Metric: "effort", Reason: "moving time is invalid",
			})
			continue
		}
		intensity := m.neutral
		if a.Intensity != nil && !math.IsNaN(*a.Intensity) && !math.IsInf(*a.Intensity, 0) {
			intensity = *a.Intensity
		}
		effort := a.MovingTime / 3600 * intensity

		if len(s.Points) == 0 {
			ctl, atl = effort, effort
		} else {
			ctl += ctlAlpha * (effort - ctl)
			atl += atlAlpha * (effort - atl)
		}
		tsb := ctl - atl
		s.Points = append(s.Points, Point{
			Index:    a.Index,
			Start:    a.Start,
			Category: a.Category,
			Effort:   effort,
			CTL:      ctl,
			ATL:      atl,
			TSB:      tsb,
			Form:     FormLabel(tsb),
		})
	}
	return s, nil
}

// FormLabel maps a TSB value to a readiness band.
func FormLabel(tsb float64) string {
	switch {
	case tsb > 25:
		return "Very fresh"
	case tsb > 10:
		return "Fresh"
	case tsb > 0:
		return "Neutral"
	case tsb > -10:
		return "Slightly fatigued"
	case tsb > -25:
		return "Tired"
	default:
		return "Very fatigued"
	}
}
