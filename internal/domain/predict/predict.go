// Package predict estimates race times for standard distances from the best
// real runs near each distance, using Riegel's endurance model.
package predict

import (
	"math"
	"time"

	"github.com/okian/stride/internal/domain/aggregate"
	"github.com/okian/stride/internal/domain/sport"
)

// RiegelExponent is the fatigue exponent of the model.
const RiegelExponent = 1.06

// Target is a standard race distance.
type Target struct {
	Name string  `json:"name"`
	Km   float64 `json:"km"`
}

// Targets are the standard distances in ascending order.
var Targets = []Target{
	{Name: "1 Mile", Km: 1.609},
	{Name: "5K", Km: 5},
	{Name: "10K", Km: 10},
	{Name: "Half Marathon", Km: 21.0975},
	{Name: "Marathon", Km: 42.195},
}

// Defaults.
const (
	DefaultMargin = 0.075
	DefaultTop    = 5
)

// Riegel predicts the time for distance d2 from time t over distance d1.
func Riegel(t, d1, d2 float64) float64 {
	return t * math.Pow(d2/d1, RiegelExponent)
}

// Performance is a real run counted towards a target.
type Performance struct {
	Index      int       `json:"index"`
	Start      time.Time `json:"start"`
	DistanceKm float64   `json:"distance_km"`
	Pace       float64   `json:"pace"`
	Minutes    float64   `json:"minutes"`
}

// Estimate is the spread of predictions for one target.
type Estimate struct {
	Target     string  `json:"target"`
	AvgMinutes float64 `json:"avg_minutes"`
	MinMinutes float64 `json:"min_minutes"`
	MaxMinutes float64 `json:"max_minutes"`
}

// Prediction holds the best runs near one target and what they predict for
// every other target.
type Prediction struct {
	From      Target        `json:"from"`
	Top       []Performance `json:"top"`
	Estimates []Estimate    `json:"estimates"`
}

type predictor struct {
	targets []Target
	margin  float64
	top     int
}

// Option configures Predict.
type Option func(*predictor)

// WithTargets replaces the standard distances.
func WithTargets(targets ...Target) Option {
	return func(p *predictor) {
		if len(targets) > 0 {
			p.targets = targets
		}
	}
}

// WithMargin sets the relative distance tolerance around each target.
func WithMargin(m float64) Option {
	return func(p *predictor) {
		if m > 0 {
			p.margin = m
		}
	}
}

// WithTop sets how many runs per target are used.
func WithTop(n int) Option {
	return func(p *predictor) {
		if n > 0 {
			p.top = n
		}
	}
}

// Predict takes run rows (distance in km, duration in minutes). Targets with
// no run inside the margin are omitted.
func Predict(rows []sport.Row, opts ...Option) []Prediction {
	p := &predictor{targets: Targets, margin: DefaultMargin, top: DefaultTop}
	for _, opt := range opts {
		opt(p)
	}

	var out []Prediction
	for _, from := range p.targets {
		lo, hi := from.Km*(1-p.margin), from.Km*(1+p.margin)
		var near []sport.Row
		for _, r := range rows {
			if r.DistanceKm >= lo && r.DistanceKm <= hi {
				near = append(near, r)
			}
		}
		best := aggregate.TopN(near, aggregate.Fastest, p.top)
		if len(best) == 0 {
			continue
		}

		pred := Prediction{From: from}
		for _, r := range best {
			pred.Top = append(pred.Top, Performance{
				Index:      r.Index,
				Start:      r.Start,
				DistanceKm: r.DistanceKm,
				Pace:       *r.Metric(),
				Minutes:    r.Duration,
			})
		}
		for _, to := range p.targets {
			if to.Name == from.Name {
				continue
			}
			e := Estimate{Target: to.Name, MinMinutes: math.Inf(1), MaxMinutes: math.Inf(-1)}
			var sum float64
			for _, perf := range pred.Top {
				t := Riegel(perf.Minutes, perf.DistanceKm, to.Km)
				sum += t
				e.MinMinutes = math.Min(e.MinMinutes, t)
				e.MaxMinutes = math.Max(e.MaxMinutes, t)
			}
			e.AvgMinutes = sum / float64(len(pred.Top))
			pred.Estimates = append(pred.Estimates, e)
		}
		out = append(out, pred)
	}
	return out
}
