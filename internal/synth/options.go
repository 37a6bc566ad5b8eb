package synth

import (
	"time"

	"github.com/okian/stride/pkg/logger"
)

// Defaults used when an option is not given.
const (
	DefaultRows = 500
	DefaultDays = 730
)

// DefaultStart is the first day activities are generated on.
var DefaultStart = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes the output reproducible. Seed 0 picks a random seed.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.seed = seed
	}
}

// WithStart sets the first day of the generated period.
func WithStart(start time.Time) Option {
	return func(g *Generator) {
		if !start.IsZero() {
			g.start = start.UTC()
		}
	}
}

// WithDays sets the length of the generated period in days.
func WithDays(days int) Option {
	return func(g *Generator) {
		if days > 0 {
			g.days = days
		}
	}
}

// WithNoise sets the share of rows that carry an unrecognized activity type
// or an unparseable date. The rate is clamped to [0, 0.5].
func WithNoise(rate float64) Option {
	return func(g *Generator) {
		switch {
		case rate < 0:
			rate = 0
		case rate > 0.5:
			rate = 0.5
		}
		g.noise = rate
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}
