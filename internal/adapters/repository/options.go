package repository

import (
	"github.com/okian/stride/pkg/logger"
)

// DefaultMaxRuns bounds the in-memory store.
const DefaultMaxRuns = 1000

type settings struct {
	maxRuns int
	log     logger.Logger
}

func newSettings(opts []Option) settings {
	s := settings{maxRuns: DefaultMaxRuns, log: logger.Nop()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithMaxRuns caps the number of runs kept by the in-memory store; the oldest
// finished runs are evicted first. Zero means unbounded.
func WithMaxRuns(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.maxRuns = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}
