package schema

import (
	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/pkg/logger"
)

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithAliases replaces the legacy label lookup table.
func WithAliases(aliases map[string]activity.Category) Option {
	return func(n *Normalizer) {
		if aliases != nil {
			n.aliases = aliases
		}
	}
}

// WithCategories restricts the recognized set.
func WithCategories(categories ...activity.Category) Option {
	return func(n *Normalizer) {
		if len(categories) > 0 {
			n.categories = categories
		}
	}
}

// WithLogger sets the logger used for drop diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l
		}
	}
}
