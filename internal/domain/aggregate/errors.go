package aggregate

import "errors"

// ErrUnknownRankKey is returned for a ranking name other than longest, fastest
// or elevation.
var ErrUnknownRankKey = errors.New("unknown ranking")
