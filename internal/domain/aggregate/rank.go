package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/stride/internal/domain/sport"
)

// RankKey selects a ranking.
type RankKey string

// Rankings.
const (
	Longest   RankKey = "longest"
	Fastest   RankKey = "fastest"
	Elevation RankKey = "elevation"
)

// RankKeys lists every ranking.
var RankKeys = []RankKey{Longest, Fastest, Elevation}

// ParseRankKey resolves a ranking name.
func ParseRankKey(s string) (RankKey, error) {
	k := RankKey(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range RankKeys {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRankKey, s)
}

// TopN returns up to n rows ordered by key. Longest and Elevation sort
// descending. Fastest follows each category's formula: pace ascending, speed
// descending; rows with a masked metric are left out. Ties keep the input
// order.
func TopN(rows []sport.Row, key RankKey, n int) []sport.Row {
	candidates := make([]sport.Row, 0, len(rows))
	for _, r := range rows {
		if key == Fastest && r.Metric() == nil {
			continue
		}
		candidates = append(candidates, r)
	}

	var less func(a, b sport.Row) bool
	switch key {
	case Elevation:
		less = func(a, b sport.Row) bool { return a.ElevationGain > b.ElevationGain }
	case Fastest:
		less = func(a, b sport.Row) bool {
			f, _ := sport.Lookup(a.Category)
			if f.Direction == sport.HigherIsBetter {
				return *a.Metric() > *b.Metric()
			}
			return *a.Metric() < *b.Metric()
		}
	default:
		less = func(a, b sport.Row) bool { return a.DistanceKm > b.DistanceKm }
	}
	sort.SliceStable(candidates, func(i, j int) bool { return less(candidates[i], candidates[j]) })

	if n >= 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
