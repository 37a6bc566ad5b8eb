// Package smoothing fills missing samples with a trailing mean and
// gap-fills bucketed series onto a complete calendar grid.
package smoothing

import (
	"math"
	"sort"

	"github.com/okian/stride/internal/domain/calendar"
)

// DefaultWindow is the trailing window used for heart rate fills.
const DefaultWindow = 5

// FillTrailingMean returns a copy of values where each NaN is replaced by the
// mean of the non-NaN entries among the preceding window positions of the
// output. Filled values take part in later windows. An entry with no value in
// its window stays NaN.
func FillTrailingMean(values []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(values))
	copy(out, values)
	for i, v := range out {
		if !math.IsNaN(v) {
			continue
		}
		var sum float64
		var n int
		for j := max(0, i-window); j < i; j++ {
			if !math.IsNaN(out[j]) {
				sum += out[j]
				n++
			}
		}
		if n > 0 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// Reindex returns points laid out on every bucket from the smallest to the
// largest observed bucket. Missing buckets get zero(bucket). Points sharing a
// bucket keep the first occurrence. Reindexing a complete series returns it
// unchanged.
func Reindex[T any](points []T, bucketOf func(T) calendar.Bucket, zero func(calendar.Bucket) T) []T {
	if len(points) == 0 {
		return nil
	}
	byBucket := make(map[calendar.Bucket]T, len(points))
	keys := make([]calendar.Bucket, 0, len(points))
	for _, p := range points {
		b := bucketOf(p)
		if _, dup := byBucket[b]; dup {
			continue
		}
		byBucket[b] = p
		keys = append(keys, b)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	grid := calendar.Range(keys[0], keys[len(keys)-1])
	out := make([]T, 0, len(grid))
	for _, b := range grid {
		if p, ok := byBucket[b]; ok {
			out = append(out, p)
			continue
		}
		out = append(out, zero(b))
	}
	return out
}
