package aggregate

import "math"

// Bin is a right-closed interval (Lower, Upper] with its count and, when
// values were given, their mean.
type Bin struct {
	Lower float64  `json:"lower"`
	Upper float64  `json:"upper"`
	Count int      `json:"count"`
	Mean  *float64 `json:"mean,omitempty"`
}

// Histogram splits xs into n equal-width bins between its minimum and
// maximum. The lowest edge is moved down by 0.1% of the range so that the
// minimum falls inside the first bin. When ys is not nil, each bin also
// carries the mean of the ys paired with its xs.
func Histogram(xs, ys []float64, n int) []Bin {
	if len(xs) == 0 || n < 1 {
		return nil
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}

	edges := make([]float64, n+1)
	if lo == hi {
		pad := 0.001 * math.Abs(lo)
		if lo == 0 {
			pad = 0.001
		}
		lo, hi = lo-pad, hi+pad
		for i := range edges {
			edges[i] = lo + (hi-lo)*float64(i)/float64(n)
		}
	} else {
		for i := range edges {
			edges[i] = lo + (hi-lo)*float64(i)/float64(n)
		}
		edges[0] -= (hi - lo) * 0.001
	}
	edges[n] = hi

	bins := make([]Bin, n)
	sums := make([]float64, n)
	for i := range bins {
		bins[i] = Bin{Lower: edges[i], Upper: edges[i+1]}
	}
	for k, x := range xs {
		i := binOf(edges, x)
		if i < 0 {
			continue
		}
		bins[i].Count++
		if ys != nil && k < len(ys) {
			sums[i] += ys[k]
		}
	}
	if ys != nil {
		for i := range bins {
			if bins[i].Count > 0 {
				m := sums[i] / float64(bins[i].Count)
				bins[i].Mean = &m
			}
		}
	}
	return bins
}

func binOf(edges []float64, x float64) int {
	for i := 0; i < len(edges)-1; i++ {
		if x > edges[i] && x <= edges[i+1] {
			return i
		}
	}
	return -1
}
