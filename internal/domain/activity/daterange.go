package activity

import (
	"time"
)

const dateLayout = "2006-01-02"

// DateRange is an inclusive range compared at date granularity. A zero bound
// is open.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ParseDateRange parses YYYY-MM-DD bounds; empty strings leave the bound open.
func ParseDateRange(from, to string) (DateRange, error) {
	var r DateRange
	var err error
	if from != "" {
		if r.From, err = time.Parse(dateLayout, from); err != nil {
			return DateRange{}, err
		}
	}
	if to != "" {
		if r.To, err = time.Parse(dateLayout, to); err != nil {
			return DateRange{}, err
		}
	}
	return r, nil
}

// IsZero reports whether both bounds are open.
func (r DateRange) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

// Validate rejects a range whose start is after its end.
func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return nil
	}
	if dateOf(r.From).After(dateOf(r.To)) {
		return &DateRangeError{From: r.From, To: r.To}
	}
	return nil
}

// Contains reports whether t falls in the range by calendar date.
func (r DateRange) Contains(t time.Time) bool {
	d := dateOf(t)
	if !r.From.IsZero() && d.Before(dateOf(r.From)) {
		return false
	}
	if !r.To.IsZero() && d.After(dateOf(r.To)) {
		return false
	}
	return true
}

// Filter validates the range and filters tbl by it. An empty outcome is an
// EmptyResultError.
func (r DateRange) Filter(tbl Table) (Table, error) {
	if err := r.Validate(); err != nil {
		return Table{}, err
	}
	before := tbl.Len()
	out := tbl.Filter(func(a Activity) bool { return r.Contains(a.Start) })
	out.Report.DroppedRange += before - out.Len()
	if out.Len() == 0 {
		return Table{}, &EmptyResultError{Reason: "no activities in the selected date range"}
	}
	return out, nil
}

// DefaultRange spans from the later of defaultStart and the first activity to
// the last activity. When defaultStart is after the last activity the range
// collapses to that single day, so filtering by it yields an empty result
// rather than an inverted range.
func DefaultRange(tbl Table, defaultStart time.Time) DateRange {
	if tbl.Len() == 0 {
		return DateRange{From: defaultStart}
	}
	minT, maxT := tbl.Rows[0].Start, tbl.Rows[0].Start
	for _, a := range tbl.Rows[1:] {
		if a.Start.Before(minT) {
			minT = a.Start
		}
		if a.Start.After(maxT) {
			maxT = a.Start
		}
	}
	from := dateOf(minT)
	if ds := dateOf(defaultStart); ds.After(from) {
		from = ds
	}
	to := dateOf(maxT)
	if from.After(to) {
		to = from
	}
	return DateRange{From: from, To: to}
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
