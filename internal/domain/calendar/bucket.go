package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/stride/internal/domain/activity"
)

// Period is a bucket granularity.
type Period int

// Supported granularities.
const (
	Monthly Period = iota
	Weekly
	Quarterly
)

func (p Period) String() string {
	switch p {
	case Weekly:
		return "week"
	case Quarterly:
		return "quarter"
	default:
		return "month"
	}
}

// ParsePeriod accepts month, week or quarter. An empty string means month.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "month", "monthly":
		return Monthly, nil
	case "week", "weekly":
		return Weekly, nil
	case "quarter", "quarterly":
		return Quarterly, nil
	}
	return Monthly, fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
}

// Bucket is a (year, index) key of a period. Year is the ISO week-year for
// weekly buckets.
type Bucket struct {
	Period Period `json:"-"`
	Year   int    `json:"year"`
	Index  int    `json:"index"`
}

// MonthOf returns the month bucket containing t.
func MonthOf(t time.Time) Bucket {
	return Bucket{Period: Monthly, Year: t.Year(), Index: int(t.Month())}
}

// WeekOf returns the ISO week bucket containing t.
func WeekOf(t time.Time) Bucket {
	y, w := t.ISOWeek()
	return Bucket{Period: Weekly, Year: y, Index: w}
}

// QuarterOf returns the quarter bucket containing t.
func QuarterOf(t time.Time) Bucket {
	return Bucket{Period: Quarterly, Year: t.Year(), Index: (int(t.Month())-1)/3 + 1}
}

// Of returns the bucket of period p containing t.
func Of(p Period, t time.Time) Bucket {
	switch p {
	case Weekly:
		return WeekOf(t)
	case Quarterly:
		return QuarterOf(t)
	default:
		return MonthOf(t)
	}
}

// BucketOf returns the bucket of period p for already derived calendar fields.
func BucketOf(p Period, c activity.Calendar) Bucket {
	switch p {
	case Weekly:
		return Bucket{Period: Weekly, Year: c.ISOYear, Index: c.Week}
	case Quarterly:
		return Bucket{Period: Quarterly, Year: c.Year, Index: c.Quarter}
	default:
		return Bucket{Period: Monthly, Year: c.Year, Index: c.Month}
	}
}

// Next returns the bucket that follows b.
func (b Bucket) Next() Bucket {
	n := b
	n.Index++
	if n.Index > b.slots() {
		n.Year++
		n.Index = 1
	}
	return n
}

func (b Bucket) slots() int {
	switch b.Period {
	case Weekly:
		return isoWeeksIn(b.Year)
	case Quarterly:
		return 4
	default:
		return 12
	}
}

// Start returns the first day of the bucket.
func (b Bucket) Start() time.Time {
	switch b.Period {
	case Weekly:
		jan4 := time.Date(b.Year, time.January, 4, 0, 0, 0, 0, time.UTC)
		monday := jan4.AddDate(0, 0, -((int(jan4.Weekday()) + 6) % 7))
		return monday.AddDate(0, 0, (b.Index-1)*7)
	case Quarterly:
		return time.Date(b.Year, time.Month((b.Index-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(b.Year, time.Month(b.Index), 1, 0, 0, 0, 0, time.UTC)
	}
}

// Less orders buckets of the same period chronologically.
func (b Bucket) Less(o Bucket) bool {
	if b.Year != o.Year {
		return b.Year < o.Year
	}
	return b.Index < o.Index
}

func (b Bucket) String() string {
	switch b.Period {
	case Weekly:
		return fmt.Sprintf("%d-W%02d", b.Year, b.Index)
	case Quarterly:
		return fmt.Sprintf("%d-Q%d", b.Year, b.Index)
	default:
		return fmt.Sprintf("%d-%02d", b.Year, b.Index)
	}
}

// MarshalText renders the bucket key.
func (b Bucket) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// UnmarshalText parses a key written by MarshalText.
func (b *Bucket) UnmarshalText(text []byte) error {
	s := string(text)
	var err error
	switch {
	case strings.Contains(s, "-W"):
		b.Period = Weekly
		_, err = fmt.Sscanf(s, "%d-W%d", &b.Year, &b.Index)
	case strings.Contains(s, "-Q"):
		b.Period = Quarterly
		_, err = fmt.Sscanf(s, "%d-Q%d", &b.Year, &b.Index)
	default:
		b.Period = Monthly
		_, err = fmt.Sscanf(s, "%d-%d", &b.Year, &b.Index)
	}
	if err != nil {
		return fmt.Errorf("parse bucket %q: %w", s, err)
	}
	return nil
}

// Range returns every bucket from from to to inclusive. It is empty when to
// precedes from.
func Range(from, to Bucket) []Bucket {
	var out []Bucket
	for b := from; !to.Less(b); b = b.Next() {
		out = append(out, b)
	}
	return out
}

func isoWeeksIn(year int) int {
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}
