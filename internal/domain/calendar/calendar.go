// Package calendar derives calendar features from activity timestamps and
// provides the month, ISO week and quarter buckets used for grouping.
package calendar

import (
	"fmt"
	"time"

	"github.com/okian/stride/internal/domain/activity"
)

// Derive computes the calendar fields of t. Hour is reported as the stored
// hour plus one so that it ranges over 1..24.
func Derive(t time.Time) activity.Calendar {
	isoYear, week := t.ISOWeek()
	month := int(t.Month())
	dow := (int(t.Weekday()) + 6) % 7
	return activity.Calendar{
		Hour:      t.Hour() + 1,
		Day:       t.Day(),
		Week:      week,
		ISOYear:   isoYear,
		Month:     month,
		Year:      t.Year(),
		YearMonth: activity.Period{Year: t.Year(), Month: t.Month()},
		YearWeek:  fmt.Sprintf("%d-W%02d", isoYear, week),
		DayOfWeek: dow,
		Quarter:   (month-1)/3 + 1,
		IsWeekend: dow >= 5,
	}
}

// Augment returns a copy of tbl with every row's calendar recomputed from its
// start timestamp.
func Augment(tbl activity.Table) activity.Table {
	out := tbl.Clone()
	for i := range out.Rows {
		out.Rows[i].Calendar = Derive(out.Rows[i].Start)
	}
	return out
}
