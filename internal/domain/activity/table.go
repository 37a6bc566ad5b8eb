package activity

import (
	"sort"
	"strconv"
	"strings"
)

// Export column names.
const (
	ColID           = "Activity ID"
	ColName         = "Activity Name"
	ColType         = "Activity Type"
	ColDate         = "Activity Date"
	ColMovingTime   = "Moving Time"
	ColDistance     = "Distance"
	ColDistanceDup  = "Distance.1"
	ColElevation    = "Elevation Gain"
	ColAvgHeartRate = "Average Heart Rate"
	ColMaxSpeed     = "Max Speed"
	ColDirtDistance = "Dirt Distance"
	ColGear         = "Activity Gear"
	ColIntensity    = "Intensity"
	ColWeatherCode  = "Weather Condition"
	ColTemperature  = "Weather Temperature"
	ColHumidity     = "Humidity"
	ColWindSpeed    = "Wind Speed"
	ColSunrise      = "Sunrise Time"
)

// RawTable is an untyped export: a header and string cells. An empty cell is
// a missing value.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// UniqueColumns disambiguates repeated header names as Name, Name.1, Name.2.
func UniqueColumns(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		n := seen[h]
		seen[h] = n + 1
		if n == 0 {
			out[i] = h
			continue
		}
		out[i] = h + "." + strconv.Itoa(n)
	}
	return out
}

// Index maps column names to positions.
func (r RawTable) Index() map[string]int {
	idx := make(map[string]int, len(r.Columns))
	for i, c := range r.Columns {
		if _, dup := idx[c]; !dup {
			idx[c] = i
		}
	}
	return idx
}

// Cell returns the trimmed cell of row at column, or "" when absent.
func (r RawTable) Cell(row []string, idx map[string]int, column string) string {
	i, ok := idx[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Field is an optional column that may or may not be present in an export.
type Field string

// Optional fields.
const (
	FieldHeartRate    Field = "heart_rate"
	FieldMaxSpeed     Field = "max_speed"
	FieldDirtDistance Field = "dirt_distance"
	FieldGear         Field = "gear"
	FieldIntensity    Field = "intensity"
	FieldWeatherCode  Field = "weather_condition"
	FieldTemperature  Field = "temperature"
	FieldHumidity     Field = "humidity"
	FieldWindSpeed    Field = "wind_speed"
	FieldSunrise      Field = "sunrise"
)

// Fields is the set of optional fields present after empty columns are dropped.
type Fields map[Field]bool

// Has reports whether f is present.
func (f Fields) Has(field Field) bool { return f[field] }

// List returns the present fields in sorted order.
func (f Fields) List() []Field {
	out := make([]Field, 0, len(f))
	for k, ok := range f {
		if ok {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Report counts rows dropped by the normalizer and the range filter.
type Report struct {
	RawRows          int      `json:"raw_rows"`
	DroppedColumns   []string `json:"dropped_columns,omitempty"`
	DroppedCategory  int      `json:"dropped_unrecognized_category"`
	DroppedTimestamp int      `json:"dropped_bad_timestamp"`
	DroppedRange     int      `json:"dropped_out_of_range"`
}

// Table is the normalized activity table.
type Table struct {
	Rows   []Activity
	Fields Fields
	Report Report
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Clone returns a deep copy; stages work on clones and never mutate inputs.
func (t Table) Clone() Table {
	out := Table{
		Rows:   make([]Activity, len(t.Rows)),
		Fields: make(Fields, len(t.Fields)),
		Report: t.Report,
	}
	for i, a := range t.Rows {
		out.Rows[i] = a.Clone()
	}
	for k, v := range t.Fields {
		out.Fields[k] = v
	}
	out.Report.DroppedColumns = append([]string(nil), t.Report.DroppedColumns...)
	return out
}

// Filter returns a copy holding the rows for which keep returns true.
func (t Table) Filter(keep func(Activity) bool) Table {
	out := t.Clone()
	rows := out.Rows[:0]
	for _, a := range out.Rows {
		if keep(a) {
			rows = append(rows, a)
		}
	}
	out.Rows = rows
	return out
}

// OfCategory returns the rows of category c.
func (t Table) OfCategory(c Category) []Activity {
	var out []Activity
	for _, a := range t.Rows {
		if a.Category == c {
			out = append(out, a.Clone())
		}
	}
	return out
}
