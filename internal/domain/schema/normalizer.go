// Package schema turns a raw activity export into the normalized activity
// table.
package schema

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/pkg/logger"
)

// DefaultAliases maps legacy export labels onto recognized categories.
var DefaultAliases = map[string]activity.Category{
	"Football (Soccer)": activity.Football,
	"Workout":           activity.Padel,
}

// timestampLayouts are tried in order.
var timestampLayouts = []string{
	"Jan 2, 2006, 3:04:05 PM",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var optionalColumns = map[activity.Field]string{
	activity.FieldHeartRate:    activity.ColAvgHeartRate,
	activity.FieldMaxSpeed:     activity.ColMaxSpeed,
	activity.FieldDirtDistance: activity.ColDirtDistance,
	activity.FieldGear:         activity.ColGear,
	activity.FieldIntensity:    activity.ColIntensity,
	activity.FieldWeatherCode:  activity.ColWeatherCode,
	activity.FieldTemperature:  activity.ColTemperature,
	activity.FieldHumidity:     activity.ColHumidity,
	activity.FieldWindSpeed:    activity.ColWindSpeed,
	activity.FieldSunrise:      activity.ColSunrise,
}

// Normalizer filters and types raw export rows.
type Normalizer struct {
	aliases    map[string]activity.Category
	categories []activity.Category
	logger     logger.Logger
}

// New creates a Normalizer with the default aliases and the full category set.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		aliases:    DefaultAliases,
		categories: activity.Categories,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize drops all-empty columns, resolves categories and the canonical
// distance, parses timestamps and returns the typed table. Rows with an
// unrecognized category or an unparseable timestamp are dropped and counted.
func (n *Normalizer) Normalize(ctx context.Context, raw activity.RawTable) (activity.Table, error) {
	cols := presentColumns(raw)
	report := activity.Report{RawRows: len(raw.Rows)}
	for _, c := range raw.Columns {
		if !cols[c] {
			report.DroppedColumns = append(report.DroppedColumns, c)
		}
	}

	for _, required := range []string{activity.ColType, activity.ColDate} {
		if !cols[required] {
			return activity.Table{}, &activity.SchemaError{Column: required}
		}
	}

	distanceCol := activity.ColDistance
	if cols[activity.ColDistanceDup] {
		distanceCol = activity.ColDistanceDup
	}

	fields := activity.Fields{}
	for f, col := range optionalColumns {
		if cols[col] {
			fields[f] = true
		}
	}

	idx := raw.Index()
	rows := make([]activity.Activity, 0, len(raw.Rows))
	for i, row := range raw.Rows {
		cell := func(col string) string {
			if !cols[col] {
				return ""
			}
			return raw.Cell(row, idx, col)
		}

		label := cell(activity.ColType)
		category, ok := n.resolve(label)
		if !ok {
			report.DroppedCategory++
			n.logger.Debug(ctx, "dropping row with unrecognized category",
				logger.Int("row", i), logger.String("label", label))
			continue
		}

		start, err := ParseTimestamp(cell(activity.ColDate))
		if err != nil {
			report.DroppedTimestamp++
			n.logger.Debug(ctx, "dropping row with bad timestamp",
				logger.Int("row", i), logger.Error(err))
			continue
		}

		a := activity.Activity{
			Index:         i,
			ID:            cell(activity.ColID),
			Name:          cell(activity.ColName),
			Category:      category,
			Start:         start,
			MovingTime:    number(cell(activity.ColMovingTime)),
			Distance:      number(cell(distanceCol)),
			ElevationGain: number(cell(activity.ColElevation)),
			AvgHeartRate:  optional(cell(activity.ColAvgHeartRate)),
			MaxSpeed:      optional(cell(activity.ColMaxSpeed)),
			DirtDistance:  optional(cell(activity.ColDirtDistance)),
			Intensity:     optional(cell(activity.ColIntensity)),
			Gear:          cell(activity.ColGear),
		}
		a.Weather.Temperature = optional(cell(activity.ColTemperature))
		a.Weather.Humidity = optional(cell(activity.ColHumidity))
		a.Weather.WindSpeed = optional(cell(activity.ColWindSpeed))
		if code := optional(cell(activity.ColWeatherCode)); code != nil {
			v := int(*code)
			a.Weather.Condition = &v
		}
		if s := cell(activity.ColSunrise); s != "" {
			if t, err := ParseTimestamp(s); err == nil {
				a.Weather.Sunrise = &t
			}
		}
		rows = append(rows, a)
	}

	if len(rows) == 0 {
		reason := "no recognized activity categories found"
		if report.DroppedTimestamp > 0 {
			reason = "no rows with a valid activity date"
		}
		return activity.Table{}, &activity.EmptyResultError{Reason: reason}
	}

	n.logger.Info(ctx, "normalized export",
		logger.Int("rawRows", report.RawRows),
		logger.Int("rows", len(rows)),
		logger.Int("droppedCategory", report.DroppedCategory),
		logger.Int("droppedTimestamp", report.DroppedTimestamp),
		logger.Int("droppedColumns", len(report.DroppedColumns)))

	return activity.Table{Rows: rows, Fields: fields, Report: report}, nil
}

// resolve maps a raw label onto a category: alias first, then exact match,
// then the longest recognized label contained in it.
func (n *Normalizer) resolve(label string) (activity.Category, bool) {
	if label == "" {
		return "", false
	}
	if c, ok := n.aliases[label]; ok && n.recognized(c) {
		return c, true
	}
	if n.recognized(activity.Category(label)) {
		return activity.Category(label), true
	}
	byLength := append([]activity.Category(nil), n.categories...)
	sort.SliceStable(byLength, func(i, j int) bool { return len(byLength[i]) > len(byLength[j]) })
	for _, c := range byLength {
		if strings.Contains(label, string(c)) {
			return c, true
		}
	}
	return "", false
}

func (n *Normalizer) recognized(c activity.Category) bool {
	for _, known := range n.categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseTimestamp parses an export timestamp as a naive wall clock in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if layout == time.RFC3339 {
				y, m, d := t.Date()
				t = time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
			}
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func presentColumns(raw activity.RawTable) map[string]bool {
	present := make(map[string]bool, len(raw.Columns))
	for i, c := range raw.Columns {
		for _, row := range raw.Rows {
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				present[c] = true
				break
			}
		}
	}
	return present
}

// number parses a numeric cell; missing, malformed and non-finite cells are
// zero.
func number(s string) float64 {
	if p := optional(s); p != nil {
		return *p
	}
	return 0
}

func optional(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
