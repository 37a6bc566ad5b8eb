// Package synth generates synthetic activity exports shaped like the real
// bulk export, for demos, load tests and fixtures.
package synth

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/pkg/logger"
)

// ExportLayout is the timestamp layout of the bulk export.
const ExportLayout = "Jan 2, 2006, 3:04:05 PM"

// Columns is the generated header, in export order. The second Distance
// column holds meters.
var Columns = activity.UniqueColumns([]string{
	activity.ColID,
	activity.ColDate,
	activity.ColName,
	activity.ColType,
	activity.ColDistance,
	activity.ColMovingTime,
	activity.ColMaxSpeed,
	activity.ColElevation,
	activity.ColAvgHeartRate,
	activity.ColGear,
	activity.ColDistance,
	activity.ColDirtDistance,
	activity.ColIntensity,
	activity.ColWeatherCode,
	activity.ColTemperature,
	activity.ColHumidity,
	activity.ColWindSpeed,
	activity.ColSunrise,
})

// profile describes how one activity type is generated.
type profile struct {
	labels []string
	weight float64

	// minKm and maxKm bound the distance; zero means a timed session.
	minKm, maxKm float64
	// minPace and maxPace bound the seconds per km of distance sports.
	minPace, maxPace float64
	// minSec and maxSec bound the duration of timed sessions.
	minSec, maxSec float64
	// climb is the maximum elevation gain per km.
	climb float64
	gear  []string
}

var profiles = []profile{
	{
		labels: []string{"Ride", "Ride", "Ride", "Virtual Ride"},
		weight: 0.35, minKm: 12, maxKm: 110, minPace: 100, maxPace: 200, climb: 14,
		gear: []string{"Canyon Endurace", "Specialized Diverge", "Trek Domane"},
	},
	{
		labels: []string{"Run", "Run", "Trail Run"},
		weight: 0.30, minKm: 3, maxKm: 24, minPace: 255, maxPace: 400, climb: 8,
		gear: []string{"Pegasus 40", "Ghost 15", "Speedgoat 5"},
	},
	{
		labels: []string{"Swim"},
		weight: 0.10, minKm: 0.8, maxKm: 4, minPace: 1_050, maxPace: 1_650,
	},
	{
		labels: []string{"Weight Training"},
		weight: 0.10, minSec: 1_800, maxSec: 4_500,
	},
	{
		labels: []string{"Football", "Football (Soccer)"},
		weight: 0.08, minSec: 3_000, maxSec: 6_000,
	},
	{
		labels: []string{"Padel", "Workout"},
		weight: 0.07, minSec: 3_600, maxSec: 5_400,
	},
}

var unknownLabels = []string{"Yoga", "Kayaking", "Rock Climbing", "Hike"}

// Manifest records what a generated table contains so callers can check how
// it normalizes.
type Manifest struct {
	Seed         int64                     `json:"seed"`
	Rows         int                       `json:"rows"`
	Unrecognized int                       `json:"unrecognized"`
	BadDates     int                       `json:"bad_dates"`
	ByCategory   map[activity.Category]int `json:"by_category"`
	First        time.Time                 `json:"first"`
	Last         time.Time                 `json:"last"`
}

// Valid is the number of rows that survive normalization.
func (m Manifest) Valid() int { return m.Rows - m.Unrecognized - m.BadDates }

// Generator produces synthetic exports. It is safe for concurrent use.
type Generator struct {
	seed  int64
	start time.Time
	days  int
	noise float64
	log   logger.Logger

	mu    sync.Mutex
	faker *gofakeit.Faker
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		start: DefaultStart,
		days:  DefaultDays,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.faker = gofakeit.New(g.seed)
	return g
}

// Table generates rows activities spread over the configured period, oldest
// first. Zero or negative rows falls back to DefaultRows.
func (g *Generator) Table(ctx context.Context, rows int) (activity.RawTable, Manifest) {
	if rows <= 0 {
		rows = DefaultRows
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	f := g.faker
	starts := make([]time.Time, rows)
	for i := range starts {
		day := g.start.AddDate(0, 0, f.IntRange(0, g.days-1)).Truncate(24 * time.Hour)
		starts[i] = day.Add(time.Duration(f.IntRange(5*60, 21*60)) * time.Minute).
			Add(time.Duration(f.IntRange(0, 59)) * time.Second)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	m := Manifest{Seed: g.seed, Rows: rows, ByCategory: map[activity.Category]int{}}
	out := activity.RawTable{Columns: append([]string(nil), Columns...), Rows: make([][]string, 0, rows)}
	id := int64(f.IntRange(1_000_000_000, 2_000_000_000))
	for i, start := range starts {
		id += int64(f.IntRange(1, 900))
		row, category := g.row(f, id, start)
		switch {
		case g.noise > 0 && chance(f) < g.noise/2:
			row[3] = f.RandomString(unknownLabels)
			m.Unrecognized++
		case g.noise > 0 && chance(f) < g.noise/2:
			row[1] = "not a date"
			m.BadDates++
		default:
			m.ByCategory[category]++
			if m.First.IsZero() {
				m.First = start
			}
			m.Last = start
		}
		out.Rows = append(out.Rows, row)
		if i%1_000 == 0 && ctx.Err() != nil {
			break
		}
	}
	m.Rows = len(out.Rows)

	g.log.Debug(ctx, "generated synthetic export",
		logger.Int("rows", m.Rows),
		logger.Int("unrecognized", m.Unrecognized),
		logger.Int("badDates", m.BadDates))
	return out, m
}

// chance draws uniformly from [0, 1). Faker.Float64 spans the whole float64
// range and cannot be used as a probability.
func chance(f *gofakeit.Faker) float64 {
	return f.Float64Range(0, 1)
}

func (g *Generator) pick(f *gofakeit.Faker) profile {
	r := chance(f)
	for _, p := range profiles {
		if r < p.weight {
			return p
		}
		r -= p.weight
	}
	return profiles[0]
}

// row builds one export row in Columns order.
func (g *Generator) row(f *gofakeit.Faker, id int64, start time.Time) ([]string, activity.Category) {
	p := g.pick(f)
	label := f.RandomString(p.labels)
	category := resolve(label)

	var km, seconds float64
	if p.maxKm > 0 {
		km = f.Float64Range(p.minKm, p.maxKm)
		seconds = km * f.Float64Range(p.minPace, p.maxPace)
	} else {
		seconds = f.Float64Range(p.minSec, p.maxSec)
	}

	row := make([]string, len(Columns))
	row[0] = strconv.FormatInt(id, 10)
	row[1] = start.Format(ExportLayout)
	row[2] = name(f, label, start)
	row[3] = label
	row[5] = strconv.Itoa(int(seconds))
	if km > 0 {
		meters := km * 1_000
		row[4] = fixed(km, 2)
		row[10] = fixed(meters, 1)
		row[6] = fixed(meters/seconds*f.Float64Range(1.4, 2.2), 3)
		row[7] = fixed(km*f.Float64Range(0, p.climb), 1)
		if category == activity.Ride && chance(f) < 0.3 {
			row[11] = fixed(meters*f.Float64Range(0.05, 0.6), 1)
		}
	} else {
		row[4], row[10] = "0", "0"
	}
	if chance(f) < 0.8 {
		row[8] = fixed(f.Float64Range(105, 172), 1)
	}
	if len(p.gear) > 0 && chance(f) < 0.9 {
		row[9] = f.RandomString(p.gear)
	}
	if chance(f) < 0.4 {
		row[12] = fixed(f.Float64Range(0.55, 1.15), 2)
	}
	if chance(f) < 0.7 {
		row[13] = strconv.Itoa(f.IntRange(1, 6))
		row[14] = fixed(temperature(f, start.Month()), 1)
		row[15] = fixed(f.Float64Range(0.3, 0.95), 2)
		row[16] = fixed(f.Float64Range(0, 12), 1)
		row[17] = sunrise(start).Format(ExportLayout)
	}
	return row, category
}

func resolve(label string) activity.Category {
	switch label {
	case "Virtual Ride":
		return activity.Ride
	case "Trail Run":
		return activity.Run
	case "Football (Soccer)":
		return activity.Football
	case "Workout":
		return activity.Padel
	}
	return activity.Category(label)
}

func name(f *gofakeit.Faker, label string, start time.Time) string {
	if chance(f) < 0.25 {
		return fmt.Sprintf("%s %s in %s", f.Adjective(), label, f.City())
	}
	switch h := start.Hour(); {
	case h < 11:
		return "Morning " + label
	case h < 14:
		return "Lunch " + label
	case h < 18:
		return "Afternoon " + label
	default:
		return "Evening " + label
	}
}

// temperature follows a northern hemisphere season curve.
func temperature(f *gofakeit.Faker, m time.Month) float64 {
	base := []float64{1, 2, 6, 10, 15, 19, 22, 21, 17, 11, 6, 2}[m-1]
	return base + f.Float64Range(-5, 5)
}

func sunrise(day time.Time) time.Time {
	minutes := []int{480, 450, 400, 390, 345, 320, 330, 370, 410, 450, 430, 470}[day.Month()-1]
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, minutes, 0, 0, time.UTC)
}

func fixed(v float64, prec int) string { return strconv.FormatFloat(v, 'f', prec, 64) }
