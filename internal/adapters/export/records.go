package export

import (
	"strconv"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/load"
	"github.com/okian/stride/internal/domain/sport"
)

const timeLayout = "2006-01-02 15:04:05"

type activityRecord struct {
	Index         int64    `parquet:"name=index, type=INT64" json:"index"`
	ID            string   `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8" json:"id"`
	Category      string   `parquet:"name=category, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY" json:"category"`
	Start         string   `parquet:"name=start, type=BYTE_ARRAY, convertedtype=UTF8" json:"start"`
	MovingTime    float64  `parquet:"name=moving_time_s, type=DOUBLE" json:"moving_time_s"`
	Distance      float64  `parquet:"name=distance_m, type=DOUBLE" json:"distance_m"`
	ElevationGain float64  `parquet:"name=elevation_gain_m, type=DOUBLE" json:"elevation_gain_m"`
	AvgHeartRate  *float64 `parquet:"name=avg_heart_rate, type=DOUBLE, repetitiontype=OPTIONAL" json:"avg_heart_rate,omitempty"`
	Gear          string   `parquet:"name=gear, type=BYTE_ARRAY, convertedtype=UTF8" json:"gear"`
	Hour          int32    `parquet:"name=hour, type=INT32" json:"hour"`
	YearMonth     string   `parquet:"name=year_month, type=BYTE_ARRAY, convertedtype=UTF8" json:"year_month"`
	YearWeek      string   `parquet:"name=year_week, type=BYTE_ARRAY, convertedtype=UTF8" json:"year_week"`
	DayOfWeek     int32    `parquet:"name=day_of_week, type=INT32" json:"day_of_week"`
	Quarter       int32    `parquet:"name=quarter, type=INT32" json:"quarter"`
	IsWeekend     bool     `parquet:"name=is_weekend, type=BOOLEAN" json:"is_weekend"`
}

func (activityRecord) header() []string {
	return []string{"index", "id", "category", "start", "moving_time_s", "distance_m", "elevation_gain_m",
		"avg_heart_rate", "gear", "hour", "year_month", "year_week", "day_of_week", "quarter", "is_weekend"}
}

func (r activityRecord) values() []string {
	return []string{
		strconv.FormatInt(r.Index, 10), r.ID, r.Category, r.Start,
		num(r.MovingTime), num(r.Distance), num(r.ElevationGain), opt(r.AvgHeartRate), r.Gear,
		strconv.Itoa(int(r.Hour)), r.YearMonth, r.YearWeek,
		strconv.Itoa(int(r.DayOfWeek)), strconv.Itoa(int(r.Quarter)), strconv.FormatBool(r.IsWeekend),
	}
}

func activityRecords(tbl activity.Table) []activityRecord {
	out := make([]activityRecord, 0, tbl.Len())
	for _, a := range tbl.Rows {
		c := a.Calendar
		out = append(out, activityRecord{
			Index:         int64(a.Index),
			ID:            a.ID,
			Category:      string(a.Category),
			Start:         a.Start.Format(timeLayout),
			MovingTime:    a.MovingTime,
			Distance:      a.Distance,
			ElevationGain: a.ElevationGain,
			AvgHeartRate:  a.AvgHeartRate,
			Gear:          a.Gear,
			Hour:          int32(c.Hour),
			YearMonth:     c.YearMonth.String(),
			YearWeek:      c.YearWeek,
			DayOfWeek:     int32(c.DayOfWeek),
			Quarter:       int32(c.Quarter),
			IsWeekend:     c.IsWeekend,
		})
	}
	return out
}

type viewRecord struct {
	Index          int64    `parquet:"name=index, type=INT64" json:"index"`
	Category       string   `parquet:"name=category, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY" json:"category"`
	Start          string   `parquet:"name=start, type=BYTE_ARRAY, convertedtype=UTF8" json:"start"`
	DistanceKm     float64  `parquet:"name=distance_km, type=DOUBLE" json:"distance_km"`
	Duration       float64  `parquet:"name=duration, type=DOUBLE" json:"duration"`
	Speed          *float64 `parquet:"name=speed_kmh, type=DOUBLE, repetitiontype=OPTIONAL" json:"speed_kmh,omitempty"`
	Pace           *float64 `parquet:"name=pace, type=DOUBLE, repetitiontype=OPTIONAL" json:"pace,omitempty"`
	ElevationPerKm *float64 `parquet:"name=elevation_per_km, type=DOUBLE, repetitiontype=OPTIONAL" json:"elevation_per_km,omitempty"`
	DirtKm         *float64 `parquet:"name=dirt_km, type=DOUBLE, repetitiontype=OPTIONAL" json:"dirt_km,omitempty"`
	PavedKm        *float64 `parquet:"name=paved_km, type=DOUBLE, repetitiontype=OPTIONAL" json:"paved_km,omitempty"`
	HeartRate      *float64 `parquet:"name=heart_rate, type=DOUBLE, repetitiontype=OPTIONAL" json:"heart_rate,omitempty"`
}

func (viewRecord) header() []string {
	return []string{"index", "category", "start", "distance_km", "duration", "speed_kmh", "pace",
		"elevation_per_km", "dirt_km", "paved_km", "heart_rate"}
}

func (r viewRecord) values() []string {
	return []string{
		strconv.FormatInt(r.Index, 10), r.Category, r.Start, num(r.DistanceKm), num(r.Duration),
		opt(r.Speed), opt(r.Pace), opt(r.ElevationPerKm), opt(r.DirtKm), opt(r.PavedKm), opt(r.HeartRate),
	}
}

func viewRecords(v sport.View) []viewRecord {
	out := make([]viewRecord, 0, len(v.Rows))
	for _, r := range v.Rows {
		out = append(out, viewRecord{
			Index:          int64(r.Index),
			Category:       string(r.Category),
			Start:          r.Start.Format(timeLayout),
			DistanceKm:     r.DistanceKm,
			Duration:       r.Duration,
			Speed:          r.Speed,
			Pace:           r.Pace,
			ElevationPerKm: r.ElevationPerKm,
			DirtKm:         r.DirtKm,
			PavedKm:        r.PavedKm,
			HeartRate:      r.HeartRate,
		})
	}
	return out
}

type loadRecord struct {
	Index    int64   `parquet:"name=index, type=INT64" json:"index"`
	Start    string  `parquet:"name=start, type=BYTE_ARRAY, convertedtype=UTF8" json:"start"`
	Category string  `parquet:"name=category, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY" json:"category"`
	Effort   float64 `parquet:"name=effort, type=DOUBLE" json:"effort"`
	CTL      float64 `parquet:"name=ctl, type=DOUBLE" json:"ctl"`
	ATL      float64 `parquet:"name=atl, type=DOUBLE" json:"atl"`
	TSB      float64 `parquet:"name=tsb, type=DOUBLE" json:"tsb"`
	Form     string  `parquet:"name=form, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY" json:"form"`
}

func (loadRecord) header() []string {
	return []string{"index", "start", "category", "effort", "ctl", "atl", "tsb", "form"}
}

func (r loadRecord) values() []string {
	return []string{
		strconv.FormatInt(r.Index, 10), r.Start, r.Category,
		num(r.Effort), num(r.CTL), num(r.ATL), num(r.TSB), r.Form,
	}
}

func loadRecords(s load.Series) []loadRecord {
	out := make([]loadRecord, 0, len(s.Points))
	for _, p := range s.Points {
		out = append(out, loadRecord{
			Index:    int64(p.Index),
			Start:    p.Start.Format(timeLayout),
			Category: string(p.Category),
			Effort:   p.Effort,
			CTL:      p.CTL,
			ATL:      p.ATL,
			TSB:      p.TSB,
			Form:     p.Form,
		})
	}
	return out
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func opt(p *float64) string {
	if p == nil {
		return ""
	}
	return num(*p)
}

