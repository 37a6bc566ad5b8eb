// Package pipeline runs the analysis stages in order: normalize, filter by
// date, derive calendar fields, build per-sport views, then aggregate, rank
// and compute training load.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/aggregate"
	"github.com/okian/stride/internal/domain/calendar"
	"github.com/okian/stride/internal/domain/load"
	"github.com/okian/stride/internal/domain/predict"
	"github.com/okian/stride/internal/domain/schema"
	"github.com/okian/stride/internal/domain/sport"
	"github.com/okian/stride/pkg/logger"
	"github.com/okian/stride/pkg/metrics"
)

// Stage names used in metrics and diagnostics.
const (
	StageNormalize = "normalize"
	StageRange     = "range"
	StageCalendar  = "calendar"
	StageSport     = "sport"
	StageAggregate = "aggregate"
	StageLoad      = "load"
)

// Diagnostics describes what a run dropped or could not compute.
type Diagnostics struct {
	Report    activity.Report `json:"report"`
	RowErrors map[string]int  `json:"row_errors"`
	Duration  time.Duration   `json:"duration_ns"`

	// ViewErrors counts masked metrics per sport view.
	ViewErrors map[activity.Category]int `json:"view_errors,omitempty"`
}

// Result is everything derived from one export.
type Result struct {
	Range       activity.DateRange                                      `json:"range"`
	Table       activity.Table                                          `json:"-"`
	Views       sport.Views                                             `json:"views"`
	Monthly     map[activity.Category][]aggregate.SeriesPoint           `json:"monthly"`
	Weekly      map[activity.Category][]aggregate.SeriesPoint           `json:"weekly"`
	Rankings    map[activity.Category]map[aggregate.RankKey][]sport.Row `json:"rankings"`
	ByCategory  []aggregate.CategoryTotal                               `json:"by_category"`
	Totals      []aggregate.SportTotal                                  `json:"totals"`
	Gear        map[activity.Category][]aggregate.GearSummary           `json:"gear"`
	Heatmap     aggregate.Heatmap                                       `json:"heatmap"`
	Weather     aggregate.Weather                                       `json:"weather"`
	Predictions []predict.Prediction                                    `json:"predictions"`
	Load        load.Series                                             `json:"load"`
	Diagnostics Diagnostics                                             `json:"diagnostics"`

	// RollingWindow is the window used for series built on demand.
	RollingWindow int `json:"rolling_window"`
}

// SeriesFor builds the gap-filled series of one category at any period.
func (r Result) SeriesFor(c activity.Category, p calendar.Period) []aggregate.SeriesPoint {
	return aggregate.Series(r.Views[c].Rows, aggregate.SeriesOptions{Period: p, Category: c, Window: r.RollingWindow})
}

// RowErr combines every contained row error of the run, or nil.
func (r Result) RowErr() error {
	var err error
	for _, v := range r.Views.Ordered() {
		err = multierr.Append(err, v.Err())
	}
	return multierr.Append(err, r.Load.Err())
}

// Run executes every stage over raw. Schema, empty-result and date range
// errors abort the run; row errors are collected in the result.
func Run(ctx context.Context, raw activity.RawTable, opts Options) (Result, error) {
	opts = opts.withDefaults()
	log := opts.Logger
	began := time.Now()

	res, err := run(ctx, raw, opts)
	elapsed := time.Since(began)
	if err != nil {
		metrics.RecordPipelineRun(Outcome(err), float64(elapsed.Milliseconds()))
		log.Warn(ctx, "pipeline run failed", logger.Error(err), logger.Duration("elapsed", elapsed))
		return Result{}, err
	}

	res.Diagnostics.Duration = elapsed
	metrics.RecordPipelineRun(Outcome(nil), float64(elapsed.Milliseconds()))
	log.Info(ctx, "pipeline run finished",
		logger.Int("rows", res.Table.Len()),
		logger.Int("rowErrors", res.Views.ErrorCount()+len(res.Load.Errors)),
		logger.Duration("elapsed", elapsed))
	return res, nil
}

func run(ctx context.Context, raw activity.RawTable, opts Options) (Result, error) {
	log := opts.Logger
	if err := opts.Range.Validate(); err != nil {
		return Result{}, err
	}
	metrics.RecordRowsIngested(len(raw.Rows))

	var tbl activity.Table
	err := timed(StageNormalize, func() error {
		var err error
		n := schema.New(schema.WithLogger(log), schema.WithCategories(opts.Categories...))
		tbl, err = n.Normalize(ctx, raw)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	metrics.RecordRowsDropped("category", tbl.Report.DroppedCategory)
	metrics.RecordRowsDropped("timestamp", tbl.Report.DroppedTimestamp)

	rng := opts.Range
	if rng.IsZero() && !opts.DefaultStart.IsZero() {
		rng = activity.DefaultRange(tbl, opts.DefaultStart)
	}
	if !rng.IsZero() {
		err = timed(StageRange, func() error {
			var err error
			tbl, err = rng.Filter(tbl)
			return err
		})
		if err != nil {
			return Result{}, err
		}
		metrics.RecordRowsDropped("range", tbl.Report.DroppedRange)
	}

	_ = timed(StageCalendar, func() error {
		tbl = calendar.Augment(tbl)
		return nil
	})

	res := Result{
		Range:         rng,
		Table:         tbl,
		RollingWindow: opts.RollingWindow,
		Diagnostics: Diagnostics{
			Report:     tbl.Report,
			RowErrors:  map[string]int{},
			ViewErrors: map[activity.Category]int{},
		},
	}

	_ = timed(StageSport, func() error {
		res.Views = sport.Transform(tbl, sport.WithHeartRateWindow(opts.HRFillWindow))
		return nil
	})
	for _, v := range res.Views.Ordered() {
		metrics.UpdateViewRows(string(v.Category), len(v.Rows))
		res.Diagnostics.ViewErrors[v.Category] = len(v.Errors)
		for _, e := range v.Errors {
			log.Debug(ctx, "row metric masked", logger.Error(e))
		}
	}
	res.Diagnostics.RowErrors[StageSport] = res.Views.ErrorCount()
	metrics.RecordRowErrors(StageSport, res.Views.ErrorCount())

	_ = timed(StageAggregate, func() error {
		aggregateInto(&res, tbl, opts)
		return nil
	})

	err = timed(StageLoad, func() error {
		var err error
		res.Load, err = load.Compute(load.SortByStart(tbl.Rows),
			load.WithSpans(opts.CTLSpan, opts.ATLSpan),
			load.WithNeutralIntensity(opts.NeutralIntensity))
		return err
	})
	if err != nil {
		return Result{}, err
	}
	for _, e := range res.Load.Errors {
		log.Debug(ctx, "row skipped by load model", logger.Error(e))
	}
	res.Diagnostics.RowErrors[StageLoad] = len(res.Load.Errors)
	metrics.RecordRowErrors(StageLoad, len(res.Load.Errors))

	return res, nil
}

func aggregateInto(res *Result, tbl activity.Table, opts Options) {
	res.Monthly = map[activity.Category][]aggregate.SeriesPoint{}
	res.Weekly = map[activity.Category][]aggregate.SeriesPoint{}
	res.Rankings = map[activity.Category]map[aggregate.RankKey][]sport.Row{}
	res.Gear = map[activity.Category][]aggregate.GearSummary{}

	for _, v := range res.Views.Ordered() {
		res.Monthly[v.Category] = aggregate.Series(v.Rows, aggregate.SeriesOptions{Period: calendar.Monthly, Window: opts.RollingWindow})
		res.Weekly[v.Category] = aggregate.Series(v.Rows, aggregate.SeriesOptions{Period: calendar.Weekly, Window: opts.RollingWindow})
		ranks := map[aggregate.RankKey][]sport.Row{}
		for _, k := range aggregate.RankKeys {
			ranks[k] = aggregate.TopN(v.Rows, k, opts.TopN)
		}
		res.Rankings[v.Category] = ranks
		if g := aggregate.Gear(v.Rows); len(g) > 0 {
			res.Gear[v.Category] = g
		}
	}
	res.ByCategory = aggregate.ByCategory(tbl.Rows)
	res.Totals = aggregate.Totals(res.Views)
	res.Heatmap = aggregate.Heatmaps(tbl.Rows)
	res.Weather = aggregate.WeatherBreakdown(tbl.Rows)
	res.Predictions = predict.Predict(res.Views[activity.Run].Rows)
}

// Outcome classifies a run error for metrics and status reporting.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, activity.ErrSchema):
		return "schema_error"
	case errors.Is(err, activity.ErrEmptyResult):
		return "empty"
	case errors.Is(err, activity.ErrDateRange):
		return "range_error"
	default:
		return "error"
	}
}

func timed(stage string, fn func() error) error {
	began := time.Now()
	err := fn()
	metrics.RecordStageLatency(stage, float64(time.Since(began).Microseconds())/1000)
	return err
}
