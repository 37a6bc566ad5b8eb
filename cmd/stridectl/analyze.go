package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/okian/stride/internal/adapters/export"
	"github.com/okian/stride/internal/adapters/source"
	service "github.com/okian/stride/internal/app"
	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/dedupe"
	"github.com/okian/stride/internal/domain/pipeline"
	"github.com/okian/stride/internal/domain/sport"
	"github.com/okian/stride/pkg/logger"
)

func newAnalyzeCmd(g *globals) *cobra.Command {
	var from, to, out, format string

	cmd := &cobra.Command{
		Use:   "analyze <file> [file...]",
		Short: "Run the analysis pipeline over .csv or .fit exports",
		Long: `Reads one or more exports, merges them, drops activities that appear in
more than one file and runs the pipeline.
A summary table is printed; with --out the normalized table, every
per-sport view and the load series are written into that directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger.Named("analyze")

			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			rng, err := activity.ParseDateRange(from, to)
			if err != nil {
				return fmt.Errorf("dates must be YYYY-MM-DD: %w", err)
			}

			tables := make([]activity.RawTable, 0, len(args))
			for _, path := range args {
				raw, err := source.ReadFile(ctx, path, source.WithLogger(log))
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				tables = append(tables, raw)
			}

			opts, err := service.PipelineOptions(g.cfg)
			if err != nil {
				return err
			}
			opts.Range = rng
			opts.Logger = log
			merged := source.Merge(tables...)
			if len(tables) > 1 {
				var dup int
				merged, dup = dedupe.Rows(ctx, dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0)), merged)
				if dup > 0 {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d duplicate activities\n", dup)
				}
			}
			res, err := pipeline.Run(ctx, merged, opts)
			if err != nil {
				return err
			}

			if err := printSummary(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if out == "" {
				return nil
			}
			paths, err := export.WriteResult(out, f, res)
			for _, p := range paths {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "wrote", p)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last date to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&out, "out", "", "directory to write result tables into")
	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv|parquet|json")
	return cmd
}

func printSummary(w io.Writer, res pipeline.Result) error {
	d := res.Diagnostics
	_, _ = fmt.Fprintf(w, "range %s .. %s, %d of %d rows kept (category %d, timestamp %d, range %d dropped)\n",
		day(res.Range.From), day(res.Range.To), res.Table.Len(), d.Report.RawRows,
		d.Report.DroppedCategory, d.Report.DroppedTimestamp, d.Report.DroppedRange)

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Sport", "Rows", "Metric", "Masked"})
	var rows [][]string
	for _, v := range res.Views.Ordered() {
		metric := ""
		if f, ok := sport.Lookup(v.Category); ok {
			metric = f.Metric + " (" + f.Unit + ")"
		}
		rows = append(rows, []string{
			v.Category.String(),
			strconv.Itoa(len(v.Rows)),
			metric,
			strconv.Itoa(d.ViewErrors[v.Category]),
		})
	}
	for _, t := range res.Totals {
		if t.Count == 0 {
			continue
		}
		rows = append(rows, []string{
			t.Category.String() + " total",
			strconv.Itoa(t.Count),
			strconv.FormatFloat(t.DistanceKm, 'f', 1, 64) + " km / " + strconv.FormatFloat(t.Hours, 'f', 1, 64) + " h",
			"",
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if p, ok := res.Load.Last(); ok {
		_, _ = fmt.Fprintf(w, "load on %s: fitness %.1f, fatigue %.1f, balance %.1f (%s)\n", day(p.Start), p.CTL, p.ATL, p.TSB, p.Form)
	}
	return nil
}

func day(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.Format("2006-01-02")
}
