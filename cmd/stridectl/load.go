package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/okian/stride/internal/synth"
	"github.com/okian/stride/pkg/logger"
)

func newLoadCmd(_ *globals) *cobra.Command {
	var (
		cfg   synth.LoadConfig
		seed  int64
		noise float64
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load test a running service with synthetic exports",
		Long: `Submits generated exports to POST /runs concurrently, waits for
every accepted run to finish and checks the reported row counts against
what was generated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !quiet {
				bar := progressbar.Default(int64(cfg.Runs), "runs")
				cfg.Progress = func() { _ = bar.Add(1) }
				defer func() { _ = bar.Finish() }()
			}
			gen := synth.New(synth.WithSeed(seed), synth.WithNoise(noise))
			stats, err := synth.RunLoad(cmd.Context(), cfg, gen, logger.Named("load"))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(),
				"submitted %d, accepted %d, rejected %d, done %d, failed %d, verified %d in %s (%.1f runs/s)\n",
				stats.Submitted, stats.Accepted, stats.Rejected, stats.Done, stats.Failed, stats.Verified,
				stats.Duration.Round(time.Millisecond), stats.RunsPerSecond())
			return err
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	cmd.Flags().IntVar(&cfg.Runs, "runs", synth.DefaultLoadRuns, "number of exports to submit")
	cmd.Flags().IntVar(&cfg.Rows, "rows", synth.DefaultRows, "rows per export")
	cmd.Flags().IntVar(&cfg.Workers, "workers", runtime.NumCPU(), "concurrent submitters")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", synth.DefaultLoadTimeout, "HTTP request timeout")
	cmd.Flags().DurationVar(&cfg.RunDeadline, "run-deadline", synth.DefaultRunDeadline, "longest wait for one run")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed, 0 for a random one")
	cmd.Flags().Float64Var(&noise, "noise", 0.05, "share of noisy rows per export")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "hide the progress bar")
	return cmd
}
