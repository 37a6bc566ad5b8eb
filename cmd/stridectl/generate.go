package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/okian/stride/internal/adapters/source"
	"github.com/okian/stride/internal/synth"
	"github.com/okian/stride/pkg/logger"
)

func newGenerateCmd(_ *globals) *cobra.Command {
	var (
		rows  int
		seed  int64
		days  int
		noise float64
		start string
		out   string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			opts := []synth.Option{
				synth.WithSeed(seed),
				synth.WithDays(days),
				synth.WithNoise(noise),
				synth.WithLogger(logger.Named("synth")),
			}
			if start != "" {
				t, err := time.Parse("2006-01-02", start)
				if err != nil {
					return fmt.Errorf("--start must be YYYY-MM-DD: %w", err)
				}
				opts = append(opts, synth.WithStart(t))
			}
			raw, m := synth.New(opts...).Table(cmd.Context(), rows)

			w, closeOut, err := output(cmd, out)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, closeOut()) }()
			if err := source.WriteCSV(w, raw); err != nil {
				return err
			}
			if out != "" && out != "-" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows (%d valid) to %s\n", m.Rows, m.Valid(), out)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", synth.DefaultRows, "number of activities")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed, 0 for a random one")
	cmd.Flags().IntVar(&days, "days", synth.DefaultDays, "length of the generated period in days")
	cmd.Flags().Float64Var(&noise, "noise", 0, "share of rows with an unknown type or bad date")
	cmd.Flags().StringVar(&start, "start", "", "first day of the period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&out, "out", "-", "CSV file to write, - for stdout")
	return cmd
}
