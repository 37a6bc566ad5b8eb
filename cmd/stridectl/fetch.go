package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/okian/stride/internal/adapters/source"
	"github.com/okian/stride/pkg/logger"
)

func newFetchCmd(g *globals) *cobra.Command {
	var token, out, baseURL string
	var perPage, maxPages int

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download Strava activities into an export-shaped CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if token == "" {
				token = g.cfg.StravaToken
			}
			if token == "" {
				return errors.New("--token is required (or set STRIDE_STRAVA_TOKEN)")
			}
			if baseURL == "" {
				baseURL = g.cfg.StravaBaseURL
			}
			if perPage == 0 {
				perPage = g.cfg.StravaPerPage
			}
			if maxPages == 0 {
				maxPages = g.cfg.StravaMaxPages
			}

			client := source.NewStravaClient(token,
				source.WithBaseURL(baseURL),
				source.WithPaging(perPage, maxPages),
				source.WithStravaLogger(logger.Named("strava")))
			raw, err := client.Fetch(cmd.Context())
			if err != nil {
				return err
			}

			w, closeOut, err := output(cmd, out)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, closeOut()) }()
			if err := source.WriteCSV(w, raw); err != nil {
				return err
			}
			if out != "" && out != "-" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d activities to %s\n", len(raw.Rows), out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Strava access token")
	cmd.Flags().StringVar(&out, "out", "-", "CSV file to write, - for stdout")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Strava API root (default from config)")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "activities per page (default from config)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "page limit (default from config)")
	return cmd
}
