// Command stridectl analyzes activity exports from the command line, fetches
// activities from Strava, generates synthetic exports and load tests a
// running stride service.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/stride/internal/config"
	"github.com/okian/stride/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globals holds the persistent flags shared by every command.
type globals struct {
	logLevel string
	cfg      *config.Config
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "stridectl",
		Short:         "Analyze fitness activity exports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.init(cmd.Context(), cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")

	root.AddCommand(newAnalyzeCmd(g))
	root.AddCommand(newFetchCmd(g))
	root.AddCommand(newGenerateCmd(g))
	root.AddCommand(newLoadCmd(g))
	return root
}

// init loads configuration and sends logs to stderr so command output on
// stdout stays clean.
func (g *globals) init(ctx context.Context, stderr io.Writer) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	g.cfg = cfg

	opts := []logger.Option{logger.WithOutput(stderr)}
	if cfg.LogFile != "" {
		opts = append(opts, logger.WithFile(cfg.LogFile))
	}
	if err := logger.Init(opts...); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	level := cfg.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	if err := logger.SetLevelString(level); err != nil {
		return err
	}
	return nil
}

// output opens path for writing; "-" or "" is stdout.
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
