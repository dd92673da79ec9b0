package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/thermowatch/internal/config"
	"codeberg.org/mutker/thermowatch/internal/errors"
	"codeberg.org/mutker/thermowatch/internal/logger"
	"github.com/spf13/cobra"
)

// Version info (set by ldflags)
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "thermowatch",
		Short: "Rolling-window telemetry buffer with threshold alarms",
		Long: `thermowatch keeps the last few hours of sensor readings in memory, serves
them over HTTP with a live dashboard, and flags readings above the configured
temperature thresholds.

  thermowatch serve   Run the ingest/query server
  thermowatch agent   Sample a local GPU and forward readings to a server`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newServeCmd(),
		newAgentCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "thermowatch", version)
		},
	}
}

// loadConfig reads configuration for cmd and initializes logging from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.WithFlags(cmd.Flags()))
	if err != nil {
		return nil, err
	}

	opts, err := cfg.LoggerOptions()
	if err != nil {
		return nil, err
	}
	logger.Init(opts)

	logger.Debug().Str("file", cfg.File).Msg("Config loaded")

	return cfg, nil
}

func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		logger.Info().Msg("Received termination signal.")
		cancel()
	case <-ctx.Done():
	}
}

func logFailure(err error, msg string) {
	var e errors.Error
	if errors.As(err, &e) {
		logger.ErrorWithCode(e).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}
