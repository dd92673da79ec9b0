package main

import (
	"context"

	"codeberg.org/mutker/thermowatch/internal/alarm"
	"codeberg.org/mutker/thermowatch/internal/buffer"
	"codeberg.org/mutker/thermowatch/internal/config"
	"codeberg.org/mutker/thermowatch/internal/ingest"
	"codeberg.org/mutker/thermowatch/internal/logger"
	"codeberg.org/mutker/thermowatch/internal/metrics"
	"codeberg.org/mutker/thermowatch/internal/query"
	"codeberg.org/mutker/thermowatch/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept readings over HTTP and serve queries and the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer logger.Close()

			return runServe(cmd.Context(), cfg)
		},
	}

	config.BindServerFlags(cmd.Flags())

	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	rec, err := metrics.New(cfg.Metrics)
	if err != nil {
		return err
	}

	buf := buffer.New(cfg.Retention.Window)
	ing := ingest.New(buf, ingest.WithRecorder(rec))
	q := query.New(buf, alarm.NewEvaluator(cfg.Alarm),
		query.WithRecorder(rec),
		query.WithDefaultWindow(cfg.Retention.DefaultQuery),
	)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	srv, err := server.New(server.Config{
		Listen:          cfg.Server.Listen,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		MetricsPath:     metricsPath,
		Title:           cfg.Dashboard.Title,
		PollInterval:    cfg.Dashboard.PollInterval,
	}, ing, q, rec)
	if err != nil {
		return err
	}

	logger.Info().
		Dur("retention", buf.Retention()).
		Dur("default_window", q.DefaultWindow()).
		Float64("temperature_threshold", cfg.Alarm.Temperature).
		Float64("ambient_threshold", cfg.Alarm.Ambient).
		Msg("Starting server")

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go handleSignals(ctx, cancel)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return ing.RunSweeper(gctx, cfg.Retention.SweepInterval)
	})

	if err := g.Wait(); err != nil {
		logFailure(err, "Server stopped with error")
		return err
	}

	logger.Info().Msg("Exiting...")
	return nil
}
