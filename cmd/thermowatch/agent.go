package main

import (
	"context"

	"codeberg.org/mutker/thermowatch/internal/agent"
	"codeberg.org/mutker/thermowatch/internal/config"
	"codeberg.org/mutker/thermowatch/internal/gpu"
	"codeberg.org/mutker/thermowatch/internal/logger"
	"codeberg.org/mutker/thermowatch/internal/outbox"
	"codeberg.org/mutker/thermowatch/internal/pid"
	"github.com/spf13/cobra"
)

const agentPIDName = "thermowatch-agent"

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Sample a local GPU and post readings to a thermowatch server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer logger.Close()

			return runAgent(cmd.Context(), cfg)
		},
	}

	config.BindAgentFlags(cmd.Flags())

	return cmd
}

func runAgent(parent context.Context, cfg *config.Config) error {
	pidFile := pid.New(cfg.Agent.PIDDir, agentPIDName)
	if err := pidFile.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := pidFile.Release(); err != nil {
			logFailure(err, "Failed to remove PID file")
		}
	}()

	reader, err := gpu.New(cfg.Agent.Device)
	if err != nil {
		return err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			logFailure(err, "Failed to shut down NVML")
		}
	}()

	store, err := outbox.Open(outbox.Config{DBPath: cfg.Agent.Outbox})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logFailure(err, "Failed to close outbox")
		}
	}()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go handleSignals(ctx, cancel)

	if err := agent.New(cfg.Agent, reader, store).Run(ctx); err != nil {
		logFailure(err, "Agent stopped with error")
		return err
	}

	logger.Info().Msg("Exiting...")
	return nil
}
