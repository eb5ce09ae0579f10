package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ent0n29/saba/internal/config"
	"github.com/ent0n29/saba/internal/logger"
)

const rootLongDesc string = `SABA is a personal assistant backend: accounts, conversations,
long-term memories and reminders.

Run services using:
  saba serve                 Run the assistant API
  saba serve --with-tasksvc  Run the assistant API and the task service together
  saba tasksvc               Run just the task service
  saba wipe                  Remove all stored users, conversations and memories`

const rootShortDesc string = "SABA - personal assistant backend"

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           "saba",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to a YAML config file (default: $SABA_CONFIG)")
	cmd.PersistentFlags().BoolVarP(&g.debug, "debug", "d", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newTaskSvcCmd(g))
	cmd.AddCommand(newWipeCmd(g))

	return cmd
}

// load reads the configuration and builds the process logger.
func (g *globals) load() (config.Config, *slog.Logger, error) {
	var (
		cfg config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	if g.debug {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.FromConfig(cfg.LogLevel, cfg.LogFormat), nil
}
