package main

import (
	"github.com/spf13/cobra"

	"github.com/ent0n29/saba/internal/app"
)

func newTaskSvcCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tasksvc",
		Short: "Run the task service and reminder sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}

			svc, err := app.BuildTaskService(cmd.Context(), cfg, log, nil)
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Close(); err != nil {
					log.Warn("task service close failed", "err", err)
				}
			}()

			return svc.Run(cmd.Context())
		},
	}
}
