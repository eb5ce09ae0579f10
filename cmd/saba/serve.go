package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/saba/internal/app"
)

const serveLongDesc string = `Run the assistant API.

With --with-tasksvc the task service runs in the same process, shares its
metrics, and pushes fired reminders straight to live subscribers.`

func newServeCmd(g *globals) *cobra.Command {
	var withTaskSvc bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant API",
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			built, err := app.Build(ctx, cfg, log, nil)
			if err != nil {
				return err
			}
			defer func() {
				if err := built.Cleanup(); err != nil {
					log.Warn("record store close failed", "err", err)
				}
			}()

			if !withTaskSvc {
				return built.Run(ctx)
			}

			svc, err := app.BuildTaskService(ctx, cfg, log, built.Metrics, built.Hub)
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Close(); err != nil {
					log.Warn("task service close failed", "err", err)
				}
			}()

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				if err := built.Run(ctx); err != nil {
					return fmt.Errorf("api: %w", err)
				}
				return nil
			})
			eg.Go(func() error {
				if err := svc.Run(ctx); err != nil {
					return fmt.Errorf("tasksvc: %w", err)
				}
				return nil
			})
			return eg.Wait()
		},
	}

	cmd.Flags().BoolVar(&withTaskSvc, "with-tasksvc", false, "Also run the task service in this process")

	return cmd
}
