package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ent0n29/saba/internal/recordstore"
)

func newWipeCmd(g *globals) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Remove every user, conversation and memory from the record store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to wipe without --yes")
			}
			cfg, log, err := g.load()
			if err != nil {
				return err
			}

			store, err := recordstore.Open(cmd.Context(), recordstore.Options{
				Backend:     cfg.StoreBackend,
				DataDir:     cfg.DataDir,
				SQLitePath:  cfg.SQLitePath,
				DatabaseURL: cfg.DatabaseURL,
				Logger:      log,
			})
			if err != nil {
				return fmt.Errorf("record store init failed: %w", err)
			}
			defer store.Close()

			if err := store.Wipe(cmd.Context()); err != nil {
				return fmt.Errorf("wipe: %w", err)
			}
			log.Info("record store wiped", "backend", store.Backend())
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the wipe")

	return cmd
}
