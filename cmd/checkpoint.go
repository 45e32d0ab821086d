package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/heavy-aggregator/internal/app"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or reset harvest progress",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the checkpoint document",
		RunE:  runCheckpointShow,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the checkpoint so the next harvest starts over",
		RunE:  runCheckpointClear,
	})
	return cmd
}

func runCheckpointShow(cmd *cobra.Command, _ []string) (err error) {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	store, closeStore, err := app.OpenCheckpoints(cmd.Context(), e.cfg.Checkpoint, e.logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeStore()) }()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(store.Load(cmd.Context())); err != nil {
		return fmt.Errorf("print checkpoint: %w", err)
	}
	return nil
}

func runCheckpointClear(cmd *cobra.Command, _ []string) (err error) {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	store, closeStore, err := app.OpenCheckpoints(cmd.Context(), e.cfg.Checkpoint, e.logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeStore()) }()

	if err := store.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "checkpoint cleared")
	return nil
}
