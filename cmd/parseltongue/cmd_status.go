package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace, store path, and graph size",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		pending := len(app.overlay.Changeset())

		fmt.Println("Parseltongue status")
		fmt.Println("====================")
		fmt.Printf("workspace:        %s\n", app.workspace)
		fmt.Printf("store path:       %s\n", app.cfg.Store.Path)
		fmt.Printf("entities:         %d\n", app.graph.Len())
		fmt.Printf("pending changes:  %d\n", pending)
		fmt.Printf("query max hops:   %d\n", app.cfg.Query.MaxHops)
		fmt.Printf("ingest concurrency: %d\n", app.cfg.Ingest.Concurrency)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every persisted fact and in-memory entity (O1: destructive, no undo log)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		if err := app.store.Reset(ctx); err != nil {
			return &storeError{err: fmt.Errorf("reset store: %w", err)}
		}
		app.graph.Reset()
		fmt.Println("reset complete: store and graph cleared")
		return nil
	},
}
