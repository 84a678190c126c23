package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"parseltongue/internal/ingest"
	"parseltongue/internal/isg"
	"parseltongue/internal/temporal"
)

var (
	futureCode     string
	futureCodeFile string
	createFilePath string
	createName     string
	createKind     string
	commitRoot     string
)

var editCmd = &cobra.Command{
	Use:   "edit <key>",
	Short: "Stage an Edit: set future_code on an entity in state (T,T,*)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := resolveCode()
		if err != nil {
			return &invalidArgumentsError{err: err}
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		if err := app.overlay.Edit(ctx, args[0], code); err != nil {
			return classifyEntityError(err)
		}
		fmt.Printf("edit pending on %s\n", args[0])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Stage a Delete: future_ind=false, future_action=Delete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		if err := app.overlay.Delete(ctx, args[0]); err != nil {
			return classifyEntityError(err)
		}
		fmt.Printf("delete pending on %s\n", args[0])
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Stage a Create: a new entity at a hash-based key, pending Create",
	RunE: func(cmd *cobra.Command, args []string) error {
		if createFilePath == "" || createName == "" || createKind == "" {
			return &invalidArgumentsError{err: fmt.Errorf("create requires --file, --name, and --kind")}
		}
		code, err := resolveCode()
		if err != nil {
			return &invalidArgumentsError{err: err}
		}

		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		key, err := app.overlay.Create(ctx, createFilePath, createName, isg.Kind(createKind), code)
		if err != nil {
			return classifyEntityError(err)
		}
		fmt.Printf("create pending at %s\n", key)
		return nil
	},
}

var revertCmd = &cobra.Command{
	Use:   "revert <key>",
	Short: "Revert a pending Edit/Delete to clean, or drop a pending Create",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		if err := app.overlay.Revert(ctx, args[0]); err != nil {
			return classifyEntityError(err)
		}
		fmt.Printf("reverted %s\n", args[0])
		return nil
	},
}

var changesetCmd = &cobra.Command{
	Use:   "changeset",
	Short: "Print every entity with a pending future_action, as the §6 change-set document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		changes := app.overlay.Changeset()
		doc := temporal.BuildChangesetDocument(changes, time.Now().UTC().Format(time.RFC3339), uuid.New().String())

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "commit_and_reindex: drop all temporal state and re-ingest from disk",
	Long: `Commit assumes an external applier has already written this
session's changeset to disk at --project-root. It then resets both the
persistent store and the in-memory graph and re-ingests from scratch,
which is the only way a hash-based key is ever rewritten (I4/O4).

The reset is workspace-wide (O1: no preserved undo metadata, by design),
but the re-ingest walks only --project-root. Passing a subdirectory of
the workspace there, rather than the workspace root itself, permanently
drops every entity and edge outside that subdirectory: the store and
graph have already been wiped by the time re-ingestion starts. Use
--project-root only to point at a project root that differs from the
workspace, never to scope the re-ingest to part of it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		app, closer, err := newAppContext(ctx)
		if err != nil {
			return err
		}
		defer closer()

		root := commitRoot
		if root == "" {
			root = app.workspace
		}

		report, err := app.overlay.CommitAndReindex(ctx, root, ingest.Options{
			Concurrency:  app.cfg.Ingest.Concurrency,
			ExcludeTests: app.cfg.Ingest.ExcludeTests,
		})
		if err != nil {
			return &storeError{err: err}
		}

		fmt.Printf("commit_and_reindex complete: %d entities, %d edges\n", report.EntitiesIngested, report.EdgesIngested)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{editCmd, createCmd} {
		c.Flags().StringVar(&futureCode, "code", "", "Future code, inline")
		c.Flags().StringVar(&futureCodeFile, "code-file", "", "Path to a file containing the future code")
	}
	createCmd.Flags().StringVar(&createFilePath, "file", "", "File path the new entity belongs to")
	createCmd.Flags().StringVar(&createName, "name", "", "Entity name")
	createCmd.Flags().StringVar(&createKind, "kind", "", "Entity kind (Function, Struct, Method, ...)")
	commitCmd.Flags().StringVar(&commitRoot, "project-root", "", "Full project root to re-ingest from after the workspace-wide reset (default: workspace). Not a subtree scope: anything outside it is permanently dropped.")
}

func resolveCode() (string, error) {
	if futureCodeFile != "" {
		data, err := os.ReadFile(futureCodeFile)
		if err != nil {
			return "", fmt.Errorf("read --code-file %s: %w", futureCodeFile, err)
		}
		return string(data), nil
	}
	if futureCode != "" {
		return futureCode, nil
	}
	return "", fmt.Errorf("one of --code or --code-file is required")
}
