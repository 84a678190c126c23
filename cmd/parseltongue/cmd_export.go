package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	exportLevel       int
	exportWhere       string
	exportIncludeCode bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render a progressive Level 0/1/2 export document as JSON",
	Long: `Export renders the graph as a JSON document:
  level 0 - edges only
  level 1 - entities with forward/reverse deps, filtered by --where
  level 2 - level 1 plus derived type flags (is_async, is_unsafe, ...)

--where takes a predicate: ALL, an equality ("kind = \"Function\""),
membership ("kind in (\"Function\", \"Struct\")"), or a boolean
combination with "and"/"or"/"not".`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().IntVar(&exportLevel, "level", 1, "Export level (0, 1, or 2)")
	exportCmd.Flags().StringVar(&exportWhere, "where", "ALL", "Predicate filter")
	exportCmd.Flags().BoolVar(&exportIncludeCode, "include-code", false, "Include current_code/future_code (Level 1/2 only)")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext(cmd)
	defer cancel()
	app, closer, err := newAppContext(ctx)
	if err != nil {
		return err
	}
	defer closer()

	doc, err := app.exporter.Export(exportLevel, exportWhere, exportIncludeCode, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return &invalidArgumentsError{err: fmt.Errorf("export: %w", err)}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export document: %w", err)
	}
	return nil
}
