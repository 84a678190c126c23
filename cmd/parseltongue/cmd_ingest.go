package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"parseltongue/internal/ingest"
	"parseltongue/internal/watch"
)

var (
	ingestExcludeTests bool
	ingestWatch        bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Walk a source tree and (re)build the Interface Signature Graph",
	Long: `Ingest parses every file under path that a registered adapter
recognizes, extracts entities and edges in two passes, and writes the
result to both the in-memory graph and the persistent store.

path defaults to the current workspace. With --watch, ingest runs once
and then keeps re-ingesting on every debounced filesystem change under
path until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestExcludeTests, "exclude-tests", false, "Drop entities classified as test code")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "Keep re-ingesting on file changes after the initial ingest")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext(cmd)
	defer cancel()

	app, closer, err := newAppContext(ctx)
	if err != nil {
		return err
	}
	defer closer()

	root := app.workspace
	if len(args) > 0 {
		root = args[0]
	}

	opts := ingest.Options{
		Concurrency:  app.cfg.Ingest.Concurrency,
		ExcludeTests: ingestExcludeTests || app.cfg.Ingest.ExcludeTests,
	}

	logger.Info("ingest starting", zap.String("root", root))
	report, err := app.pipeline.Ingest(ctx, root, opts)
	if err != nil {
		return &storeError{err: fmt.Errorf("ingest %s: %w", root, err)}
	}
	printIngestReport(root, report)

	if !ingestWatch {
		return nil
	}

	w, err := watch.New(app.pipeline, app.registry, root, opts, func(r *ingest.Report, runErr error) {
		if runErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "re-ingest failed: %v\n", runErr)
			return
		}
		printIngestReport(root, r)
	})
	if err != nil {
		return &storeError{err: fmt.Errorf("start watcher: %w", err)}
	}

	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	watchCtx, stop := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	fmt.Printf("watching %s for changes (ctrl-c to stop)\n", root)
	return w.Run(watchCtx)
}

func printIngestReport(root string, report *ingest.Report) {
	fmt.Printf("Ingested %s\n", root)
	fmt.Printf("  files scanned:    %d\n", report.FilesScanned)
	fmt.Printf("  files skipped:    %d\n", report.FilesSkipped)
	fmt.Printf("  files removed:    %d\n", report.FilesRemoved)
	fmt.Printf("  entities ingested: %d\n", report.EntitiesIngested)
	fmt.Printf("  edges ingested:    %d\n", report.EdgesIngested)
	fmt.Printf("  edges dropped:     %d\n", report.EdgesDropped)
	if len(report.Diagnostics) > 0 {
		fmt.Printf("  diagnostics:\n")
		for _, d := range report.Diagnostics {
			fmt.Printf("    %s:%d: %s\n", d.File, d.Line, d.Message)
		}
	}
}
