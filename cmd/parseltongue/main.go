// Package main implements the parseltongue CLI: the operational surface
// over components D-I (graph, store, ingestion, query, temporal overlay,
// export). Command implementations are split across cmd_*.go files.
//
// File index:
//   - main.go          - entry point, rootCmd, global flags, app bootstrap
//   - cmd_ingest.go    - ingest
//   - cmd_query.go     - query forward|reverse|blast-radius|closure|contains|implements|cycles
//   - cmd_export.go    - export
//   - cmd_temporal.go  - edit, delete, create, revert, changeset, commit
//   - cmd_status.go    - status, reset
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"parseltongue/internal/adapter"
	"parseltongue/internal/config"
	"parseltongue/internal/export"
	"parseltongue/internal/ingest"
	"parseltongue/internal/isg"
	"parseltongue/internal/plog"
	"parseltongue/internal/query"
	"parseltongue/internal/store"
	"parseltongue/internal/temporal"
)

// Exit codes, normative per the spec's external-interface contract (§6):
// 0 success, 1 general error, 2 invalid arguments, 3 store error,
// 4 validation/invariant error.
const (
	exitSuccess          = 0
	exitGeneralError     = 1
	exitInvalidArguments = 2
	exitStoreError       = 3
	exitInvariantError   = 4
)

var (
	workspace  string
	verbose    bool
	configPath string
	timeout    time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "parseltongue",
	Short: "Parseltongue - an Interface Signature Graph engine for codebases",
	Long: `Parseltongue builds and maintains an Interface Signature Graph (ISG)
over a codebase: an in-memory graph for hot queries, a persistent
Datalog-queryable store for unbounded transitive closures, and a temporal
overlay for staging Create/Edit/Delete changes before they are committed
back into source.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		ws := resolveWorkspace()
		cfg, err := config.Load(resolveConfigPath(ws))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		plogCfg := cfg.PlogConfig()
		if verbose {
			plogCfg.Level = "debug"
		}
		if err := plog.Initialize(plogCfg); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		plog.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Project workspace directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug-level logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default: <workspace>/.parseltongue/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(
		ingestCmd,
		queryCmd,
		exportCmd,
		editCmd,
		deleteCmd,
		createCmd,
		revertCmd,
		changesetCmd,
		commitCmd,
		statusCmd,
		resetCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a returned error to the normative exit code (§6). Each
// command's RunE wraps its own failure classes in one of the sentinel
// wrapper types below so this mapping stays in one place.
func exitCodeFor(err error) int {
	switch err.(type) {
	case *invalidArgumentsError:
		return exitInvalidArguments
	case *storeError:
		return exitStoreError
	case *invariantError:
		return exitInvariantError
	default:
		return exitGeneralError
	}
}

// invalidArgumentsError wraps a CLI-input validation failure (exit 2).
type invalidArgumentsError struct{ err error }

func (e *invalidArgumentsError) Error() string { return e.err.Error() }
func (e *invalidArgumentsError) Unwrap() error { return e.err }

// storeError wraps a persistent-store failure (exit 3).
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

// invariantError wraps an ISG data-model invariant violation (exit 4),
// raised by isg.Entity.Validate, isg.Graph.PutEntity/PutEdge, or
// internal/temporal's state-machine guards.
type invariantError struct{ err error }

func (e *invariantError) Error() string { return e.err.Error() }
func (e *invariantError) Unwrap() error { return e.err }

// classifyEntityError picks the right wrapper for an error surfaced by the
// graph/temporal layers, where invariant and not-found errors are common.
func classifyEntityError(err error) error {
	if err == nil {
		return nil
	}
	switch err.(type) {
	case *isg.InvariantError, *isg.ErrDuplicateKey, *isg.ErrDuplicateEdge, *isg.ErrDanglingEdge,
		*temporal.ErrInvalidTransition, *temporal.ErrFutureCodeEqualsCurrent, *temporal.ErrKeyCollision:
		return &invariantError{err: err}
	case *isg.ErrUnknownEntity, *temporal.ErrEntityNotFound:
		return &invalidArgumentsError{err: err}
	case *query.ErrInvalidParameter:
		return &invalidArgumentsError{err: err}
	default:
		return err
	}
}

func resolveWorkspace() string {
	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
		return ws
	}
	if abs, err := filepath.Abs(ws); err == nil {
		return abs
	}
	return ws
}

func resolveConfigPath(ws string) string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(ws, ".parseltongue", "config.yaml")
}

// appContext wires every component the CLI commands operate on, built
// fresh for each invocation (commands are one-shot processes; state
// survives only in the store, per §4.E).
type appContext struct {
	workspace string
	cfg       *config.Config
	graph     *isg.Graph
	store     *store.Store
	registry  *adapter.Registry
	pipeline  *ingest.Pipeline
	queryEng  *query.Engine
	overlay   *temporal.Overlay
	exporter  *export.Exporter
}

// newAppContext opens the store, rebuilds the in-memory graph from it
// (the graph itself does not persist across process invocations), and
// wires the rest of the component stack around it. The returned closer
// must be called to release the store's database handle.
func newAppContext(ctx context.Context) (*appContext, func(), error) {
	ws := resolveWorkspace()
	cfg, err := config.Load(resolveConfigPath(ws))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	storePath := cfg.Store.Path
	if !filepath.IsAbs(storePath) {
		storePath = filepath.Join(ws, storePath)
	}
	st, err := store.Open(ctx, storePath)
	if err != nil {
		return nil, nil, &storeError{err: fmt.Errorf("open store at %s: %w", storePath, err)}
	}

	graph := isg.NewGraph()
	if err := rebuildGraphFromStore(ctx, graph, st); err != nil {
		st.Close()
		return nil, nil, &storeError{err: err}
	}

	registry := adapter.NewRegistry(
		adapter.NewGoAdapter(),
		adapter.NewPythonAdapter(),
		adapter.NewRustAdapter(),
		adapter.NewTypeScriptAdapter(),
		adapter.NewJavaScriptAdapter(),
	)
	pipeline := ingest.New(registry, graph, st)

	app := &appContext{
		workspace: ws,
		cfg:       cfg,
		graph:     graph,
		store:     st,
		registry:  registry,
		pipeline:  pipeline,
		queryEng:  query.New(graph, st, cfg.Query.MaxHops),
		overlay:   temporal.New(graph, pipeline, st),
		exporter:  export.New(graph),
	}
	closer := func() { st.Close() }
	return app, closer, nil
}

// rebuildGraphFromStore replays entity/10 and edge/3 facts back into a fresh
// in-memory graph. Edges are applied after all entities so I3 (no dangling
// endpoints) holds regardless of the store's fact-iteration order.
func rebuildGraphFromStore(ctx context.Context, graph *isg.Graph, st *store.Store) error {
	entities, err := st.AllEntities(ctx)
	if err != nil {
		return fmt.Errorf("rebuild graph: list entities: %w", err)
	}
	for i := range entities {
		if err := graph.PutEntity(&entities[i]); err != nil {
			return fmt.Errorf("rebuild graph: put entity %s: %w", entities[i].Key, err)
		}
	}

	edges, err := st.AllEdges(ctx)
	if err != nil {
		return fmt.Errorf("rebuild graph: list edges: %w", err)
	}
	for _, e := range edges {
		if err := graph.PutEdge(e); err != nil {
			if _, dup := err.(*isg.ErrDuplicateEdge); dup {
				continue
			}
			if _, dangling := err.(*isg.ErrDanglingEdge); dangling {
				continue
			}
			return fmt.Errorf("rebuild graph: put edge %s->%s: %w", e.From, e.To, err)
		}
	}
	return nil
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, timeout)
}
