// Package ingest implements the two-pass ingestion pipeline (component F):
// an entity pass that walks the source tree and extracts every entity, and
// an edge pass that resolves intra- and cross-file edge candidates against
// the entities the first pass found. Both passes preserve a deterministic
// (path, offset) order so two runs over identical bytes produce a
// byte-identical graph (P5/S6).
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"parseltongue/internal/adapter"
	"parseltongue/internal/isg"
	"parseltongue/internal/plog"
	"parseltongue/internal/store"
)

// Options configures one ingestion run.
type Options struct {
	// Concurrency bounds how many files are parsed at once. <=0 means 1.
	Concurrency int
	// ExcludeTests drops entities the path-based heuristic classifies as
	// test code (component F's "ingestion mode" switch).
	ExcludeTests bool
}

// Report summarizes one ingestion run: what happened, and what was dropped.
type Report struct {
	FilesScanned     int
	FilesSkipped     int
	FilesRemoved     int
	EntitiesIngested int
	EdgesIngested    int
	EdgesDropped     int
	Diagnostics      []adapter.Diagnostic
}

// Pipeline wires a parser registry to the in-memory graph and the
// persistent store, the two sinks every ingested file feeds.
type Pipeline struct {
	registry *adapter.Registry
	graph    *isg.Graph
	store    *store.Store
}

// New builds a pipeline. store may be nil for graph-only test ingestion.
func New(registry *adapter.Registry, graph *isg.Graph, st *store.Store) *Pipeline {
	return &Pipeline{registry: registry, graph: graph, store: st}
}

type fileResult struct {
	path    string
	hash    string
	content []byte
	result  adapter.Result
}

// Ingest walks root, parses every file the registry recognizes, and applies
// the two passes. It is the only entry point for loading a codebase into
// the graph; commit_and_reindex (§4.H) calls it after a full Reset.
func (p *Pipeline) Ingest(ctx context.Context, root string, opts Options) (*Report, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	log := plog.Get(plog.CategoryIngest)

	paths, err := discoverFiles(root, p.registry)
	if err != nil {
		return nil, fmt.Errorf("discover files under %s: %w", root, err)
	}
	sort.Strings(paths)

	results := make([]fileResult, len(paths))
	var mu sync.Mutex
	var skipped int

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	for i, path := range paths {
		i, path := i, path
		eg.Go(func() error {
			content, err := os.ReadFile(path)
			if err != nil {
				mu.Lock()
				skipped++
				mu.Unlock()
				log.Warn("skipping unreadable file %s: %v", path, err)
				return nil
			}

			ext := filepath.Ext(path)
			a := p.registry.For(ext)
			if a == nil {
				return nil
			}

			res, err := a.Parse(egCtx, path, content)
			if err != nil {
				mu.Lock()
				skipped++
				mu.Unlock()
				log.Warn("adapter error on %s: %v", path, err)
				return nil
			}

			sum := sha256.Sum256(content)
			results[i] = fileResult{path: path, hash: hex.EncodeToString(sum[:]), content: content, result: res}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	report := &Report{FilesScanned: len(paths), FilesSkipped: skipped}

	if err := p.reconcileRemovedFiles(ctx, root, paths, report); err != nil {
		return report, err
	}

	// Entity pass: insert every entity, first-wins on key collision. refIndex
	// maps each entity's logical Ref name to its real Key, so the edge pass
	// below can resolve candidates built from a bare qualified name (the only
	// thing an adapter can know about a possibly-not-yet-parsed target)
	// without requiring ToName to literally equal the target's Key.
	seenKeys := make(map[string]struct{})
	refIndex := make(map[string]string)
	entitiesByFile := make(map[string][]isg.Entity, len(paths))
	for _, fr := range results {
		if fr.path == "" {
			continue
		}
		report.Diagnostics = append(report.Diagnostics, fr.result.Diagnostics...)

		// A line-based key embeds the entity's start/end line, so any edit
		// that shifts lines gives a re-parsed entity a different key from
		// its previous graph entry — PutEntity's upsert-by-key below would
		// never touch the stale one. internal/store.Store.ReplaceFile
		// already gets this right by fully replacing a file's facts; doing
		// the same purge-then-reinsert here keeps the in-memory graph from
		// accumulating an orphaned entity (and its edges) for every edited
		// line in a file's history.
		p.graph.RemoveFile(fr.path)

		var kept []isg.Entity
		for _, e := range fr.result.Entities {
			if opts.ExcludeTests && classifyTDD(fr.path) == isg.ClassTestImplementation {
				continue
			}
			if _, dup := seenKeys[e.Key]; dup {
				// I1 (key uniqueness) is enforced here, not in isg.Graph: two
				// adapter-produced entities landing on the same key within one
				// ingest is the only case that can actually happen (the graph
				// itself treats a same-key PutEntity as a legitimate update to
				// an already-ingested file, not a violation). The duplicate is
				// absorbed into a diagnostic rather than failing the whole run,
				// matching the resilience policy for malformed input (§4.B).
				err := &isg.ErrDuplicateKey{Key: e.Key}
				report.Diagnostics = append(report.Diagnostics, adapter.Diagnostic{File: fr.path, Message: err.Error()})
				continue
			}
			e.TDD = isg.TDDClassification{Class: classifyTDD(fr.path)}
			if !e.CurrentInd && !e.FutureInd {
				e.CurrentInd, e.FutureInd = true, true
			}
			seenKeys[e.Key] = struct{}{}
			if e.Ref != "" {
				if _, dup := refIndex[e.Ref]; !dup {
					refIndex[e.Ref] = e.Key
				}
			}
			if err := p.graph.PutEntity(&e); err != nil {
				// Not appended to kept: an entity PutEntity rejects must never
				// reach store.ReplaceFile below, or the store would persist an
				// entity the in-memory graph never accepted. rebuildGraphFromStore
				// (cmd/parseltongue/main.go) replays every persisted entity back
				// through graph.PutEntity on the next process start and hard-fails
				// on the first rejection, so a persisted-but-ungraphed entity would
				// permanently brick every subsequent command against this
				// workspace until a manual reset.
				report.Diagnostics = append(report.Diagnostics, adapter.Diagnostic{File: fr.path, Message: err.Error()})
				continue
			}
			kept = append(kept, e)
			report.EntitiesIngested++
		}
		entitiesByFile[fr.path] = kept
	}

	// resolve maps an EdgeCandidate endpoint (a Ref name, or a Key for
	// entities like modules that have no Ref) to the entity's real Key.
	resolve := func(s string) (string, bool) {
		if _, ok := seenKeys[s]; ok {
			return s, true
		}
		if key, ok := refIndex[s]; ok {
			return key, true
		}
		return "", false
	}

	// Edge pass: resolve each candidate against the now-complete key and Ref
	// sets, sorted by (path, offset) for determinism (P5).
	edgesByFile := make(map[string][]isg.Edge, len(paths))
	for _, fr := range results {
		if fr.path == "" {
			continue
		}
		candidates := append([]adapter.EdgeCandidate(nil), fr.result.Edges...)
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Offset < candidates[j].Offset })

		var fileEdges []isg.Edge
		for _, c := range candidates {
			from, ok := resolve(c.From)
			if !ok {
				report.EdgesDropped++
				continue
			}
			to, ok := resolve(c.ToName)
			if !ok {
				report.EdgesDropped++
				continue
			}
			e := isg.Edge{From: from, To: to, Type: c.Type}
			if err := p.graph.PutEdge(e); err != nil {
				if _, isDup := err.(*isg.ErrDuplicateEdge); isDup {
					continue
				}
				report.EdgesDropped++
				continue
			}
			fileEdges = append(fileEdges, e)
			report.EdgesIngested++
		}
		edgesByFile[fr.path] = fileEdges
	}

	if p.store != nil {
		for _, fr := range results {
			if fr.path == "" {
				continue
			}
			if err := p.store.ReplaceFile(ctx, fr.path, entitiesByFile[fr.path], edgesByFile[fr.path], fr.hash); err != nil {
				return report, fmt.Errorf("persist %s: %w", fr.path, err)
			}
		}
	}

	log.Info("ingested %d files: %d entities, %d edges (%d dropped), %d files removed", report.FilesScanned, report.EntitiesIngested, report.EdgesIngested, report.EdgesDropped, report.FilesRemoved)
	return report, nil
}

// reconcileRemovedFiles diffs the graph's previously-known files under root
// against the current directory walk (paths) and drops the entities, edges,
// and persisted facts of anything no longer found on disk. Without this, a
// file deleted or renamed since the last Ingest leaves its stale entities
// and edges in both the in-memory graph and the store forever, since
// discoverFiles only ever reports files that currently exist.
func (p *Pipeline) reconcileRemovedFiles(ctx context.Context, root string, paths []string, report *Report) error {
	current := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		current[path] = struct{}{}
	}

	// filepath.WalkDir (via discoverFiles) always returns Clean-ed paths, so
	// a root passed as "." or with a "./" prefix never appears verbatim in
	// paths even though it was walked — root must be Clean-ed the same way
	// before it's used as a prefix, or every known file silently fails this
	// match and reconciliation does nothing. "." is its own special case:
	// Clean(".") stays ".", but Join(".", "x.go") strips the "./" entirely,
	// so no prefix string built from "." can ever match a child path; root
	// "." means the whole tree, so every known file is in scope.
	root = filepath.Clean(root)
	var prefix string
	if root != "." {
		prefix = root + string(filepath.Separator)
	}
	var removed []string
	for _, known := range p.graph.AllFiles() {
		if root != "." && known != root && !strings.HasPrefix(known, prefix) {
			continue
		}
		if _, ok := current[known]; !ok {
			removed = append(removed, known)
		}
	}
	sort.Strings(removed)

	log := plog.Get(plog.CategoryIngest)
	for _, file := range removed {
		p.graph.RemoveFile(file)
		if p.store != nil {
			if err := p.store.RemoveFile(ctx, file); err != nil {
				return fmt.Errorf("reconcile deleted file %s: %w", file, err)
			}
		}
		log.Info("removed stale entities for deleted file %s", file)
		report.FilesRemoved++
	}
	return nil
}

func discoverFiles(root string, registry *adapter.Registry) ([]string, error) {
	exts := make(map[string]struct{})
	for _, e := range registry.Extensions() {
		exts[e] = struct{}{}
	}

	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := exts[filepath.Ext(path)]; ok {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// classifyTDD tags an entity as test or production code from its file path,
// grounded on the common convention the teacher's own suite follows
// (_test.go) generalized to the other languages the registry supports.
func classifyTDD(path string) isg.TDDClass {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "_test.go"),
		strings.HasPrefix(base, "test_"),
		strings.HasSuffix(base, ".test.ts"),
		strings.HasSuffix(base, ".test.js"),
		strings.HasSuffix(base, ".spec.ts"),
		strings.HasSuffix(base, ".spec.js"),
		strings.Contains(path, string(filepath.Separator)+"tests"+string(filepath.Separator)):
		return isg.ClassTestImplementation
	default:
		return isg.ClassCodeImplementation
	}
}
