// Package store implements the persistent, Datalog-queryable graph store
// (component E): two relations, entity/10 and edge/3, backed by SQLite and
// queried through the embedded Mangle engine (internal/mangle), the same
// "Hollow Kernel" wrapper the teacher uses for its knowledge graph.
package store

import (
	"context"
	"fmt"

	"parseltongue/internal/isg"
	"parseltongue/internal/mangle"
	"parseltongue/internal/plog"
)

// Store is the persistent counterpart to isg.Graph: slower, durable, and
// capable of unbounded recursive queries the in-memory graph does not
// attempt (Q4's transitive closure).
type Store struct {
	persistence *sqlitePersistence
	engine      *mangle.Engine
}

// Open creates or reopens a store at path, loading the schema and warming
// the in-memory fact store from whatever was already persisted.
func Open(ctx context.Context, path string) (*Store, error) {
	persistence, err := newSQLitePersistence(path)
	if err != nil {
		return nil, err
	}

	engine, err := mangle.NewEngine(mangle.DefaultConfig(), persistence)
	if err != nil {
		persistence.Close()
		return nil, fmt.Errorf("create mangle engine: %w", err)
	}
	if err := engine.LoadSchemaString(schemaString()); err != nil {
		persistence.Close()
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := engine.WarmFromPersistence(ctx); err != nil {
		plog.Get(plog.CategoryStore).Warn("warm from persistence: %v", err)
	}

	return &Store{persistence: persistence, engine: engine}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.persistence.Close()
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func entityFact(e isg.Entity) mangle.Fact {
	action := ""
	if e.FutureAction != nil {
		action = string(*e.FutureAction)
	}
	return mangle.Fact{
		Predicate: "entity",
		Args: []interface{}{
			e.Key, string(e.Kind), e.Name, string(e.Language), e.FilePath,
			boolString(e.CurrentInd), boolString(e.FutureInd), action,
			stringOrEmpty(e.CurrentCode), stringOrEmpty(e.FutureCode),
		},
	}
}

func edgeFact(e isg.Edge) mangle.Fact {
	return mangle.Fact{
		Predicate: "edge",
		Args:      []interface{}{e.From, e.To, string(e.Type)},
	}
}

// ReplaceFile atomically swaps the stored facts for one source file: every
// entity declared in it, and every edge whose from_key belongs to it. This
// mirrors the ingestion pipeline's per-file unit of work (§4.F).
func (s *Store) ReplaceFile(ctx context.Context, file string, entities []isg.Entity, edges []isg.Edge, contentHash string) error {
	facts := make([]mangle.Fact, 0, len(entities)+len(edges))
	for _, e := range entities {
		facts = append(facts, entityFact(e))
	}
	for _, e := range edges {
		facts = append(facts, edgeFact(e))
	}
	return s.engine.ReplaceFactsForFileWithHash(file, facts, contentHash)
}

// RemoveFile purges every persisted fact for file and drops its row from
// file_facts entirely. Unlike ReplaceFile with an empty entity/edge list
// (which would leave a zero-fact row behind), this is for a file that no
// longer exists at all, not one that was edited down to nothing.
func (s *Store) RemoveFile(ctx context.Context, file string) error {
	if err := s.engine.ReplaceFactsForFileWithHash(file, nil, ""); err != nil {
		return fmt.Errorf("remove persisted facts for %s: %w", file, err)
	}
	return s.persistence.DeleteFile(ctx, file)
}

// TransitiveClosure returns every key reachable from `from` across any edge
// type, computed by the reaches/2 recursive rule (Q4, I-unbounded).
func (s *Store) TransitiveClosure(ctx context.Context, from string) ([]string, error) {
	result, err := s.engine.Query(ctx, fmt.Sprintf("reaches(%q, X)", from))
	if err != nil {
		return nil, fmt.Errorf("transitive closure query: %w", err)
	}
	return bindingStrings(result.Bindings, "X"), nil
}

// TransitiveClosureVia is TransitiveClosure restricted to one edge type,
// via the reaches_via/3 rule.
func (s *Store) TransitiveClosureVia(ctx context.Context, from string, edgeType isg.EdgeType) ([]string, error) {
	result, err := s.engine.Query(ctx, fmt.Sprintf("reaches_via(%q, X, %q)", from, string(edgeType)))
	if err != nil {
		return nil, fmt.Errorf("transitive closure (via %s) query: %w", edgeType, err)
	}
	return bindingStrings(result.Bindings, "X"), nil
}

func bindingStrings(bindings []map[string]interface{}, variable string) []string {
	seen := make(map[string]struct{}, len(bindings))
	var out []string
	for _, row := range bindings {
		v, ok := row[variable]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// AllEntities returns every persisted entity, queried back through entity/10
// with every argument a free variable — the store-side half of rebuilding
// isg.Graph on process restart (the in-memory graph does not itself
// survive a restart; only the store does).
func (s *Store) AllEntities(ctx context.Context) ([]isg.Entity, error) {
	result, err := s.engine.Query(ctx, "entity(Key, Kind, Name, Language, FilePath, CurrentInd, FutureInd, FutureAction, CurrentCode, FutureCode)")
	if err != nil {
		return nil, fmt.Errorf("list entities query: %w", err)
	}
	out := make([]isg.Entity, 0, len(result.Bindings))
	for _, row := range result.Bindings {
		key, _ := row["Key"].(string)
		kind, _ := row["Kind"].(string)
		name, _ := row["Name"].(string)
		lang, _ := row["Language"].(string)
		path, _ := row["FilePath"].(string)
		currentInd, _ := row["CurrentInd"].(string)
		futureInd, _ := row["FutureInd"].(string)
		futureAction, _ := row["FutureAction"].(string)
		currentCode, _ := row["CurrentCode"].(string)
		futureCode, _ := row["FutureCode"].(string)
		if key == "" {
			continue
		}
		e := isg.Entity{
			Key:        key,
			Kind:       isg.Kind(kind),
			Name:       name,
			Language:   isg.Language(lang),
			FilePath:   path,
			CurrentInd: currentInd == "true",
			FutureInd:  futureInd == "true",
		}
		if futureAction != "" {
			action := isg.FutureAction(futureAction)
			e.FutureAction = &action
		}
		if currentCode != "" {
			code := currentCode
			e.CurrentCode = &code
		}
		if futureCode != "" {
			code := futureCode
			e.FutureCode = &code
		}
		out = append(out, e)
	}
	return out, nil
}

// SyncFile re-derives file's complete persisted fact set from the
// authoritative in-memory graph and atomically replaces it via ReplaceFile.
// This is the write path a single temporal edit/delete/create/revert uses to
// reach the store: the engine's only write primitive (ReplaceFactsForFile)
// is scoped to one file, so "Temporal writes are single-row atomic" (§4.E)
// is satisfied at the file_facts row for that file, the same granularity
// ingestion itself commits at, rather than inventing a finer-grained write
// primitive the engine does not have.
func (s *Store) SyncFile(ctx context.Context, graph *isg.Graph, file string) error {
	keys := graph.EntitiesInFile(file)
	entities := make([]isg.Entity, 0, len(keys))
	inFile := make(map[string]bool, len(keys))
	for _, k := range keys {
		if e, ok := graph.GetEntity(k); ok {
			entities = append(entities, e)
			inFile[k] = true
		}
	}

	var edges []isg.Edge
	for _, edge := range graph.AllEdges() {
		if inFile[edge.From] {
			edges = append(edges, edge)
		}
	}

	if len(entities) == 0 {
		return s.RemoveFile(ctx, file)
	}

	states, err := s.persistence.GetFileStates(ctx)
	if err != nil {
		return fmt.Errorf("lookup content hash for %s: %w", file, err)
	}
	return s.ReplaceFile(ctx, file, entities, edges, states[file])
}

// AllEdges returns every persisted edge, queried back through edge/3.
func (s *Store) AllEdges(ctx context.Context) ([]isg.Edge, error) {
	result, err := s.engine.Query(ctx, "edge(FromKey, ToKey, EdgeType)")
	if err != nil {
		return nil, fmt.Errorf("list edges query: %w", err)
	}
	out := make([]isg.Edge, 0, len(result.Bindings))
	for _, row := range result.Bindings {
		from, _ := row["FromKey"].(string)
		to, _ := row["ToKey"].(string)
		typ, _ := row["EdgeType"].(string)
		if from == "" || to == "" {
			continue
		}
		out = append(out, isg.Edge{From: from, To: to, Type: isg.EdgeType(typ)})
	}
	return out, nil
}

// Reset drops every persisted fact and clears the in-memory fact store, the
// persistent-store half of a full reset (O1; the graph's own Reset handles
// the in-memory half).
func (s *Store) Reset(ctx context.Context) error {
	states, err := s.persistence.GetFileStates(ctx)
	if err != nil {
		return fmt.Errorf("enumerate files for reset: %w", err)
	}
	for file := range states {
		if err := s.persistence.DeleteFile(ctx, file); err != nil {
			return fmt.Errorf("delete persisted facts for %s: %w", file, err)
		}
	}
	s.engine.Clear()
	return nil
}
