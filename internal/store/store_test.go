package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parseltongue/internal/isg"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReplaceFileAndTransitiveClosure(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	entities := []isg.Entity{
		{Key: "a", Kind: isg.KindFunction, Name: "a", Language: isg.LangGo, FilePath: "x.go"},
		{Key: "b", Kind: isg.KindFunction, Name: "b", Language: isg.LangGo, FilePath: "x.go"},
		{Key: "c", Kind: isg.KindFunction, Name: "c", Language: isg.LangGo, FilePath: "x.go"},
	}
	edges := []isg.Edge{
		{From: "a", To: "b", Type: isg.EdgeCalls},
		{From: "b", To: "c", Type: isg.EdgeCalls},
	}

	require.NoError(t, s.ReplaceFile(ctx, "x.go", entities, edges, "hash1"))

	closure, err := s.TransitiveClosure(ctx, "a")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"b", "c"}, closure)
}

// TestRemoveFileDropsPersistedFacts guards the deleted-file reconciliation
// path Ingest relies on: once a file is removed, its facts must disappear
// from queries rather than linger as a zero-fact row.
func TestRemoveFileDropsPersistedFacts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	entities := []isg.Entity{
		{Key: "a", Kind: isg.KindFunction, Name: "a", Language: isg.LangGo, FilePath: "x.go"},
		{Key: "b", Kind: isg.KindFunction, Name: "b", Language: isg.LangGo, FilePath: "y.go"},
	}
	require.NoError(t, s.ReplaceFile(ctx, "x.go", []isg.Entity{entities[0]}, nil, "hash1"))
	require.NoError(t, s.ReplaceFile(ctx, "y.go", []isg.Entity{entities[1]}, nil, "hash2"))

	require.NoError(t, s.RemoveFile(ctx, "x.go"))

	all, err := s.AllEntities(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "b", all[0].Key)
}

// TestReplaceFileDropsStaleFactsOnReingestion guards against the reverse
// index keying off a fact's first argument (the entity Key / edge From-key
// for this schema, never a file path): re-ingesting x.go after b and its
// call edges are removed from it must shrink the transitive closure, not
// just extend it.
func TestReplaceFileDropsStaleFactsOnReingestion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	entities := []isg.Entity{
		{Key: "a", Kind: isg.KindFunction, Name: "a", Language: isg.LangGo, FilePath: "x.go"},
		{Key: "b", Kind: isg.KindFunction, Name: "b", Language: isg.LangGo, FilePath: "x.go"},
		{Key: "c", Kind: isg.KindFunction, Name: "c", Language: isg.LangGo, FilePath: "x.go"},
	}
	edges := []isg.Edge{
		{From: "a", To: "b", Type: isg.EdgeCalls},
		{From: "b", To: "c", Type: isg.EdgeCalls},
	}
	require.NoError(t, s.ReplaceFile(ctx, "x.go", entities, edges, "hash1"))

	closure, err := s.TransitiveClosure(ctx, "a")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"b", "c"}, closure)

	// b (and its call edges) no longer exist in x.go.
	require.NoError(t, s.ReplaceFile(ctx, "x.go", []isg.Entity{entities[0]}, nil, "hash2"))

	closure, err = s.TransitiveClosure(ctx, "a")
	require.NoError(t, err)
	require.Empty(t, closure, "stale facts from the prior ingestion of x.go were not removed")
}

func TestTransitiveClosureViaFiltersByEdgeType(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	entities := []isg.Entity{
		{Key: "a", Kind: isg.KindFunction, Name: "a", Language: isg.LangGo, FilePath: "x.go"},
		{Key: "b", Kind: isg.KindStruct, Name: "b", Language: isg.LangGo, FilePath: "x.go"},
		{Key: "c", Kind: isg.KindTrait, Name: "c", Language: isg.LangGo, FilePath: "x.go"},
	}
	edges := []isg.Edge{
		{From: "a", To: "b", Type: isg.EdgeCalls},
		{From: "b", To: "c", Type: isg.EdgeImplements},
	}
	require.NoError(t, s.ReplaceFile(ctx, "x.go", entities, edges, "hash1"))

	viaCalls, err := s.TransitiveClosureVia(ctx, "a", isg.EdgeCalls)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"b"}, viaCalls)
}

func TestResetClearsPersistedFacts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	entities := []isg.Entity{{Key: "a", Kind: isg.KindFunction, Name: "a", Language: isg.LangGo, FilePath: "x.go"}}
	require.NoError(t, s.ReplaceFile(ctx, "x.go", entities, nil, "hash1"))
	require.NoError(t, s.Reset(ctx))

	states, err := s.persistence.GetFileStates(ctx)
	require.NoError(t, err)
	require.Empty(t, states)
}

// TestAllEntitiesRoundTripsTemporalState guards against AllEntities
// hardcoding CurrentInd/FutureInd to true regardless of what was persisted:
// a pending edit's full temporal triple and both code fields must survive a
// ReplaceFile/AllEntities round trip, the same round trip a process restart
// performs via rebuildGraphFromStore.
func TestAllEntitiesRoundTripsTemporalState(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	action := isg.ActionEdit
	current := "old body"
	future := "new body"
	entities := []isg.Entity{{
		Key: "a", Kind: isg.KindFunction, Name: "a", Language: isg.LangGo, FilePath: "x.go",
		CurrentInd: true, FutureInd: true, FutureAction: &action,
		CurrentCode: &current, FutureCode: &future,
	}}
	require.NoError(t, s.ReplaceFile(ctx, "x.go", entities, nil, "hash1"))

	all, err := s.AllEntities(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	got := all[0]
	assert.True(t, got.CurrentInd)
	assert.True(t, got.FutureInd)
	require.NotNil(t, got.FutureAction)
	assert.Equal(t, isg.ActionEdit, *got.FutureAction)
	require.NotNil(t, got.CurrentCode)
	assert.Equal(t, "old body", *got.CurrentCode)
	require.NotNil(t, got.FutureCode)
	assert.Equal(t, "new body", *got.FutureCode)
}

// TestSyncFileReplacesOnlyThatFilesFacts guards SyncFile's use as the
// temporal overlay's write path: it must re-derive file's fact set from the
// graph (picking up a just-mutated entity) while leaving every other file's
// persisted facts untouched.
func TestSyncFileReplacesOnlyThatFilesFacts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	other := []isg.Entity{{Key: "other", Kind: isg.KindFunction, Name: "other", Language: isg.LangGo, FilePath: "y.go", CurrentInd: true, FutureInd: true}}
	require.NoError(t, s.ReplaceFile(ctx, "y.go", other, nil, "hashY"))

	graph := isg.NewGraph()
	action := isg.ActionEdit
	future := "new body"
	require.NoError(t, graph.PutEntity(&isg.Entity{
		Key: "a", Kind: isg.KindFunction, Name: "a", Language: isg.LangGo, FilePath: "x.go",
		CurrentInd: true, FutureInd: true, FutureAction: &action, FutureCode: &future,
	}))

	require.NoError(t, s.SyncFile(ctx, graph, "x.go"))

	all, err := s.AllEntities(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	byKey := make(map[string]isg.Entity, len(all))
	for _, e := range all {
		byKey[e.Key] = e
	}
	require.Contains(t, byKey, "other")
	require.Contains(t, byKey, "a")
	require.NotNil(t, byKey["a"].FutureAction)
	assert.Equal(t, isg.ActionEdit, *byKey["a"].FutureAction)
}

// TestResetThenIngestQueriesFreshFacts guards against Engine.Clear leaving
// its internal query context bound to the discarded pre-reset fact store:
// AllEntities must see only what was written after Reset, not a stale view
// of the pre-reset store and not an empty view even though new facts were
// written into the replacement store.
func TestResetThenIngestQueriesFreshFacts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	before := []isg.Entity{{Key: "a", Kind: isg.KindFunction, Name: "a", Language: isg.LangGo, FilePath: "x.go"}}
	require.NoError(t, s.ReplaceFile(ctx, "x.go", before, nil, "hash1"))
	require.NoError(t, s.Reset(ctx))

	after := []isg.Entity{{Key: "b", Kind: isg.KindFunction, Name: "b", Language: isg.LangGo, FilePath: "y.go"}}
	require.NoError(t, s.ReplaceFile(ctx, "y.go", after, nil, "hash2"))

	all, err := s.AllEntities(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].Key)
}
