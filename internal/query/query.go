// Package query implements the read-side query engine (component G): Q1-Q7
// against the in-memory graph, plus Q4's unbounded transitive closure
// delegated to the persistent Datalog store when one is wired in.
package query

import (
	"context"
	"fmt"
	"sort"

	"parseltongue/internal/isg"
	"parseltongue/internal/store"
)

// ErrInvalidParameter is returned for out-of-range inputs (H < 1 or beyond
// the configured cap).
type ErrInvalidParameter struct {
	Param string
	Msg   string
}

func (e *ErrInvalidParameter) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Msg)
}

// ErrTimeout is returned when a query's context deadline elapses mid-traversal.
type ErrTimeout struct{ Op string }

func (e *ErrTimeout) Error() string { return fmt.Sprintf("query %s: deadline exceeded", e.Op) }

// DefaultMaxHops is the configured cap on Q3's H parameter (§4.G error conditions).
const DefaultMaxHops = 10

// HopResult is one (key, distance) pair from a blast-radius traversal.
type HopResult struct {
	Key      string
	Distance int
}

// Engine answers Q1-Q7 against a graph, optionally backed by a persistent
// store for Q4's unbounded closure.
type Engine struct {
	graph   *isg.Graph
	store   *store.Store
	maxHops int
}

// New builds a query engine. store may be nil: Q4 then falls back to an
// in-memory BFS-to-exhaustion over the graph, which is correct but not
// unbounded-scale. maxHops caps Q3's H parameter; 0 falls back to
// DefaultMaxHops rather than rejecting every blast-radius call outright.
func New(graph *isg.Graph, st *store.Store, maxHops int) *Engine {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &Engine{graph: graph, store: st, maxHops: maxHops}
}

func (e *Engine) requireEntity(key string) error {
	if !e.graph.HasEntity(key) {
		return &isg.ErrUnknownEntity{Key: key}
	}
	return nil
}

// Forward is Q1: direct forward dependencies, optionally filtered by type.
func (e *Engine) Forward(startKey string, types []isg.EdgeType) ([]string, error) {
	if err := e.requireEntity(startKey); err != nil {
		return nil, err
	}
	out := e.forwardAll(startKey, types)
	sort.Strings(out)
	return out, nil
}

func (e *Engine) forwardAll(key string, types []isg.EdgeType) []string {
	if len(types) == 0 {
		types = isg.AllEdgeTypes()
	}
	return e.graph.ForwardAll(key, types)
}

// Reverse is Q2: direct reverse dependencies, optionally filtered by type.
func (e *Engine) Reverse(endKey string, types []isg.EdgeType) ([]string, error) {
	if err := e.requireEntity(endKey); err != nil {
		return nil, err
	}
	out := e.reverseAll(endKey, types)
	sort.Strings(out)
	return out, nil
}

func (e *Engine) reverseAll(key string, types []isg.EdgeType) []string {
	if len(types) == 0 {
		types = isg.AllEdgeTypes()
	}
	return e.graph.ReverseAll(key, types)
}

// BlastRadius is Q3: BFS from startKey truncated at maxHops, each key
// reported once at its minimum distance. The start key itself is never a
// member of its own blast radius.
func (e *Engine) BlastRadius(ctx context.Context, startKey string, maxHops int, types []isg.EdgeType) ([]HopResult, error) {
	if err := e.requireEntity(startKey); err != nil {
		return nil, err
	}
	if maxHops < 1 || maxHops > e.maxHops {
		return nil, &ErrInvalidParameter{Param: "max_hops", Msg: fmt.Sprintf("must be in [1,%d], got %d", e.maxHops, maxHops)}
	}

	// visited is NOT seeded with startKey: S5's worked example requires the
	// start node to be able to reappear later in the BFS (e.g. at distance 2
	// in a 2-cycle A->B->A), reported once at that minimum distance, same as
	// any other node. Only "never report it at distance 0" is guaranteed, by
	// never including startKey in the initial frontier's own results.
	visited := make(map[string]int)
	frontier := []string{startKey}
	var results []HopResult

	for dist := 1; dist <= maxHops && len(frontier) > 0; dist++ {
		select {
		case <-ctx.Done():
			return nil, &ErrTimeout{Op: "blast_radius"}
		default:
		}

		next := make(map[string]struct{})
		for _, k := range frontier {
			for _, n := range e.forwardAll(k, types) {
				if _, seen := visited[n]; seen {
					continue
				}
				next[n] = struct{}{}
			}
		}

		var nextFrontier []string
		for k := range next {
			visited[k] = dist
			nextFrontier = append(nextFrontier, k)
			results = append(results, HopResult{Key: k, Distance: dist})
		}
		sort.Strings(nextFrontier)
		frontier = nextFrontier
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Key < results[j].Key
	})
	return results, nil
}

// TransitiveClosure is Q4: the unbounded set of keys reachable from
// startKey. When a persistent store is wired in, the recursive reaches/2
// Datalog rule answers it; otherwise an in-memory BFS runs to exhaustion
// (correct on any finite graph per P4, just without the store's indexing).
func (e *Engine) TransitiveClosure(ctx context.Context, startKey string, types []isg.EdgeType) ([]string, error) {
	if err := e.requireEntity(startKey); err != nil {
		return nil, err
	}

	if e.store != nil && len(types) == 0 {
		keys, err := e.store.TransitiveClosure(ctx, startKey)
		if err != nil {
			return nil, fmt.Errorf("store transitive closure: %w", err)
		}
		sort.Strings(keys)
		return keys, nil
	}
	if e.store != nil && len(types) == 1 {
		keys, err := e.store.TransitiveClosureVia(ctx, startKey, types[0])
		if err != nil {
			return nil, fmt.Errorf("store transitive closure: %w", err)
		}
		sort.Strings(keys)
		return keys, nil
	}

	visited := make(map[string]struct{})
	frontier := []string{startKey}
	for len(frontier) > 0 {
		select {
		case <-ctx.Done():
			return nil, &ErrTimeout{Op: "transitive_closure"}
		default:
		}
		var next []string
		for _, k := range frontier {
			for _, n := range e.forwardAll(k, types) {
				if _, seen := visited[n]; seen {
					continue
				}
				visited[n] = struct{}{}
				next = append(next, n)
			}
		}
		frontier = next
	}

	out := make([]string, 0, len(visited))
	for k := range visited {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// EntitiesInFile is Q5: containment lookup via the graph's by_file index.
func (e *Engine) EntitiesInFile(path string) []string {
	out := e.graph.EntitiesInFile(path)
	sort.Strings(out)
	return out
}

// WhoImplements is Q6: reverse Implements edges into a trait/interface key,
// a named special case of Q2.
func (e *Engine) WhoImplements(interfaceKey string) ([]string, error) {
	if err := e.requireEntity(interfaceKey); err != nil {
		return nil, err
	}
	out := e.graph.Reverse(interfaceKey, isg.EdgeImplements)
	sorted := append([]string(nil), out...)
	sort.Strings(sorted)
	return sorted, nil
}

// Cycle is one strongly connected component of size >= 2, or a single node
// with a self-loop.
type Cycle struct {
	Keys []string
}

// Cycles is Q7: every strongly connected component of size >= 2, plus every
// self-loop, restricted to the given roots (or the whole graph if roots is
// empty). Computed with Tarjan's algorithm over the in-memory adjacency,
// since the graph's own forward index is already the adjacency Tarjan needs.
func (e *Engine) Cycles(roots []string) ([]Cycle, error) {
	keys := roots
	if len(keys) == 0 {
		keys = e.graph.AllKeys()
	}
	for _, k := range keys {
		if err := e.requireEntity(k); err != nil {
			return nil, err
		}
	}
	sort.Strings(keys)

	t := &tarjan{
		adj:     func(k string) []string { return e.forwardAll(k, nil) },
		index:   make(map[string]int),
		lowlink: make(map[string]int),
		onStack: make(map[string]bool),
	}
	for _, k := range keys {
		if _, visited := t.index[k]; !visited {
			t.strongConnect(k)
		}
	}

	var out []Cycle
	for _, comp := range t.components {
		if len(comp) >= 2 {
			sorted := append([]string(nil), comp...)
			sort.Strings(sorted)
			out = append(out, Cycle{Keys: sorted})
			continue
		}
		// size-1 component: a cycle only if it is a genuine self-loop.
		k := comp[0]
		for _, n := range e.forwardAll(k, nil) {
			if n == k {
				out = append(out, Cycle{Keys: []string{k}})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Keys[0] < out[j].Keys[0] })
	return out, nil
}

// tarjan implements Tarjan's strongly-connected-components algorithm with a
// direct recursive walk, the textbook form.
type tarjan struct {
	adj        func(string) []string
	index      map[string]int
	lowlink    map[string]int
	onStack    map[string]bool
	stack      []string
	counter    int
	components [][]string
}

func (t *tarjan) strongConnect(v string) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj(v) {
		if _, visited := t.index[w]; !visited {
			t.strongConnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var comp []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		t.components = append(t.components, comp)
	}
}
