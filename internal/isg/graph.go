package isg

import "sync"

// Graph is the concurrent, key-indexed in-memory Interface Signature Graph
// (component D). It is the authoritative structure during a session: one
// writer at a time (ingestion or the temporal overlay), any number of
// concurrent readers. Readers observe a consistent snapshot for the
// duration of a single call — out_by_type and in_by_type are always
// mutated together under the same lock acquisition, so no reader can ever
// see (a,b) in one without (a,b) in the other (P2).
//
// The locking discipline mirrors the teacher's queryLinksLocked pattern:
// every exported method takes the lock itself; *Locked helpers assume the
// caller already holds it, so one exported method can call another's
// locked half without a nested RLock deadlocking against a pending writer.
type Graph struct {
	mu sync.RWMutex

	nodes map[string]*Entity

	outByType map[EdgeType]map[string][]string
	inByType  map[EdgeType]map[string][]string
	edgeSet   map[EdgeType]map[[2]string]struct{} // (from,to) presence per type, for I6

	byFile map[string]map[string]struct{}
	byKind map[Kind]map[string]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:     make(map[string]*Entity),
		outByType: make(map[EdgeType]map[string][]string),
		inByType:  make(map[EdgeType]map[string][]string),
		edgeSet:   make(map[EdgeType]map[[2]string]struct{}),
		byFile:    make(map[string]map[string]struct{}),
		byKind:    make(map[Kind]map[string]struct{}),
	}
}

// PutEntity inserts or replaces an entity. Validation (I2, I5) runs before
// any mutation; on failure the graph is left untouched.
func (g *Graph) PutEntity(e *Entity) error {
	if err := e.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.putEntityLocked(e)
	return nil
}

// putEntityLocked overwrites any existing entity at e.Key. This is a
// deliberate upsert, not a silent I1 violation: a key collision inside one
// ingestion batch is caught and rejected before this is ever called (see
// internal/ingest's seenKeys pass, which constructs ErrDuplicateKey for that
// case), so the only way PutEntity reaches here with an already-present key
// is re-ingesting a file whose entity didn't move — a legitimate update the
// graph must allow, not reject.
func (g *Graph) putEntityLocked(e *Entity) {
	if old, ok := g.nodes[e.Key]; ok {
		g.removeFromSecondaryIndexesLocked(old)
	}
	cp := *e
	g.nodes[e.Key] = &cp
	g.addToSecondaryIndexesLocked(&cp)
}

func (g *Graph) addToSecondaryIndexesLocked(e *Entity) {
	if _, ok := g.byFile[e.FilePath]; !ok {
		g.byFile[e.FilePath] = make(map[string]struct{})
	}
	g.byFile[e.FilePath][e.Key] = struct{}{}

	if _, ok := g.byKind[e.Kind]; !ok {
		g.byKind[e.Kind] = make(map[string]struct{})
	}
	g.byKind[e.Kind][e.Key] = struct{}{}
}

func (g *Graph) removeFromSecondaryIndexesLocked(e *Entity) {
	if set, ok := g.byFile[e.FilePath]; ok {
		delete(set, e.Key)
		if len(set) == 0 {
			delete(g.byFile, e.FilePath)
		}
	}
	if set, ok := g.byKind[e.Kind]; ok {
		delete(set, e.Key)
		if len(set) == 0 {
			delete(g.byKind, e.Kind)
		}
	}
}

// RemoveEntity deletes the entity at key and its secondary-index membership.
// It does not touch edges: callers that need I3 to keep holding must remove
// dangling edges themselves (the temporal overlay only calls this for
// pending-Create entities, which by I3/I2 cannot yet have any edges against
// the current graph).
func (g *Graph) RemoveEntity(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	old, ok := g.nodes[key]
	if !ok {
		return false
	}
	g.removeFromSecondaryIndexesLocked(old)
	delete(g.nodes, key)
	return true
}

// GetEntity returns the entity at key, or false if absent.
func (g *Graph) GetEntity(key string) (Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.getEntityLocked(key)
}

func (g *Graph) getEntityLocked(key string) (Entity, bool) {
	e, ok := g.nodes[key]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// HasEntity reports whether key is present, without copying the entity.
func (g *Graph) HasEntity(key string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[key]
	return ok
}

// PutEdge inserts an edge. I3: both endpoints must already exist as
// entities in the graph. I6: duplicate (from,to,type) triples are rejected.
func (g *Graph) PutEdge(e Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.putEdgeLocked(e)
}

func (g *Graph) putEdgeLocked(e Edge) error {
	if _, ok := g.nodes[e.From]; !ok {
		return &ErrDanglingEdge{Edge: e, Missing: e.From}
	}
	if _, ok := g.nodes[e.To]; !ok {
		return &ErrDanglingEdge{Edge: e, Missing: e.To}
	}

	if _, ok := g.edgeSet[e.Type]; !ok {
		g.edgeSet[e.Type] = make(map[[2]string]struct{})
	}
	pair := [2]string{e.From, e.To}
	if _, dup := g.edgeSet[e.Type][pair]; dup {
		return &ErrDuplicateEdge{Edge: e}
	}
	g.edgeSet[e.Type][pair] = struct{}{}

	if _, ok := g.outByType[e.Type]; !ok {
		g.outByType[e.Type] = make(map[string][]string)
	}
	g.outByType[e.Type][e.From] = append(g.outByType[e.Type][e.From], e.To)

	if _, ok := g.inByType[e.Type]; !ok {
		g.inByType[e.Type] = make(map[string][]string)
	}
	g.inByType[e.Type][e.To] = append(g.inByType[e.Type][e.To], e.From)

	return nil
}

// Forward returns the ordered to-keys reachable directly from from under
// edgeType (Q1). Order is insertion order, which the ingestion pipeline
// guarantees is (path, offset)-sorted for determinism.
func (g *Graph) Forward(from string, edgeType EdgeType) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return cloneStrings(g.outByType[edgeType][from])
}

// ForwardAll returns the ordered to-keys reachable directly from from across
// every edge type, grouped by nothing in particular beyond stable type order.
func (g *Graph) ForwardAll(from string, types []EdgeType) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for _, t := range types {
		out = append(out, g.outByType[t][from]...)
	}
	return out
}

// Reverse returns the ordered from-keys with a direct edgeType edge into to (Q2).
func (g *Graph) Reverse(to string, edgeType EdgeType) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return cloneStrings(g.inByType[edgeType][to])
}

// ReverseAll is the multi-type counterpart of ForwardAll.
func (g *Graph) ReverseAll(to string, types []EdgeType) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for _, t := range types {
		out = append(out, g.inByType[t][to]...)
	}
	return out
}

// EntitiesInFile returns the keys of entities whose file_path matches (Q5).
func (g *Graph) EntitiesInFile(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keysOf(g.byFile[path])
}

// AllFiles returns every file path currently represented in the graph, for
// callers (internal/ingest's deleted-file reconciliation) that need to diff
// the graph's known files against what a fresh directory walk finds.
func (g *Graph) AllFiles() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.byFile))
	for f := range g.byFile {
		out = append(out, f)
	}
	return out
}

// RemoveFile deletes every entity whose file_path is path, along with every
// edge touching one of them in either direction, so the entities that
// remain keep I3. It returns the removed keys. Unlike RemoveEntity, this is
// safe to call unconditionally for a whole file: a file that disappears
// from source is exactly the case where its edges must go with it, not
// just its entities.
func (g *Graph) RemoveFile(path string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	keys := keysOf(g.byFile[path])
	if len(keys) == 0 {
		return nil
	}
	doomed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		doomed[k] = struct{}{}
	}

	for typ, out := range g.outByType {
		for from, tos := range out {
			_, fromDoomed := doomed[from]
			kept := tos[:0]
			for _, to := range tos {
				_, toDoomed := doomed[to]
				if fromDoomed || toDoomed {
					delete(g.edgeSet[typ], [2]string{from, to})
					continue
				}
				kept = append(kept, to)
			}
			if len(kept) == 0 {
				delete(out, from)
			} else {
				out[from] = kept
			}
		}
	}
	for typ, in := range g.inByType {
		for to, froms := range in {
			_, toDoomed := doomed[to]
			kept := froms[:0]
			for _, from := range froms {
				_, fromDoomed := doomed[from]
				if toDoomed || fromDoomed {
					continue
				}
				kept = append(kept, from)
			}
			if len(kept) == 0 {
				delete(in, to)
			} else {
				in[to] = kept
			}
		}
	}

	for _, k := range keys {
		if old, ok := g.nodes[k]; ok {
			g.removeFromSecondaryIndexesLocked(old)
			delete(g.nodes, k)
		}
	}
	return keys
}

// EntitiesByKind returns the keys of entities of the given kind.
func (g *Graph) EntitiesByKind(kind Kind) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keysOf(g.byKind[kind])
}

// AllKeys returns every entity key currently in the graph.
func (g *Graph) AllKeys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.nodes))
	for k := range g.nodes {
		out = append(out, k)
	}
	return out
}

// Len returns the number of entities in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Reset drops every entity, edge, and index — the Tool-6 analog: no
// preserved undo metadata, by design (O1).
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*Entity)
	g.outByType = make(map[EdgeType]map[string][]string)
	g.inByType = make(map[EdgeType]map[string][]string)
	g.edgeSet = make(map[EdgeType]map[[2]string]struct{})
	g.byFile = make(map[string]map[string]struct{})
	g.byKind = make(map[Kind]map[string]struct{})
}

// AllEdges returns every edge currently in the graph, in no particular
// order (callers that need determinism, e.g. export, sort the result).
func (g *Graph) AllEdges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for edgeType, byFrom := range g.outByType {
		for from, tos := range byFrom {
			for _, to := range tos {
				out = append(out, Edge{From: from, To: to, Type: edgeType})
			}
		}
	}
	return out
}

// Snapshot returns a shallow, point-in-time copy of every entity, suitable
// for a read-mostly consumer (e.g. an exporter) that wants to iterate
// without holding the lock for the whole traversal.
func (g *Graph) Snapshot() []Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Entity, 0, len(g.nodes))
	for _, e := range g.nodes {
		out = append(out, *e)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func keysOf(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
