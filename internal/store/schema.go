package store

// schema is the Mangle schema for the persistent graph, following the
// teacher's Decl/rule syntax (internal/browser/honeypot.go's
// HoneypotRules/BrowserSchemas). CodeGraph holds entities as a predicate
// family indexed by kind; DependencyEdges holds the base edge relation plus
// the recursive transitive-closure rule the spec's Q4 depends on.
const schema = `
# CodeGraph: one fact per entity, widened into Mangle's typed args. The
# temporal triple and both code fields ride along on entity/10 itself (§4.E:
# "CodeGraph: one row per entity, columns = all fields in §3") rather than a
# separate relation, since Mangle has no native boolean type and no nullable
# column: current_ind/future_ind are the strings "true"/"false", and
# future_action/current_code/future_code use "" as the absent-value sentinel
# (store.entityFact/store.AllEntities is where that sentinel is applied and
# reversed).
Decl entity(key: string, kind: string, name: string, language: string, file_path: string, current_ind: string, future_ind: string, future_action: string, current_code: string, future_code: string).

# DependencyEdges: the base relation ingestion writes one row per edge.
Decl edge(from_key: string, to_key: string, edge_type: string).

# reaches/2 is the unbounded transitive closure over edge/3, regardless of
# edge_type, grounded on the teacher's ancestor/descendant recursive pair
# (.codex/skills/mangle-programming/assets/go-integration/main.go).
Decl reaches(from_key: string, to_key: string).
reaches(A, B) :- edge(A, B, _).
reaches(A, C) :- edge(A, B, _), reaches(B, C).

# reaches_via/3 keeps the edge_type around for callers that need the same
# closure restricted to one relation (e.g. "everything this interface's
# implementors transitively implement").
Decl reaches_via(from_key: string, to_key: string, edge_type: string).
reaches_via(A, B, T) :- edge(A, B, T).
reaches_via(A, C, T) :- edge(A, B, T), reaches_via(B, C, T).
`

// schemaString returns the schema text; a function (not a bare const use)
// so a future per-deployment schema extension point has somewhere to hook in.
func schemaString() string { return schema }
