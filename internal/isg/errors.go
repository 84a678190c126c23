package isg

import "fmt"

// InvariantError reports a violated data-model invariant (I1-I6). Per the
// spec's error taxonomy (§7) this is a programmer-bug class: the write is
// rejected, nothing is mutated, and the caller must fix and retry.
type InvariantError struct {
	Rule string
	Msg  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Rule, e.Msg)
}

// ErrUnknownEntity is returned by any lookup keyed on an entity that is not
// present in the graph.
type ErrUnknownEntity struct {
	Key string
}

func (e *ErrUnknownEntity) Error() string {
	return fmt.Sprintf("unknown entity: %s", e.Key)
}

// ErrDuplicateKey is I1: key uniqueness violated by an insert.
type ErrDuplicateKey struct {
	Key string
}

func (e *ErrDuplicateKey) Error() string {
	return fmt.Sprintf("duplicate entity key: %s", e.Key)
}

// ErrDuplicateEdge is I6: (from,to,type) multiset uniqueness violated.
type ErrDuplicateEdge struct {
	Edge Edge
}

func (e *ErrDuplicateEdge) Error() string {
	return fmt.Sprintf("duplicate edge: %s -[%s]-> %s", e.Edge.From, e.Edge.Type, e.Edge.To)
}

// ErrDanglingEdge is I3: an edge endpoint does not exist in the graph state
// the edge is being inserted into.
type ErrDanglingEdge struct {
	Edge    Edge
	Missing string
}

func (e *ErrDanglingEdge) Error() string {
	return fmt.Sprintf("edge %s -[%s]-> %s references missing entity %s", e.Edge.From, e.Edge.Type, e.Edge.To, e.Missing)
}
