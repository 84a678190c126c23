// Package adapter defines the contract between the ISG core and
// per-language source extractors (component B of the spec), and ships a
// reference set of adapters: a go/ast walker for Go, and tree-sitter-backed
// adapters for Python, Rust, TypeScript and JavaScript.
package adapter

import (
	"context"

	"parseltongue/internal/isg"
)

// Diagnostic is a non-fatal parse warning, always absorbed at the file
// boundary — it never aborts ingestion (§4.B "resilient").
type Diagnostic struct {
	File    string
	Line    int
	Message string
}

// EdgeCandidate is an edge whose endpoints are still bare qualified names
// (isg.Entity.Ref values, e.g. "pkg.Func"), resolved to the entities' real
// Key by the ingestion pipeline's Ref index built from the entity pass
// (§4.F "edge pass"). From/ToName may also name an entity directly by Key
// (module entities do this, having no Ref).
type EdgeCandidate struct {
	From   string
	ToName string
	Type   isg.EdgeType
	// Offset orders same-file edge candidates deterministically, independent
	// of map iteration order, for the (path, offset) sort the pipeline needs.
	Offset int
}

// Result is everything one adapter invocation returns for one file.
type Result struct {
	Entities    []isg.Entity
	Edges       []EdgeCandidate
	Diagnostics []Diagnostic
}

// Adapter is the contract a per-language extractor must satisfy.
//
// Implementations MUST be:
//   - resilient: a malformed file yields (entities=nil, edges=nil,
//     diagnostics=[...]), never a returned error that aborts ingestion. The
//     error return is reserved for conditions that make parsing this file
//     entirely impossible (e.g. the file cannot be read) — even then the
//     pipeline treats it as a per-file failure, not a fatal one.
//   - deterministic: identical input bytes produce identical output
//     (including order) for a given adapter version.
type Adapter interface {
	// Language is the tag this adapter declares entities under.
	Language() isg.Language

	// SupportedExtensions lists the file extensions this adapter recognizes,
	// each including the leading dot.
	SupportedExtensions() []string

	// Parse extracts entities and intra-file edge candidates from source
	// bytes. path is used for key construction and diagnostics only; Parse
	// never touches the filesystem itself.
	Parse(ctx context.Context, path string, content []byte) (Result, error)
}

// Registry maps file extensions to the adapter that handles them.
type Registry struct {
	byExt map[string]Adapter
}

// NewRegistry builds a registry from a set of adapters, indexing each by
// every extension it declares. A later adapter registering an extension
// already claimed by an earlier one overrides it — callers control
// precedence by registration order.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byExt: make(map[string]Adapter)}
	for _, a := range adapters {
		for _, ext := range a.SupportedExtensions() {
			r.byExt[ext] = a
		}
	}
	return r
}

// For returns the adapter registered for ext (including the leading dot),
// or nil if no adapter recognizes it.
func (r *Registry) For(ext string) Adapter {
	return r.byExt[ext]
}

// Extensions returns every extension the registry recognizes.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	return out
}
