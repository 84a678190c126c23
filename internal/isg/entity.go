// Package isg implements the Interface Signature Graph: the entity/edge
// model, invariant validation, and the concurrent in-memory graph that
// serves hot queries during a session.
package isg

import "fmt"

// Kind is the closed set of entity kinds the graph recognizes.
type Kind string

const (
	KindFunction   Kind = "Function"
	KindMethod     Kind = "Method"
	KindStruct     Kind = "Struct"
	KindEnum       Kind = "Enum"
	KindTrait      Kind = "Trait"
	KindClass      Kind = "Class"
	KindImpl       Kind = "Impl"
	KindModule     Kind = "Module"
	KindConstant   Kind = "Constant"
	KindTypeAlias  Kind = "TypeAlias"
	KindMacro      Kind = "Macro"
)

// Language is the closed set of source languages the graph tags entities with.
type Language string

const (
	LangRust       Language = "Rust"
	LangGo         Language = "Go"
	LangC          Language = "C"
	LangCPP        Language = "C++"
	LangJava       Language = "Java"
	LangPython     Language = "Python"
	LangJavaScript Language = "JavaScript"
	LangTypeScript Language = "TypeScript"
	LangRuby       Language = "Ruby"
	LangPHP        Language = "PHP"
	LangSwift      Language = "Swift"
	LangCSharp     Language = "C#"
)

// Visibility is the closed, language-mapped visibility set.
type Visibility string

const (
	VisibilityPublic     Visibility = "Public"
	VisibilityCrateLocal Visibility = "CrateLocal"
	VisibilitySuper      Visibility = "Super"
	VisibilityPrivate    Visibility = "Private"
)

// FutureAction is the nullable workflow action pending on an entity.
type FutureAction string

const (
	ActionCreate FutureAction = "Create"
	ActionEdit   FutureAction = "Edit"
	ActionDelete FutureAction = "Delete"
)

// TDDClass tags an entity as test or production code.
type TDDClass string

const (
	ClassTestImplementation TDDClass = "TestImplementation"
	ClassCodeImplementation TDDClass = "CodeImplementation"
)

// LineRange is a 1-based inclusive source range.
type LineRange struct {
	Start int
	End   int
}

// Param is one parameter of a signature.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Signature is the structured interface-signature payload: never stored as
// free text, always as this record (marshaled to JSON for the store).
type Signature struct {
	Name       string   `json:"name"`
	Generics   []string `json:"generics,omitempty"`
	Parameters []Param  `json:"parameters,omitempty"`
	ReturnType string   `json:"return_type,omitempty"`
	Bounds     []string `json:"bounds,omitempty"`
	Lifetimes  []string `json:"lifetimes,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
	TraitImpl  string   `json:"trait_impl,omitempty"`
}

// TDDClassification is the test/code tag plus optional complexity metadata.
type TDDClassification struct {
	Class      TDDClass `json:"class"`
	Complexity int      `json:"complexity,omitempty"`
}

// Entity is one node of the Interface Signature Graph.
type Entity struct {
	Key string
	// Ref is the qualified name (e.g. "pkg.Func") an EdgeCandidate targets
	// this entity by. An adapter building a "calls" edge to some other
	// entity — possibly in a file it hasn't parsed yet — can only address it
	// by a stable name, not by the target's exact LineRange, so the
	// ingestion pipeline resolves edge endpoints against Ref rather than
	// against the collision-resistant Key itself. Empty for entities no edge
	// ever targets by name (module entities address each other by Key).
	Ref                string
	Kind               Kind
	Name               string
	Language           Language
	FilePath           string
	LineRange          *LineRange // nil for pending creations with no source location
	Visibility         Visibility
	InterfaceSignature Signature
	CurrentCode        *string
	FutureCode         *string
	TDD                TDDClassification

	CurrentInd   bool
	FutureInd    bool
	FutureAction *FutureAction
}

// Validate checks I2 (temporal triple consistency) and I5 (line range sanity)
// for a single entity in isolation. I1 (key uniqueness) and I6 (edge
// multiset uniqueness) are graph-level invariants checked by Graph.
func (e *Entity) Validate() error {
	if e.Key == "" {
		return &InvariantError{Rule: "I1", Msg: "entity key must not be empty"}
	}
	if e.LineRange != nil && e.LineRange.Start > e.LineRange.End {
		return &InvariantError{Rule: "I5", Msg: fmt.Sprintf("line_range.start (%d) > line_range.end (%d) for %s", e.LineRange.Start, e.LineRange.End, e.Key)}
	}
	return validateTemporalTriple(e)
}

// validateTemporalTriple enforces I2's five legal states.
func validateTemporalTriple(e *Entity) error {
	switch {
	case e.CurrentInd && e.FutureInd && e.FutureAction == nil:
		// clean: (T,T,null)
		return nil
	case e.CurrentInd && e.FutureInd && e.FutureAction != nil && *e.FutureAction == ActionEdit:
		if e.FutureCode == nil || *e.FutureCode == "" {
			return &InvariantError{Rule: "I2", Msg: "pending Edit requires non-null future_code"}
		}
		if e.CurrentCode != nil && *e.FutureCode == *e.CurrentCode {
			return &InvariantError{Rule: "I2/P6", Msg: "future_code must differ from current_code for a pending Edit"}
		}
		return nil
	case e.CurrentInd && !e.FutureInd && e.FutureAction != nil && *e.FutureAction == ActionDelete:
		if e.FutureCode != nil {
			return &InvariantError{Rule: "I2", Msg: "pending Delete requires null future_code"}
		}
		return nil
	case !e.CurrentInd && e.FutureInd && e.FutureAction != nil && *e.FutureAction == ActionCreate:
		if e.FutureCode == nil || *e.FutureCode == "" {
			return &InvariantError{Rule: "I2", Msg: "pending Create requires non-null future_code"}
		}
		if e.CurrentCode != nil {
			return &InvariantError{Rule: "I2", Msg: "pending Create requires null current_code"}
		}
		return nil
	default:
		return &InvariantError{Rule: "I2", Msg: fmt.Sprintf("invalid temporal triple (current=%v, future=%v, action=%v) for %s", e.CurrentInd, e.FutureInd, e.FutureAction, e.Key)}
	}
}
