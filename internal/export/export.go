package export

import (
	"sort"
	"strconv"
	"strings"

	"parseltongue/internal/isg"
)

// LevelNotSupportedError is returned for a level outside {0,1,2}.
type LevelNotSupportedError struct{ Level int }

func (e *LevelNotSupportedError) Error() string {
	return "export level not supported: " + strconv.Itoa(e.Level)
}

// Metadata is the export_metadata block (§6).
type Metadata struct {
	Level         int    `json:"level"`
	Timestamp     string `json:"timestamp"`
	TotalEntities int    `json:"total_entities"`
	IncludeCode   bool   `json:"include_code"`
	WhereFilter   string `json:"where_filter"`
	TokenEstimate int    `json:"token_estimate"`
}

// EdgeRecord is a Level 0 row: the DependencyEdges projection.
type EdgeRecord struct {
	FromKey  string `json:"from_key"`
	ToKey    string `json:"to_key"`
	EdgeType string `json:"edge_type"`
}

// TypeFlags is Level 2's derived-from-interface_signature block.
type TypeFlags struct {
	IsAsync        bool     `json:"is_async"`
	IsUnsafe       bool     `json:"is_unsafe"`
	IsPublic       bool     `json:"is_public"`
	ReturnType     string   `json:"return_type"`
	ParameterTypes []string `json:"parameter_types"`
}

// EntityRecord is a Level 1 (and, with TypeFlags populated, Level 2) row.
type EntityRecord struct {
	Key                string        `json:"isgl1_key"`
	EntityName         string        `json:"entity_name"`
	EntityType         string        `json:"entity_type"`
	FilePath           string        `json:"file_path"`
	InterfaceSignature isg.Signature `json:"interface_signature"`
	CurrentInd         int           `json:"current_ind"`
	FutureInd          int           `json:"future_ind"`
	FutureAction       *string       `json:"future_action"`
	ForwardDeps        []string      `json:"forward_deps"`
	ReverseDeps        []string      `json:"reverse_deps"`
	CurrentCode        *string       `json:"current_code,omitempty"`
	FutureCode         *string       `json:"future_code,omitempty"`
	TypeFlags          *TypeFlags    `json:"type_flags,omitempty"`
}

// Document is the top-level export document: one metadata block plus
// either an entities array (Level 1/2) or an edges array (Level 0).
type Document struct {
	Metadata Metadata       `json:"export_metadata"`
	Entities []EntityRecord `json:"entities,omitempty"`
	Edges    []EdgeRecord   `json:"edges,omitempty"`
}

// Exporter renders graph snapshots into the §4.I document levels.
type Exporter struct {
	graph *isg.Graph
}

// New builds an exporter over graph.
func New(graph *isg.Graph) *Exporter {
	return &Exporter{graph: graph}
}

// Export renders level (0, 1, or 2) filtered by the parsed predicate string,
// at timestamp (caller-supplied ISO-8601, since this package never calls
// time.Now()). includeCode only affects Level 1/2.
func (x *Exporter) Export(level int, predicateStr string, includeCode bool, timestamp string) (*Document, error) {
	pred, err := ParsePredicate(predicateStr)
	if err != nil {
		return nil, err
	}

	switch level {
	case 0:
		return x.exportLevel0(pred, predicateStr, timestamp), nil
	case 1:
		return x.exportLevel(1, pred, predicateStr, includeCode, timestamp), nil
	case 2:
		return x.exportLevel(2, pred, predicateStr, includeCode, timestamp), nil
	default:
		return nil, &LevelNotSupportedError{Level: level}
	}
}

func (x *Exporter) exportLevel0(pred Predicate, predicateStr, timestamp string) *Document {
	entities := x.graph.Snapshot()
	matches := make(map[string]bool, len(entities))
	for _, e := range entities {
		if pred.Eval(e) {
			matches[e.Key] = true
		}
	}

	var edges []EdgeRecord
	for _, edge := range x.graph.AllEdges() {
		if matches[edge.From] && matches[edge.To] {
			edges = append(edges, EdgeRecord{FromKey: edge.From, ToKey: edge.To, EdgeType: string(edge.Type)})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FromKey != edges[j].FromKey {
			return edges[i].FromKey < edges[j].FromKey
		}
		return edges[i].ToKey < edges[j].ToKey
	})

	doc := &Document{
		Metadata: Metadata{Level: 0, Timestamp: timestamp, TotalEntities: len(matches), WhereFilter: predicateStr},
		Edges:    edges,
	}
	doc.Metadata.TokenEstimate = estimateTokens(doc)
	return doc
}

func (x *Exporter) exportLevel(level int, pred Predicate, predicateStr string, includeCode bool, timestamp string) *Document {
	entities := x.graph.Snapshot()
	sort.Slice(entities, func(i, j int) bool { return entities[i].Key < entities[j].Key })

	var records []EntityRecord
	for _, e := range entities {
		if !pred.Eval(e) {
			continue
		}
		// forward_deps/reverse_deps are populated here, directly from the
		// graph, not left for the consumer to compute (§4.I contract).
		record := EntityRecord{
			Key:                e.Key,
			EntityName:         e.Name,
			EntityType:         string(e.Kind),
			FilePath:           e.FilePath,
			InterfaceSignature: e.InterfaceSignature,
			CurrentInd:         boolToInt(e.CurrentInd),
			FutureInd:          boolToInt(e.FutureInd),
			ForwardDeps:        sortedCopy(x.graph.ForwardAll(e.Key, isg.AllEdgeTypes())),
			ReverseDeps:        sortedCopy(x.graph.ReverseAll(e.Key, isg.AllEdgeTypes())),
		}
		if e.FutureAction != nil {
			action := string(*e.FutureAction)
			record.FutureAction = &action
		}
		if includeCode {
			record.CurrentCode = e.CurrentCode
			record.FutureCode = e.FutureCode
		}
		if level == 2 {
			record.TypeFlags = deriveTypeFlags(e)
		}
		records = append(records, record)
	}

	doc := &Document{
		Metadata: Metadata{Level: level, Timestamp: timestamp, TotalEntities: len(records), IncludeCode: includeCode, WhereFilter: predicateStr},
		Entities: records,
	}
	doc.Metadata.TokenEstimate = estimateTokens(doc)
	return doc
}

// estimateTokens is a rough chars-per-token proxy over the already-built
// document: it exists so Metadata.TokenEstimate is monotone in level and in
// include_code (§4.I contract) without requiring an actual tokenizer
// dependency for a number that is advisory, not exact.
func estimateTokens(doc *Document) int {
	chars := 0
	for _, e := range doc.Edges {
		chars += len(e.FromKey) + len(e.ToKey) + len(e.EdgeType)
	}
	for _, e := range doc.Entities {
		chars += len(e.Key) + len(e.EntityName) + len(e.EntityType) + len(e.FilePath)
		chars += len(e.InterfaceSignature.Name) + len(e.InterfaceSignature.ReturnType)
		for _, p := range e.InterfaceSignature.Parameters {
			chars += len(p.Name) + len(p.Type)
		}
		for _, d := range e.ForwardDeps {
			chars += len(d)
		}
		for _, d := range e.ReverseDeps {
			chars += len(d)
		}
		if e.CurrentCode != nil {
			chars += len(*e.CurrentCode)
		}
		if e.FutureCode != nil {
			chars += len(*e.FutureCode)
		}
		if e.TypeFlags != nil {
			chars += len(e.TypeFlags.ReturnType)
			for _, pt := range e.TypeFlags.ParameterTypes {
				chars += len(pt)
			}
		}
	}
	return chars/4 + 1
}

func deriveTypeFlags(e isg.Entity) *TypeFlags {
	sig := e.InterfaceSignature
	flags := &TypeFlags{
		IsPublic:   e.Visibility == isg.VisibilityPublic,
		ReturnType: sig.ReturnType,
	}
	for _, p := range sig.Parameters {
		flags.ParameterTypes = append(flags.ParameterTypes, p.Type)
	}
	for _, attr := range sig.Attributes {
		lower := strings.ToLower(attr)
		if strings.Contains(lower, "async") {
			flags.IsAsync = true
		}
		if strings.Contains(lower, "unsafe") {
			flags.IsUnsafe = true
		}
	}
	return flags
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
