package temporal

import "parseltongue/internal/isg"

// ChangesetDocument is the JSON shape of the change-set document (§6):
// the serialized form of Overlay.Changeset plus its summary metadata.
type ChangesetDocument struct {
	Changes  []ChangeRecord   `json:"changes"`
	Metadata ChangesetSummary `json:"metadata"`
}

// ChangeRecord is one entry of the change-set document.
type ChangeRecord struct {
	Key                string        `json:"isgl1_key"`
	FilePath           string        `json:"file_path"`
	Operation          string        `json:"operation"`
	LineRange          *isg.LineRange `json:"line_range"`
	CurrentCode        *string       `json:"current_code"`
	FutureCode         *string       `json:"future_code"`
	InterfaceSignature isg.Signature `json:"interface_signature"`
}

// ChangesetSummary is the change-set document's metadata block.
type ChangesetSummary struct {
	Total       int    `json:"total"`
	Create      int    `json:"create"`
	Edit        int    `json:"edit"`
	Delete      int    `json:"delete"`
	GeneratedAt string `json:"generated_at"`
	SessionID   string `json:"session_id"`
}

// BuildChangesetDocument renders a Changeset() result into the §6 document
// shape. generatedAt and sessionID are supplied by the caller (ISO-8601
// timestamp and a session correlation ID, typically a fresh
// github.com/google/uuid string) since this package never generates either
// itself beyond Create's key generation.
func BuildChangesetDocument(changes []Change, generatedAt, sessionID string) ChangesetDocument {
	doc := ChangesetDocument{Metadata: ChangesetSummary{GeneratedAt: generatedAt, SessionID: sessionID}}
	for _, c := range changes {
		doc.Changes = append(doc.Changes, ChangeRecord{
			Key:                c.Key,
			FilePath:           c.FilePath,
			Operation:          string(c.Operation),
			LineRange:          c.LineRange,
			CurrentCode:        c.CurrentCode,
			FutureCode:         c.FutureCode,
			InterfaceSignature: c.InterfaceSignature,
		})
		doc.Metadata.Total++
		switch c.Operation {
		case isg.ActionCreate:
			doc.Metadata.Create++
		case isg.ActionEdit:
			doc.Metadata.Edit++
		case isg.ActionDelete:
			doc.Metadata.Delete++
		}
	}
	return doc
}
