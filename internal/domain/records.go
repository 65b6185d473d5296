package domain

// SourceKind classifies where a piece of source text came from.
type SourceKind string

const (
	// SourceKnowledgeBase is curated failure-analysis knowledge (CSV/XLSX rows).
	SourceKnowledgeBase SourceKind = "kb"
	// SourceFieldIssue is a field-reported issue row. Field issues are the
	// query side of retrieval and are not embedded by default.
	SourceFieldIssue SourceKind = "field"
	// SourceRequirement is a requirement/PRD paragraph or table cell.
	SourceRequirement SourceKind = "prd"
)

// Scope is the (product, sub-assembly) pair that both indexing and
// generation are filtered by.
type Scope struct {
	Product     string
	Subassembly string
}

// SourceRecord is one atomic unit of raw extracted text, produced by an
// external document normalizer and consumed by the chunker. Immutable once
// produced; lives only for one pipeline run.
type SourceRecord struct {
	Product       string     `json:"product"`
	Subassembly   string     `json:"subassembly"`
	Component     string     `json:"component,omitempty"`
	Kind          SourceKind `json:"source_type"`
	File          string     `json:"file"`
	Index         int        `json:"idx"`
	Text          string     `json:"text"`
	RequirementID string     `json:"requirement_id,omitempty"`
	// Embed overrides the default embedding eligibility when set.
	// When nil, eligibility is inferred from Kind (field issues are skipped).
	Embed *bool `json:"embed,omitempty"`
}

// ChunkMeta carries the identifying fields of a chunk's originating record
// plus its sequential chunk number within that record.
type ChunkMeta struct {
	Product       string
	Subassembly   string
	Component     string
	Kind          SourceKind
	File          string
	Index         int
	ChunkID       int
	RequirementID string
	Embed         *bool
}

// Chunk is a bounded text segment derived from one SourceRecord.
// Never mutated after creation.
type Chunk struct {
	Text string
	Meta ChunkMeta
}

// EmbeddedChunk is a Chunk plus its embedding vector and token count.
type EmbeddedChunk struct {
	Chunk  Chunk
	Vector []float64
	Tokens int
}

// Payload is the flattened form of a chunk stored alongside its vector in
// the index, carrying everything needed to attribute a retrieval hit.
type Payload struct {
	Product       string `json:"product"`
	Subassembly   string `json:"subassembly"`
	Component     string `json:"component,omitempty"`
	Kind          string `json:"source_type"`
	File          string `json:"file"`
	Index         int    `json:"idx"`
	ChunkID       int    `json:"chunk_id"`
	RequirementID string `json:"requirement_id,omitempty"`
	Text          string `json:"text"`
}

// Payload flattens a chunk into its indexed form.
func (c Chunk) Payload() Payload {
	return Payload{
		Product:       c.Meta.Product,
		Subassembly:   c.Meta.Subassembly,
		Component:     c.Meta.Component,
		Kind:          string(c.Meta.Kind),
		File:          c.Meta.File,
		Index:         c.Meta.Index,
		ChunkID:       c.Meta.ChunkID,
		RequirementID: c.Meta.RequirementID,
		Text:          c.Text,
	}
}

// EvidenceHit is one similarity-search result surfaced to the synthesizer.
// ShortID is the compact token the hit is cited by within one synthesis call.
type EvidenceHit struct {
	Score   float64
	Payload Payload
	ShortID string
}

// ReportedIssue is one field-issue row requiring analysis.
type ReportedIssue struct {
	Product     string `json:"product"`
	Subassembly string `json:"subassembly"`
	Component   string `json:"component"`
	FaultCode   string `json:"fault_code,omitempty"`
	FaultType   string `json:"fault_type,omitempty"`
}

// Record is one canonical failure-analysis entry. List-typed source fields
// (effects, causes, controls, recommendations) arrive joined with "; ".
// A Record with zero citations must never be surfaced.
type Record struct {
	ID                 string
	Function           string
	FailureMode        string
	Effects            string
	Causes             string
	PreventionControls string
	DetectionControls  string
	Severity           int
	Occurrence         int
	Detection          int
	RPN                int
	Recommendations    string
	Owner              string
	TargetDate         string
	Citations          []string
}

// EvidenceRow is one flattened evidence table entry keyed by the owning
// record's ID. Legacy flat citations populate only CitationID.
type EvidenceRow struct {
	RecordID   string
	SourceType string
	File       string
	Index      string
	Snippet    string
	CitationID string
}
