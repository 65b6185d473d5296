package domain

import "context"

// Chunker splits source records into bounded, overlapping text chunks.
// It does not fail: bad input degrades to empty output.
type Chunker interface {
	Chunk(records []SourceRecord) []Chunk
}

// Embedder converts batches of texts into fixed-dimension vectors, one
// vector per input in the same order. Dimension is constant within a
// session and reported after the first successful call.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	Dimension() int
}

// Filter scopes a similarity search. Product and Subassembly are equality
// matches and always required; Kinds and Components, when non-empty, are
// inclusion matches.
type Filter struct {
	Product     string
	Subassembly string
	Kinds       []SourceKind
	Components  []string
}

// VectorIndex is a named collection of embedded chunks supporting filtered
// similarity search.
type VectorIndex interface {
	// Ensure idempotently guarantees the collection exists with the given
	// dimensionality. The first successful call fixes the dimensionality
	// for the run.
	Ensure(ctx context.Context, dim int) error
	// Upsert writes embedded chunks as new entries, skipping entries with
	// empty vectors. Returns the count written. Zero valid entries is a
	// no-op returning 0 and does not force collection creation.
	Upsert(ctx context.Context, entries []EmbeddedChunk) (int, error)
	// Search returns hits matching the filter, ranked by descending
	// similarity, truncated to limit, excluding scores below threshold
	// when threshold > 0.
	Search(ctx context.Context, vector []float64, f Filter, limit int, threshold float64) ([]EvidenceHit, error)
	// DeleteCollection drops the whole collection. Entries are never
	// deleted individually.
	DeleteCollection(ctx context.Context) error
}

// Completer is the opaque language-model capability: given a system
// instruction and a user message, return a text completion. The text has no
// schema guarantee and must be parsed defensively.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// WorkbookWriter turns canonical records plus their evidence table into a
// downloadable binary.
type WorkbookWriter interface {
	Write(records []Record, evidence []EvidenceRow, meta Scope) ([]byte, error)
}
