// Package service composes the indexing and generation pipelines out of the
// chunking, embedding, retrieval and synthesis stages.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dfmea/internal/domain"
	"dfmea/internal/embedding"
	"dfmea/internal/synth"
)

// IndexStats summarizes one indexing run.
type IndexStats struct {
	Items    int
	Chunks   int
	Embedded int
	Skipped  int
	Dropped  int
	Upserted int
	Tokens   int
}

// Pipeline owns the two top-level operations: indexing source records into
// the evidence corpus and generating records for reported issues.
type Pipeline struct {
	chunker domain.Chunker
	batcher *embedding.Batcher
	index   domain.VectorIndex
	synth   *synth.Synthesizer
	log     *zap.SugaredLogger
}

func NewPipeline(chunker domain.Chunker, batcher *embedding.Batcher, index domain.VectorIndex, synthesizer *synth.Synthesizer, log *zap.SugaredLogger) *Pipeline {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{chunker: chunker, batcher: batcher, index: index, synth: synthesizer, log: log}
}

// Index chunks, embeds and upserts the given source records. Per-batch
// embedding failures degrade coverage and are only logged; an unreachable
// index is fatal because a partial corpus would silently skew retrieval.
func (p *Pipeline) Index(ctx context.Context, records []domain.SourceRecord) (IndexStats, error) {
	stats := IndexStats{Items: len(records)}

	chunks := p.chunker.Chunk(records)
	stats.Chunks = len(chunks)
	p.log.Infow("chunked source records", "items", stats.Items, "chunks", stats.Chunks)

	embedded, bstats, err := p.batcher.Run(ctx, chunks)
	stats.Embedded = len(embedded)
	stats.Skipped = bstats.Skipped
	stats.Dropped = bstats.Dropped
	stats.Tokens = bstats.TotalTokens
	if err != nil {
		return stats, err
	}
	if len(embedded) == 0 {
		p.log.Infow("nothing to upsert", "skipped", stats.Skipped, "dropped", stats.Dropped)
		return stats, nil
	}

	n, err := p.index.Upsert(ctx, embedded)
	if err != nil {
		return stats, fmt.Errorf("index upsert: %w", err)
	}
	stats.Upserted = n
	p.log.Infow("indexed corpus",
		"upserted", n, "dropped", stats.Dropped, "tokens", stats.Tokens)
	return stats, nil
}

// Generate produces failure-analysis records for the reported issues.
// The result is always a list; issues without enough evidence contribute
// nothing.
func (p *Pipeline) Generate(ctx context.Context, issues []domain.ReportedIssue) ([]domain.Record, []domain.EvidenceRow, error) {
	return p.synth.Generate(ctx, issues)
}

// Reset drops the evidence corpus.
func (p *Pipeline) Reset(ctx context.Context) error {
	return p.index.DeleteCollection(ctx)
}
