package embedding

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"dfmea/internal/domain"
	"dfmea/internal/retry"
)

// Batcher turns chunks into embedded chunks: it filters out ineligible
// items, partitions the rest into fixed-size batches, calls the embedder
// once per batch with retry/backoff, and keeps token accounting per source
// kind. A batch that exhausts its retries is dropped and the run continues;
// output order follows the eligible input order.
type Batcher struct {
	embedder  domain.Embedder
	log       *zap.SugaredLogger
	batchSize int
	cooldown  time.Duration
	policy    retry.Policy
}

// Stats summarizes one batching run for observability.
type Stats struct {
	Eligible     int
	Skipped      int
	Dropped      int
	TotalTokens  int
	TokensByKind map[domain.SourceKind]int
}

// Config tunes the batcher. Zero values fall back to batch size 50, no
// cooldown, and the default retry policy; a Retry with MaxAttempts set
// replaces the default policy wholesale.
type Config struct {
	BatchSize int
	Cooldown  time.Duration
	Retry     retry.Policy
}

func NewBatcher(embedder domain.Embedder, cfg Config, log *zap.SugaredLogger) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.Default(IsTransient)
	}
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Batcher{
		embedder:  embedder,
		log:       log,
		batchSize: cfg.BatchSize,
		cooldown:  cfg.Cooldown,
		policy:    policy,
	}
}

// Eligible reports whether a chunk belongs in the evidence corpus. Field
// issues are the query side of retrieval, so they are excluded unless an
// explicit override marks them embeddable; an explicit false excludes any
// chunk.
func Eligible(ch domain.Chunk) bool {
	if ch.Meta.Embed != nil {
		return *ch.Meta.Embed
	}
	return ch.Meta.Kind != domain.SourceFieldIssue
}

// Run embeds all eligible, non-empty chunks. It returns early only on
// context cancellation; per-batch failures are absorbed as dropped batches.
func (b *Batcher) Run(ctx context.Context, chunks []domain.Chunk) ([]domain.EmbeddedChunk, Stats, error) {
	stats := Stats{TokensByKind: make(map[domain.SourceKind]int)}

	eligible := make([]domain.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Text) == "" || !Eligible(ch) {
			stats.Skipped++
			continue
		}
		eligible = append(eligible, ch)
	}
	stats.Eligible = len(eligible)
	b.log.Infow("embedding chunks", "eligible", stats.Eligible, "skipped", stats.Skipped)

	var out []domain.EmbeddedChunk
	for start := 0; start < len(eligible); start += b.batchSize {
		end := start + b.batchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		batch := eligible[start:end]
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}

		var vectors [][]float64
		err := b.policy.Do(ctx, func() error {
			var embedErr error
			vectors, embedErr = b.embedder.EmbedBatch(ctx, texts)
			return embedErr
		})
		if ctx.Err() != nil {
			return out, stats, ctx.Err()
		}
		if err != nil || len(vectors) != len(batch) {
			stats.Dropped += len(batch)
			b.log.Warnw("batch dropped after retries",
				"batch_start", start, "chunks_lost", len(batch), "error", err)
			continue
		}

		for i, ch := range batch {
			tokens := estimateTokens(ch.Text)
			stats.TotalTokens += tokens
			stats.TokensByKind[ch.Meta.Kind] += tokens
			out = append(out, domain.EmbeddedChunk{Chunk: ch, Vector: vectors[i], Tokens: tokens})
		}

		if b.cooldown > 0 && end < len(eligible) {
			select {
			case <-ctx.Done():
				return out, stats, ctx.Err()
			case <-time.After(b.cooldown):
			}
		}
	}

	b.log.Infow("token usage",
		"embedded", len(out),
		"total_tokens", stats.TotalTokens,
		"kb_tokens", stats.TokensByKind[domain.SourceKnowledgeBase],
		"prd_tokens", stats.TokensByKind[domain.SourceRequirement],
		"field_tokens", stats.TokensByKind[domain.SourceFieldIssue],
	)
	return out, stats, nil
}

// estimateTokens approximates one token per four characters; no precise
// tokenizer is available in-process.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
