package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dfmea/internal/chunker"
	"dfmea/internal/config"
	"dfmea/internal/domain"
	"dfmea/internal/embedding"
	"dfmea/internal/synth"
	"dfmea/internal/vectorstore/memory"
)

type unitEmbedder struct {
	dim   int
	calls int
}

func (u *unitEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	u.calls++
	out := make([][]float64, len(texts))
	for i := range texts {
		v := make([]float64, u.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func (u *unitEmbedder) Dimension() int { return u.dim }

type scriptedCompleter struct {
	reply string
	calls int
}

func (s *scriptedCompleter) Complete(context.Context, string, string) (string, error) {
	s.calls++
	return s.reply, nil
}

func longText(n int) string {
	var b strings.Builder
	i := 0
	for b.Len() < n {
		i++
		fmt.Fprintf(&b, "The display backlight shall maintain uniform luminance across the panel area %02d. ", i)
	}
	return b.String()
}

func newTestPipeline(t *testing.T, embedder domain.Embedder, completer domain.Completer) (*Pipeline, *memory.Store) {
	t.Helper()
	cfg := config.Default()
	log := zap.NewNop().Sugar()
	store := memory.NewStore()
	batcher := embedding.NewBatcher(embedder, embedding.Config{BatchSize: cfg.Embedder.BatchSize}, log)
	synthesizer := synth.New(embedder, store, completer, log, synth.Config{
		TopK:           cfg.Generation.TopK,
		ScoreThreshold: cfg.Generation.ScoreThreshold,
		MinHits:        cfg.Generation.MinHits,
	})
	return NewPipeline(chunker.New(cfg.Chunking), batcher, store, synthesizer, log), store
}

func TestIndexThenGenerateEndToEnd(t *testing.T) {
	embedder := &unitEmbedder{dim: 8}
	completer := &scriptedCompleter{
		reply: `[{"Function":"Panel illumination","Failure Mode":"Backlight flicker","citations":["ctx_1"]}]`,
	}
	p, _ := newTestPipeline(t, embedder, completer)

	records := []domain.SourceRecord{
		{Product: "Quasar", Subassembly: "Display", Kind: domain.SourceKnowledgeBase, File: "kb.csv", Index: 0, Text: longText(1500)},
		{Product: "Quasar", Subassembly: "Display", Kind: domain.SourceRequirement, File: "prd.docx", Index: 1, Text: longText(1500)},
	}
	stats, err := p.Index(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Items)
	assert.GreaterOrEqual(t, stats.Chunks, 4, "each record should split into at least two chunks")
	assert.Equal(t, stats.Chunks, stats.Embedded)
	assert.Equal(t, stats.Embedded, stats.Upserted)
	assert.Zero(t, stats.Dropped)

	issues := []domain.ReportedIssue{{Product: "Quasar", Subassembly: "Display", FaultCode: "E42"}}
	out, evidence, err := p.Generate(context.Background(), issues)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0].ID)
	assert.Equal(t, "Backlight flicker", out[0].FailureMode)
	assert.Equal(t, []string{"ctx_1"}, out[0].Citations)
	assert.Equal(t, 1, out[0].Severity)
	assert.Equal(t, 1, out[0].RPN)
	require.NotEmpty(t, evidence)
	assert.Equal(t, "1", evidence[0].RecordID)
	assert.Equal(t, 1, completer.calls)
}

func TestFieldIssueRowsAreNotIndexed(t *testing.T) {
	embedder := &unitEmbedder{dim: 8}
	p, _ := newTestPipeline(t, embedder, &scriptedCompleter{reply: "[]"})

	stats, err := p.Index(context.Background(), []domain.SourceRecord{
		{Product: "Quasar", Subassembly: "Display", Kind: domain.SourceFieldIssue, File: "issues.csv", Text: longText(400)},
	})
	require.NoError(t, err)
	assert.Zero(t, stats.Embedded)
	assert.Zero(t, stats.Upserted)
	assert.Zero(t, embedder.calls)
}

func TestGenerateAbstainsAgainstEmptyCorpus(t *testing.T) {
	completer := &scriptedCompleter{reply: `[{"Failure Mode":"x","citations":["ctx_1"]}]`}
	p, _ := newTestPipeline(t, &unitEmbedder{dim: 8}, completer)

	out, _, err := p.Generate(context.Background(), []domain.ReportedIssue{
		{Product: "Quasar", Subassembly: "Display"},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, completer.calls)
}

func TestResetDropsCorpus(t *testing.T) {
	embedder := &unitEmbedder{dim: 8}
	p, store := newTestPipeline(t, embedder, &scriptedCompleter{reply: "[]"})

	_, err := p.Index(context.Background(), []domain.SourceRecord{
		{Product: "Quasar", Subassembly: "Display", Kind: domain.SourceKnowledgeBase, File: "kb.csv", Text: longText(400)},
	})
	require.NoError(t, err)
	require.NoError(t, p.Reset(context.Background()))

	hits, err := store.Search(context.Background(), []float64{1, 0, 0, 0, 0, 0, 0, 0}, domain.Filter{Product: "Quasar", Subassembly: "Display"}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
