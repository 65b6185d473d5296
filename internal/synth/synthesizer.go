// Package synth turns reported field issues into evidence-backed
// failure-analysis records. Generation is strictly retrieval-gated: an
// issue with too little supporting evidence yields no records rather than
// speculation.
package synth

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"dfmea/internal/domain"
	"dfmea/internal/normalize"
)

// Config holds the evidence-gating knobs.
type Config struct {
	TopK           int
	ScoreThreshold float64
	MinHits        int
}

// Synthesizer runs the query, retrieve, decide, synthesize loop per issue.
type Synthesizer struct {
	embedder  domain.Embedder
	index     domain.VectorIndex
	completer domain.Completer
	log       *zap.SugaredLogger
	cfg       Config
}

func New(embedder domain.Embedder, index domain.VectorIndex, completer domain.Completer, log *zap.SugaredLogger, cfg Config) *Synthesizer {
	if cfg.TopK <= 0 {
		cfg.TopK = 12
	}
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = 0.48
	}
	if cfg.MinHits <= 0 {
		cfg.MinHits = 2
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Synthesizer{embedder: embedder, index: index, completer: completer, log: log, cfg: cfg}
}

// Generate processes each issue independently and returns all surviving
// records plus their evidence table. The result is always a (possibly empty)
// list, never an error for per-issue failures: an issue that cannot be
// grounded or synthesized is skipped and logged. Only context cancellation
// aborts the run.
func (s *Synthesizer) Generate(ctx context.Context, issues []domain.ReportedIssue) ([]domain.Record, []domain.EvidenceRow, error) {
	records := []domain.Record{}
	var evidence []domain.EvidenceRow
	nextID := 1

	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return records, evidence, err
		}
		recs, rows := s.generateOne(ctx, issue)
		for i := range recs {
			if recs[i].ID == "" {
				recs[i].ID = strconv.Itoa(nextID)
			}
			// keep numbering monotonic past model-supplied IDs
			if n, err := strconv.Atoi(recs[i].ID); err == nil && n+1 > nextID {
				nextID = n + 1
			}
			for j := range rows[i] {
				rows[i][j].RecordID = recs[i].ID
			}
			records = append(records, recs[i])
			evidence = append(evidence, rows[i]...)
		}
	}
	return records, evidence, nil
}

// generateOne runs the full loop for a single issue. Records come back
// without final IDs; evidence rows are grouped per record.
func (s *Synthesizer) generateOne(ctx context.Context, issue domain.ReportedIssue) ([]domain.Record, [][]domain.EvidenceRow) {
	query := buildQuery(issue)
	if query == "" {
		s.log.Warnw("skipping issue with no query content", "product", issue.Product)
		return nil, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		s.log.Warnw("query embedding failed, abstaining", "query", query, "error", err)
		return nil, nil
	}

	filter := domain.Filter{Product: issue.Product, Subassembly: issue.Subassembly}
	if issue.Component != "" {
		filter.Components = []string{issue.Component}
	}
	hits, err := s.index.Search(ctx, vectors[0], filter, s.cfg.TopK, s.cfg.ScoreThreshold)
	if err != nil {
		s.log.Warnw("retrieval failed, abstaining", "query", query, "error", err)
		return nil, nil
	}

	if len(hits) < s.cfg.MinHits {
		s.log.Infow("insufficient evidence, abstaining",
			"query", query, "hits", len(hits), "min_hits", s.cfg.MinHits)
		return nil, nil
	}
	hits = usableHits(hits)
	if len(hits) == 0 {
		s.log.Infow("no citable evidence text, abstaining", "query", query)
		return nil, nil
	}
	shortIDs := assignShortIDs(hits)

	reply, err := s.completer.Complete(ctx, systemPrompt, buildUserMessage(issue, hits))
	if err != nil {
		s.log.Warnw("synthesis call failed, abstaining", "query", query, "error", err)
		return nil, nil
	}

	raw := parseRecords(reply)
	if len(raw) == 0 {
		s.log.Infow("model returned no grounded entries", "query", query)
		return nil, nil
	}

	var recs []domain.Record
	var rows [][]domain.EvidenceRow
	for _, r := range raw {
		rec, ev, ok := normalize.Record(r, shortIDs)
		if !ok {
			continue
		}
		recs = append(recs, rec)
		rows = append(rows, ev)
	}
	s.log.Infow("synthesized records", "query", query, "hits", len(hits), "records", len(recs))
	return recs, rows
}

// usableHits drops hits whose stored text is empty; they cannot be cited.
func usableHits(hits []domain.EvidenceHit) []domain.EvidenceHit {
	out := hits[:0]
	for _, h := range hits {
		if strings.TrimSpace(h.Payload.Text) != "" {
			out = append(out, h)
		}
	}
	return out
}

// assignShortIDs gives each hit a compact citation token: its requirement id
// when present, otherwise a positional ctx_<n> id. Returns all assigned ids.
func assignShortIDs(hits []domain.EvidenceHit) []string {
	ids := make([]string, len(hits))
	for i := range hits {
		id := hits[i].Payload.RequirementID
		if id == "" {
			id = fmt.Sprintf("ctx_%d", i+1)
		}
		hits[i].ShortID = id
		ids[i] = id
	}
	return ids
}
