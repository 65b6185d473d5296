// Package memory is a brute-force cosine-similarity vector index used for
// offline runs and tests. Filtering semantics match the Qdrant index.
package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"dfmea/internal/domain"
)

type entry struct {
	id      string
	vector  []float64
	payload domain.Payload
}

// Store keeps index entries in process memory. Entries are only removed by
// DeleteCollection; re-indexing appends new entries.
type Store struct {
	mu        sync.RWMutex
	dimension int
	ready     bool
	entries   []entry
}

func NewStore() *Store { return &Store{} }

func (s *Store) Ensure(_ context.Context, dim int) error {
	if dim <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		s.dimension = dim
		s.ready = true
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, chunks []domain.EmbeddedChunk) (int, error) {
	valid := make([]entry, 0, len(chunks))
	for _, ec := range chunks {
		if len(ec.Vector) == 0 {
			continue
		}
		valid = append(valid, entry{
			id:      uuid.NewString(),
			vector:  ec.Vector,
			payload: ec.Chunk.Payload(),
		})
	}
	if len(valid) == 0 {
		return 0, nil
	}
	if err := s.Ensure(ctx, len(valid[0].vector)); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range valid {
		if len(e.vector) != s.dimension {
			return 0, errors.New("vector dimension mismatch")
		}
	}
	s.entries = append(s.entries, valid...)
	return len(valid), nil
}

func (s *Store) Search(_ context.Context, vector []float64, f domain.Filter, limit int, threshold float64) ([]domain.EvidenceHit, error) {
	if limit <= 0 {
		limit = 12
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []domain.EvidenceHit
	for _, e := range s.entries {
		if !matches(e.payload, f) {
			continue
		}
		score := cosine(vector, e.vector)
		if threshold > 0 && score < threshold {
			continue
		}
		hits = append(hits, domain.EvidenceHit{Score: score, Payload: e.payload})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) DeleteCollection(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.ready = false
	s.dimension = 0
	return nil
}

func matches(p domain.Payload, f domain.Filter) bool {
	if p.Product != f.Product || p.Subassembly != f.Subassembly {
		return false
	}
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, p.Kind) {
		return false
	}
	if len(f.Components) > 0 && !containsString(f.Components, p.Component) {
		return false
	}
	return true
}

func containsKind(kinds []domain.SourceKind, kind string) bool {
	for _, k := range kinds {
		if string(k) == kind {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
