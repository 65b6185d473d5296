// Package qdrant is a minimal REST client to Qdrant implementing the
// vector index contract. Collections use cosine distance and are created
// on first Ensure.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"dfmea/internal/domain"
)

// Store talks to one Qdrant collection over HTTP.
type Store struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

// Config configures the Qdrant client. With SessionSuffix set, the
// collection name gets a short unique suffix so concurrent runs against a
// shared cluster do not collide.
type Config struct {
	URL           string
	APIKeyEnv     string
	Collection    string
	SessionSuffix bool
	Timeout       time.Duration
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant url is required")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "dfmea_corpus"
	}
	if cfg.SessionSuffix {
		collection = fmt.Sprintf("%s_%s", collection, uuid.NewString()[:8])
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Store{
		url:        cfg.URL,
		apiKey:     os.Getenv(cfg.APIKeyEnv),
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// Collection returns the resolved collection name, suffix included.
func (s *Store) Collection() string { return s.collection }

// Ensure creates the collection with the given dimensionality if missing.
// The first successful call fixes the dimensionality for this run; later
// calls are no-ops.
func (s *Store) Ensure(ctx context.Context, dim int) error {
	if dim <= 0 {
		return errors.New("invalid dimension")
	}
	if s.dimension != 0 {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 200 if the collection already exists with the same
	// schema and 409 if it exists at all; both mean "present".
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, http.StatusConflict); err != nil {
		return fmt.Errorf("ensure collection %s: %w", s.collection, err)
	}
	s.dimension = dim
	return nil
}

// Upsert writes embedded chunks as new points with fresh UUIDs. Entries
// with empty vectors are skipped; zero valid entries is a no-op that does
// not create the collection.
func (s *Store) Upsert(ctx context.Context, chunks []domain.EmbeddedChunk) (int, error) {
	points := make([]map[string]any, 0, len(chunks))
	var dim int
	for _, ec := range chunks {
		if len(ec.Vector) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(ec.Vector)
		}
		points = append(points, map[string]any{
			"id":      uuid.NewString(),
			"vector":  ec.Vector,
			"payload": ec.Chunk.Payload(),
		})
	}
	if len(points) == 0 {
		return 0, nil
	}
	if err := s.Ensure(ctx, dim); err != nil {
		return 0, err
	}
	body := map[string]any{"points": points}
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body); err != nil {
		return 0, fmt.Errorf("upsert %d points into %s: %w", len(points), s.collection, err)
	}
	return len(points), nil
}

// Search runs a filtered similarity query. Product and sub-assembly are
// always matched exactly; source kinds and components, when given, become
// any-of matches.
func (s *Store) Search(ctx context.Context, vector []float64, f domain.Filter, limit int, threshold float64) ([]domain.EvidenceHit, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 12
	}
	must := []map[string]any{
		{"key": "product", "match": map[string]any{"value": f.Product}},
		{"key": "subassembly", "match": map[string]any{"value": f.Subassembly}},
	}
	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = string(k)
		}
		must = append(must, map[string]any{"key": "source_type", "match": map[string]any{"any": kinds}})
	}
	if len(f.Components) > 0 {
		must = append(must, map[string]any{"key": "component", "match": map[string]any{"any": f.Components}})
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"filter":       map[string]any{"must": must},
	}
	if threshold > 0 {
		req["score_threshold"] = threshold
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload domain.Payload `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	if err := s.postJSON(ctx, url, req, &resp); err != nil {
		return nil, fmt.Errorf("search %s: %w", s.collection, err)
	}
	hits := make([]domain.EvidenceHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, domain.EvidenceHit{Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

// DeleteCollection drops the whole collection, best effort.
func (s *Store) DeleteCollection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil)
	if err != nil {
		return err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	s.dimension = 0
	return nil
}

func (s *Store) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

func (s *Store) putJSON(ctx context.Context, url string, body any, okStatuses ...int) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && !statusIn(resp.StatusCode, okStatuses) {
		return fmt.Errorf("qdrant PUT %s failed: %s", url, resp.Status)
	}
	return nil
}

func (s *Store) postJSON(ctx context.Context, url string, body, out any) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func statusIn(code int, statuses []int) bool {
	for _, s := range statuses {
		if code == s {
			return true
		}
	}
	return false
}
