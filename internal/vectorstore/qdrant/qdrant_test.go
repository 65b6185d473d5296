package qdrant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dfmea/internal/domain"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	apiKey string
	body   map[string]any
}

func recordingServer(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}
		reqs = append(reqs, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			apiKey: r.Header.Get("api-key"),
			body:   body,
		})
		if respond != nil {
			respond(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":{},"status":"ok"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestNewStoreRequiresURL(t *testing.T) {
	_, err := NewStore(Config{})
	require.Error(t, err)
}

func TestSessionSuffixMakesCollectionUnique(t *testing.T) {
	a, err := NewStore(Config{URL: "http://localhost:6333", Collection: "corpus", SessionSuffix: true})
	require.NoError(t, err)
	b, err := NewStore(Config{URL: "http://localhost:6333", Collection: "corpus", SessionSuffix: true})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a.Collection(), "corpus_"))
	assert.Len(t, a.Collection(), len("corpus_")+8)
	assert.NotEqual(t, a.Collection(), b.Collection())
}

func TestEnsureCreatesCollectionOnce(t *testing.T) {
	srv, reqs := recordingServer(t, nil)
	s, err := NewStore(Config{URL: srv.URL, Collection: "corpus"})
	require.NoError(t, err)

	require.NoError(t, s.Ensure(context.Background(), 8))
	require.NoError(t, s.Ensure(context.Background(), 8))

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/collections/corpus", req.path)
	vectors := req.body["vectors"].(map[string]any)
	assert.Equal(t, float64(8), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestEnsureTreatsConflictAsPresent(t *testing.T) {
	srv, _ := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	s, err := NewStore(Config{URL: srv.URL, Collection: "corpus"})
	require.NoError(t, err)
	assert.NoError(t, s.Ensure(context.Background(), 8))
}

func TestUpsertSkipsEmptyVectorsAndWaits(t *testing.T) {
	srv, reqs := recordingServer(t, nil)
	s, err := NewStore(Config{URL: srv.URL, Collection: "corpus"})
	require.NoError(t, err)

	chunk := domain.Chunk{
		Text: "backlight flicker at low duty cycle",
		Meta: domain.ChunkMeta{Product: "Quasar", Subassembly: "Display", Kind: domain.SourceKnowledgeBase, File: "kb.csv"},
	}
	n, err := s.Upsert(context.Background(), []domain.EmbeddedChunk{
		{Chunk: chunk, Vector: []float64{1, 0}},
		{Chunk: chunk, Vector: nil},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// ensure then upsert
	require.Len(t, *reqs, 2)
	up := (*reqs)[1]
	assert.Equal(t, "/collections/corpus/points", up.path)
	assert.Equal(t, "wait=true", up.query)
	points := up.body["points"].([]any)
	require.Len(t, points, 1)
	point := points[0].(map[string]any)
	assert.NotEmpty(t, point["id"])
	payload := point["payload"].(map[string]any)
	assert.Equal(t, "Quasar", payload["product"])
	assert.Equal(t, "kb", payload["source_type"])
	assert.Equal(t, chunk.Text, payload["text"])
}

func TestUpsertZeroValidEntriesIsNoOp(t *testing.T) {
	srv, reqs := recordingServer(t, nil)
	s, err := NewStore(Config{URL: srv.URL, Collection: "corpus"})
	require.NoError(t, err)

	n, err := s.Upsert(context.Background(), []domain.EmbeddedChunk{{Vector: nil}})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, *reqs)
}

func TestSearchBuildsFilterAndParsesHits(t *testing.T) {
	srv, reqs := recordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.91,"payload":{"product":"Quasar","subassembly":"Display","source_type":"kb","file":"kb.csv","idx":3,"chunk_id":0,"text":"hit one"}},
			{"score":0.55,"payload":{"product":"Quasar","subassembly":"Display","source_type":"prd","file":"prd.docx","idx":7,"chunk_id":1,"requirement_id":"REQ-12","text":"hit two"}}
		]}`))
	})
	s, err := NewStore(Config{URL: srv.URL, Collection: "corpus"})
	require.NoError(t, err)

	f := domain.Filter{
		Product:     "Quasar",
		Subassembly: "Display",
		Kinds:       []domain.SourceKind{domain.SourceKnowledgeBase, domain.SourceRequirement},
		Components:  []string{"Backlight"},
	}
	hits, err := s.Search(context.Background(), []float64{1, 0}, f, 12, 0.48)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0.91, hits[0].Score)
	assert.Equal(t, "hit one", hits[0].Payload.Text)
	assert.Equal(t, "REQ-12", hits[1].Payload.RequirementID)

	require.Len(t, *reqs, 1)
	body := (*reqs)[0].body
	assert.Equal(t, "/collections/corpus/points/search", (*reqs)[0].path)
	assert.Equal(t, float64(12), body["limit"])
	assert.Equal(t, 0.48, body["score_threshold"])
	assert.Equal(t, true, body["with_payload"])

	must := body["filter"].(map[string]any)["must"].([]any)
	require.Len(t, must, 4)
	first := must[0].(map[string]any)
	assert.Equal(t, "product", first["key"])
	assert.Equal(t, "Quasar", first["match"].(map[string]any)["value"])
	kinds := must[2].(map[string]any)
	assert.Equal(t, "source_type", kinds["key"])
	assert.ElementsMatch(t, []any{"kb", "prd"}, kinds["match"].(map[string]any)["any"])
}

func TestSearchEmptyVectorReturnsNothing(t *testing.T) {
	srv, reqs := recordingServer(t, nil)
	s, err := NewStore(Config{URL: srv.URL, Collection: "corpus"})
	require.NoError(t, err)

	hits, err := s.Search(context.Background(), nil, domain.Filter{Product: "Quasar"}, 12, 0.48)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Empty(t, *reqs)
}

func TestDeleteCollection(t *testing.T) {
	srv, reqs := recordingServer(t, nil)
	s, err := NewStore(Config{URL: srv.URL, Collection: "corpus"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteCollection(context.Background()))
	require.Len(t, *reqs, 1)
	assert.Equal(t, http.MethodDelete, (*reqs)[0].method)
	assert.Equal(t, "/collections/corpus", (*reqs)[0].path)
}

func TestAPIKeyHeaderSentWhenConfigured(t *testing.T) {
	t.Setenv("QDRANT_API_KEY_TEST", "secret")
	srv, reqs := recordingServer(t, nil)
	s, err := NewStore(Config{URL: srv.URL, APIKeyEnv: "QDRANT_API_KEY_TEST", Collection: "corpus"})
	require.NoError(t, err)

	require.NoError(t, s.Ensure(context.Background(), 4))
	require.Len(t, *reqs, 1)
	assert.Equal(t, "secret", (*reqs)[0].apiKey)
}
