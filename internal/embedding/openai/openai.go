package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"dfmea/internal/embedding"
)

// Client is an OpenAI-compatible embeddings client. It embeds whole batches
// in one call and reports the vector dimensionality after the first
// successful request. Rate-limit, connectivity, and 5xx failures surface as
// embedding.TransientError so the caller's retry policy can distinguish
// them from permanent errors.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
}

// Config configures the embeddings client. The API key is resolved from
// the named environment variable at construction time.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  key,
		model:   cfg.Model,
		client:  &http.Client{Timeout: t},
	}, nil
}

// Dimension returns the dimensionality of produced vectors, 0 before the
// first successful call.
func (c *Client) Dimension() int { return c.dimension }

// EmbedBatch returns one vector per input text, same order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}{Input: texts, Model: c.model}
	data, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &embedding.TransientError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &embedding.TransientError{Op: "request", Err: fmt.Errorf("embeddings failed: %s", resp.Status)}
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embeddings failed: %s", resp.Status)
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings count mismatch: want %d got %d", len(texts), len(out.Data))
	}

	vectors := make([][]float64, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embeddings index out of range: %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for _, v := range vectors {
		if len(v) == 0 {
			return nil, errors.New("empty embedding returned")
		}
	}
	if c.dimension == 0 {
		c.dimension = len(vectors[0])
	}
	return vectors, nil
}
