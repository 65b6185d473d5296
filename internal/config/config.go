package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ChunkingConfig configures how source records are split into chunks.
type ChunkingConfig struct {
	TargetSize          int  `yaml:"target_size"`
	Overlap             int  `yaml:"overlap"`
	MinSize             int  `yaml:"min_size"`
	SentenceAware       bool `yaml:"sentence_aware"`
	NormalizeWhitespace bool `yaml:"normalize_whitespace"`
	TrimQuotes          bool `yaml:"trim_quotes"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible
// embeddings endpoint (Azure deployments included).
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the embedder implementation plus
// the batching layer in front of it.
type EmbedderConfig struct {
	Type           string                `yaml:"type"`
	BatchSize      int                   `yaml:"batch_size"`
	CooldownSecs   float64               `yaml:"cooldown_secs"`
	MaxAttempts    int                   `yaml:"max_attempts"`
	LocalDimension int                   `yaml:"local_dimension,omitempty"`
	OpenAI         *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector index.
type QdrantConfig struct {
	URL           string `yaml:"url"`
	APIKeyEnv     string `yaml:"api_key_env"`
	Collection    string `yaml:"collection"`
	SessionSuffix bool   `yaml:"session_suffix"`
	TimeoutSecs   int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector index implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// CompletionConfig configures the chat-completion capability used by the
// synthesizer.
type CompletionConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// GenerationConfig holds the evidence-gating knobs of the synthesizer.
type GenerationConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	MinHits        int     `yaml:"min_hits"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Completion  CompletionConfig  `yaml:"completion"`
	Generation  GenerationConfig  `yaml:"generation"`
}

// Load reads a config from a specified path. If the file does not exist,
// returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/dfmea/config.yaml.
// If neither exists, it writes defaults to ~/.config/dfmea/config.yaml and
// returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "dfmea", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunking.TargetSize == 0 {
		cfg.Chunking = ChunkingConfig{
			TargetSize:          900,
			Overlap:             150,
			MinSize:             200,
			SentenceAware:       true,
			NormalizeWhitespace: true,
			TrimQuotes:          true,
		}
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "local"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 50
	}
	if cfg.Embedder.CooldownSecs == 0 {
		cfg.Embedder.CooldownSecs = 2
	}
	if cfg.Embedder.MaxAttempts == 0 {
		cfg.Embedder.MaxAttempts = 5
	}
	if cfg.Embedder.LocalDimension == 0 {
		cfg.Embedder.LocalDimension = 256
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "dfmea_corpus"
		}
		if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
			cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 120
		}
	}
	if cfg.Completion.BaseURL == "" {
		cfg.Completion.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Completion.APIKeyEnv == "" {
		cfg.Completion.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = "gpt-4o"
	}
	if cfg.Completion.Temperature == 0 {
		cfg.Completion.Temperature = 0.1
	}
	if cfg.Completion.TimeoutSecs == 0 {
		cfg.Completion.TimeoutSecs = 60
	}
	if cfg.Generation.TopK == 0 {
		cfg.Generation.TopK = 12
	}
	if cfg.Generation.ScoreThreshold == 0 {
		cfg.Generation.ScoreThreshold = 0.48
	}
	if cfg.Generation.MinHits == 0 {
		cfg.Generation.MinHits = 2
	}
}
