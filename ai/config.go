package ai

import (
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/internal/retry"
)

// Config represents the embedding, indexing and retrieval configuration.
type Config struct {
	Embedding EmbeddingConfig
	Indexer   IndexerConfig
	Retrieval RetrievalConfig
	Retry     retry.Policy
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // openai, siliconflow, ollama, hash
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
	// RequestsPerSecond caps outbound embedding calls. 0 means unlimited.
	RequestsPerSecond float64
}

// IndexerConfig tunes catalog indexing.
type IndexerConfig struct {
	UpsertBatchSize  int
	EmbedConcurrency int
	EmbedChunkSize   int
}

// RetrievalConfig tunes the query path.
type RetrievalConfig struct {
	QueryCacheSize int
	QueryCacheTTL  time.Duration
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Embedding: EmbeddingConfig{
			Provider:          p.EmbeddingProvider,
			Model:             p.EmbeddingModel,
			APIKey:            p.EmbeddingAPIKey,
			BaseURL:           p.EmbeddingBaseURL,
			Dimensions:        p.IndexDimension,
			Timeout:           time.Duration(p.EmbeddingTimeout) * time.Second,
			RequestsPerSecond: p.EmbeddingRPS,
		},
		Indexer: IndexerConfig{
			UpsertBatchSize:  p.UpsertBatchSize,
			EmbedConcurrency: p.EmbedConcurrency,
			EmbedChunkSize:   p.EmbedChunkSize,
		},
		Retrieval: RetrievalConfig{
			QueryCacheSize: p.QueryCacheSize,
			QueryCacheTTL:  10 * time.Minute,
		},
		Retry: retry.DefaultPolicy(),
	}
	if p.RetryMaxAttempts > 0 {
		cfg.Retry.MaxAttempts = p.RetryMaxAttempts
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Embedding.Provider == "" {
		return errors.New("embedding provider is required")
	}

	// Ollama and the hash embedder run locally.
	if c.Embedding.Provider != "ollama" && c.Embedding.Provider != "hash" && c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}

	if c.Embedding.Dimensions < 1 {
		return errors.Errorf("invalid embedding dimensions %d", c.Embedding.Dimensions)
	}

	if c.Embedding.RequestsPerSecond < 0 {
		return errors.New("embedding requests per second must not be negative")
	}

	return nil
}
