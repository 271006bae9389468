// Package embedding provides the concrete text embedding providers.
package embedding

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// Config configures an OpenAI-compatible embedding provider.
type Config struct {
	BaseURL        string
	APIKey         string
	EmbeddingModel string
	// Dimensions is sent with each request when > 0. Only models that
	// support shortened embeddings honour it.
	Dimensions int
	Timeout    time.Duration
}

// DefaultConfig returns the OpenAI defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "https://api.openai.com/v1",
		EmbeddingModel: "text-embedding-3-small",
		Timeout:        30 * time.Second,
	}
}

// Provider calls the /embeddings endpoint of an OpenAI-compatible API
// (OpenAI, SiliconFlow, Ollama).
type Provider struct {
	config *Config
	client *openai.Client
}

// NewProvider creates a provider; nil or zero fields fall back to DefaultConfig.
func NewProvider(cfg *Config) (*Provider, error) {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	c := *cfg
	if c.BaseURL == "" {
		c.BaseURL = defaults.BaseURL
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = defaults.EmbeddingModel
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.Dimensions < 0 {
		return nil, errors.Errorf("invalid dimensions %d", c.Dimensions)
	}

	clientConfig := openai.DefaultConfig(c.APIKey)
	clientConfig.BaseURL = c.BaseURL
	clientConfig.HTTPClient = &http.Client{Timeout: c.Timeout}

	return &Provider{
		config: &c,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// NewProviderFromEnv creates a provider from CINESENSE_EMBEDDING_* variables.
func NewProviderFromEnv() (*Provider, error) {
	defaults := DefaultConfig()
	timeout := defaults.Timeout
	if secs, err := strconv.Atoi(getEnv("CINESENSE_EMBEDDING_TIMEOUT_SECONDS", "")); err == nil && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	return NewProvider(&Config{
		BaseURL:        getEnv("CINESENSE_EMBEDDING_BASE_URL", defaults.BaseURL),
		APIKey:         getEnv("CINESENSE_EMBEDDING_API_KEY", ""),
		EmbeddingModel: getEnv("CINESENSE_EMBEDDING_MODEL", defaults.EmbeddingModel),
		Timeout:        timeout,
	})
}

// Validate checks that the provider can authenticate. Local endpoints
// (Ollama) do not need a key.
func (p *Provider) Validate(_ context.Context) error {
	if p.config.APIKey == "" && !isLocalURL(p.config.BaseURL) {
		return errors.New("embedding API key is required")
	}
	return nil
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(p.config.EmbeddingModel),
		Dimensions: p.config.Dimensions,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create embeddings failed")
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// The API may return items out of order; Index refers to the input position.
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) == 0 {
			return nil, errors.Errorf("empty embedding for input %d", d.Index)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// Dimensions returns the configured dimension, 0 when the model decides.
func (p *Provider) Dimensions() int {
	return p.config.Dimensions
}

func (p *Provider) Model() string {
	return p.config.EmbeddingModel
}

func isLocalURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
