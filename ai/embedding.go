package ai

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/hrygo/cinesense/ai/core/embedding"
	"github.com/hrygo/cinesense/ai/metrics"
	"github.com/hrygo/cinesense/internal/retry"
	"github.com/hrygo/cinesense/store"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int

	// Model returns the embedding model name.
	Model() string
}

// embedder is the surface shared by the concrete providers.
type embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type embeddingService struct {
	provider   embedder
	dimensions int
	limiter    *rate.Limiter
	retry      retry.Policy
	metrics    *metrics.PrometheusExporter
	logger     *slog.Logger
}

// EmbeddingOption configures the embedding service.
type EmbeddingOption func(*embeddingService)

// WithEmbeddingMetrics records every provider call.
func WithEmbeddingMetrics(m *metrics.PrometheusExporter) EmbeddingOption {
	return func(s *embeddingService) { s.metrics = m }
}

// WithEmbeddingLogger sets the logger used for failed attempts.
func WithEmbeddingLogger(logger *slog.Logger) EmbeddingOption {
	return func(s *embeddingService) { s.logger = logger }
}

// NewEmbeddingService creates the embedding service for cfg.Provider.
// Remote providers speak the OpenAI-compatible protocol. Every call is rate
// limited, retried on transient failures and checked against cfg.Dimensions.
func NewEmbeddingService(cfg *EmbeddingConfig, policy retry.Policy, opts ...EmbeddingOption) (EmbeddingService, error) {
	if cfg.Dimensions < 1 {
		return nil, errors.Errorf("invalid embedding dimensions %d", cfg.Dimensions)
	}

	var provider embedder
	switch cfg.Provider {
	case "hash":
		p, err := embedding.NewHashProvider(cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		provider = p
	case "openai", "siliconflow", "ollama":
		pc := &embedding.Config{
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
			EmbeddingModel: cfg.Model,
			Timeout:        cfg.Timeout,
		}
		// Only OpenAI's text-embedding-3 family accepts shortened output.
		if cfg.Provider == "openai" {
			pc.Dimensions = cfg.Dimensions
		}
		p, err := embedding.NewProvider(pc)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return nil, errors.Errorf("unsupported embedding provider %q", cfg.Provider)
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}

	s := &embeddingService{
		provider:   provider,
		dimensions: cfg.Dimensions,
		limiter:    rate.NewLimiter(limit, burst),
		retry:      policy,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	var vectors [][]float32
	attempt := 0
	err := retry.Do(ctx, s.retry, func() error {
		attempt++
		if err := s.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		start := time.Now()
		out, err := s.provider.EmbedBatch(ctx, texts)
		s.metrics.RecordEmbedding(s.provider.Model(), len(texts), time.Since(start), err == nil)
		if err != nil {
			s.logger.Warn("embedding attempt failed",
				slog.String("model", s.provider.Model()),
				slog.Int("attempt", attempt),
				slog.Int("texts", len(texts)),
				slog.String("error", err.Error()),
			)
			if !isTransient(err) || ctx.Err() != nil {
				return retry.Permanent(err)
			}
			return err
		}

		for i, v := range out {
			if len(v) != s.dimensions {
				return retry.Permanent(errors.Wrapf(store.ErrDimensionMismatch,
					"model %s returned %d dimensions for input %d, expected %d",
					s.provider.Model(), len(v), i, s.dimensions))
			}
		}
		vectors = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}

func (s *embeddingService) Model() string {
	return s.provider.Model()
}

// isTransient reports whether a provider error is worth retrying: network
// failures, rate limiting and server-side errors.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == 0 {
		return true
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
