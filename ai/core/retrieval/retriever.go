// Package retrieval turns a free-text query into scored movie candidates
// by nearest-neighbour search over the movie vector index.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/ai/cache"
	"github.com/hrygo/cinesense/ai/metrics"
	"github.com/hrygo/cinesense/store"
)

// OverFetchFactor is how many more neighbours than requested are fetched,
// leaving room for the filter stage to drop candidates.
const OverFetchFactor = 3

// ErrInvalidTopK is returned for a topK below 1.
var ErrInvalidTopK = errors.New("topK must be at least 1")

// RetrievalError reports an embedding or vector store failure during
// retrieval. Retrying the call may succeed.
type RetrievalError struct {
	Op  string // "validate", "embed" or "query"
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s failed: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// Candidate is one retrieved movie. Score is in [0, 100].
type Candidate struct {
	ID     store.MovieID `json:"id"`
	Title  string        `json:"title"`
	Genres string        `json:"genres"`
	Rating *float64      `json:"rating,omitempty"`
	Score  float64       `json:"score"`
}

// Embedder embeds query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs nearest-neighbour queries against the movie index.
type Searcher interface {
	QueryVectors(ctx context.Context, query *store.VectorQuery) ([]*store.VectorMatch, error)
}

// Retriever is safe for concurrent use.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	cache    *cache.LRUCache[string, []float32]
	logger   *slog.Logger
	metrics  *metrics.PrometheusExporter
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithQueryCache memoizes query embeddings. size <= 0 disables the cache.
func WithQueryCache(size int, ttl time.Duration) Option {
	return func(r *Retriever) {
		if size > 0 {
			r.cache = cache.NewLRUCache[string, []float32](size, ttl)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) { r.logger = logger }
}

func WithMetrics(m *metrics.PrometheusExporter) Option {
	return func(r *Retriever) { r.metrics = m }
}

func NewRetriever(embedder Embedder, searcher Searcher, opts ...Option) *Retriever {
	r := &Retriever{
		embedder: embedder,
		searcher: searcher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK*OverFetchFactor candidates in descending
// similarity order. A blank query yields an empty, non-nil slice without
// touching the embedder or the store.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) (candidates []Candidate, err error) {
	if strings.TrimSpace(query) == "" {
		return []Candidate{}, nil
	}
	if topK < 1 {
		return nil, &RetrievalError{Op: "validate", Err: errors.Wrapf(ErrInvalidTopK, "got %d", topK)}
	}

	start := time.Now()
	defer func() {
		r.metrics.RecordRetrieval(time.Since(start), err == nil)
	}()

	vector, err := r.embed(ctx, query)
	if err != nil {
		return nil, &RetrievalError{Op: "embed", Err: err}
	}

	matches, err := r.searcher.QueryVectors(ctx, &store.VectorQuery{
		Vector:          vector,
		TopK:            min(topK*OverFetchFactor, store.MaxQueryTopK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, &RetrievalError{Op: "query", Err: err}
	}

	candidates = make([]Candidate, 0, len(matches))
	for _, m := range matches {
		if m == nil || m.ID == "" || m.Metadata.Title == "" {
			var id store.MovieID
			if m != nil {
				id = m.ID
			}
			r.logger.DebugContext(ctx, "dropping malformed match", slog.String("id", id.String()))
			continue
		}
		candidates = append(candidates, Candidate{
			ID:     m.ID,
			Title:  m.Metadata.Title,
			Genres: m.Metadata.Genres,
			Rating: m.Metadata.Rating,
			Score:  RescaleScore(m.Score),
		})
	}

	if len(candidates) == 0 {
		r.logger.WarnContext(ctx, "no candidates retrieved, low confidence query",
			slog.String("query", query),
			slog.Int("top_k", topK),
		)
	}
	return candidates, nil
}

// QueryCacheStats reports the query-embedding cache counters. ok is false
// when the cache is disabled.
func (r *Retriever) QueryCacheStats() (stats cache.Stats, ok bool) {
	if r.cache == nil {
		return cache.Stats{}, false
	}
	return r.cache.Stats(), true
}

func (r *Retriever) embed(ctx context.Context, query string) ([]float32, error) {
	if r.cache == nil {
		return r.embedder.Embed(ctx, query)
	}
	if v, ok := r.cache.Get(query); ok {
		r.metrics.RecordCacheHit("query_embedding")
		return v, nil
	}
	r.metrics.RecordCacheMiss("query_embedding")

	v, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	r.cache.Set(query, v)
	return v, nil
}

// RescaleScore maps a raw similarity to [0, 100] with two decimals.
func RescaleScore(raw float64) float64 {
	if math.IsNaN(raw) {
		return 0
	}
	clamped := math.Max(0, math.Min(1, raw))
	return math.Round(clamped*100*100) / 100
}
