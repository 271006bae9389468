// Package recommend filters and re-ranks retrieved candidates against the
// caller's genre and rating constraints.
package recommend

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/ai/cache"
	"github.com/hrygo/cinesense/ai/core/retrieval"
	"github.com/hrygo/cinesense/ai/metrics"
	"github.com/hrygo/cinesense/internal/validation"
	"github.com/hrygo/cinesense/store"
	"github.com/hrygo/cinesense/store/catalog"
)

// ErrInvalidCriteria is returned for criteria that fail validation.
var ErrInvalidCriteria = errors.New("invalid filter criteria")

// FilterCriteria constrains one recommendation request.
type FilterCriteria struct {
	// GenreFilter is matched case-insensitively as a substring of the
	// pipe-joined genres. Empty disables the filter.
	GenreFilter string
	MinRating   float64 `validate:"gte=0"`
	TopN        int     `validate:"gte=1"`
}

func (c FilterCriteria) Validate() error {
	if err := validation.Struct(c); err != nil {
		return errors.Wrap(ErrInvalidCriteria, err.Error())
	}
	return nil
}

// Recommendation is one ranked result.
type Recommendation struct {
	Title  string  `json:"title"`
	Genres string  `json:"genres"`
	Rating float64 `json:"rating"`
	Score  float64 `json:"score"`
}

// Retriever yields similarity-ordered candidates for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.Candidate, error)
}

type Recommender struct {
	retriever Retriever
	ratings   catalog.RatingLookup
	logger    *slog.Logger
	metrics   *metrics.PrometheusExporter
}

// Option configures a Recommender.
type Option func(*Recommender)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recommender) { r.logger = logger }
}

func WithMetrics(m *metrics.PrometheusExporter) Option {
	return func(r *Recommender) { r.metrics = m }
}

// NewRecommender fails with a *store.DataUnavailableError when no rating
// lookup is available.
func NewRecommender(retriever Retriever, ratings catalog.RatingLookup, opts ...Option) (*Recommender, error) {
	if retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if ratings == nil {
		return nil, &store.DataUnavailableError{Source: "ratings", Err: errors.New("no rating lookup configured")}
	}
	r := &Recommender{
		retriever: retriever,
		ratings:   ratings,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type ranked struct {
	candidate retrieval.Candidate
	rating    float64
}

// Recommend retrieves 2*TopN candidates and keeps those that pass the genre
// and rating filters, best rated first, one entry per title.
func (r *Recommender) Recommend(ctx context.Context, query string, criteria FilterCriteria) ([]Recommendation, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	candidates, err := r.retriever.Retrieve(ctx, query, criteria.TopN*2)
	if err != nil {
		r.metrics.RecordRecommendation("error")
		return nil, err
	}
	if len(candidates) == 0 {
		r.metrics.RecordRecommendation("empty")
		return []Recommendation{}, nil
	}

	genre := strings.ToLower(criteria.GenreFilter)
	minRating := math.Trunc(criteria.MinRating)

	kept := make([]ranked, 0, len(candidates))
	for _, c := range candidates {
		rating := r.rating(c)
		if genre != "" && !strings.Contains(strings.ToLower(c.Genres), genre) {
			continue
		}
		if math.Trunc(rating) < minRating {
			continue
		}
		kept = append(kept, ranked{candidate: c, rating: rating})
	}

	slices.SortStableFunc(kept, func(a, b ranked) int {
		if a.rating != b.rating {
			if a.rating > b.rating {
				return -1
			}
			return 1
		}
		switch {
		case a.candidate.Score > b.candidate.Score:
			return -1
		case a.candidate.Score < b.candidate.Score:
			return 1
		}
		return 0
	})

	seen := make(map[string]struct{}, len(kept))
	results := make([]Recommendation, 0, criteria.TopN)
	for _, k := range kept {
		if _, dup := seen[k.candidate.Title]; dup {
			continue
		}
		seen[k.candidate.Title] = struct{}{}
		results = append(results, Recommendation{
			Title:  k.candidate.Title,
			Genres: k.candidate.Genres,
			Rating: k.rating,
			Score:  k.candidate.Score,
		})
		if len(results) == criteria.TopN {
			break
		}
	}

	r.logger.DebugContext(ctx, "recommendations ranked",
		slog.Int("candidates", len(candidates)),
		slog.Int("filtered", len(kept)),
		slog.Int("results", len(results)),
	)
	if len(results) == 0 {
		r.metrics.RecordRecommendation("empty")
	} else {
		r.metrics.RecordRecommendation("success")
	}
	return results, nil
}

// QueryCacheStats forwards the retriever's query-embedding cache counters
// when it keeps any.
func (r *Recommender) QueryCacheStats() (cache.Stats, bool) {
	reporter, ok := r.retriever.(interface {
		QueryCacheStats() (cache.Stats, bool)
	})
	if !ok {
		return cache.Stats{}, false
	}
	return reporter.QueryCacheStats()
}

// rating is the candidate's own rating, else the lookup's, else 0.
// Non-finite values count as unknown.
func (r *Recommender) rating(c retrieval.Candidate) float64 {
	if c.Rating != nil && finite(*c.Rating) {
		return *c.Rating
	}
	if v, ok := r.ratings.Rating(c.ID); ok && finite(v) {
		return v
	}
	return 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
