package store

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Metric is the similarity function an index is created with.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricDotProduct Metric = "dotproduct"
	MetricEuclidean  Metric = "euclidean"
)

// MaxQueryTopK bounds a single nearest-neighbour query.
const MaxQueryTopK = 10000

// ParseMetric maps a configuration string to a Metric; empty means cosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricDotProduct:
		return MetricDotProduct, nil
	case MetricEuclidean:
		return MetricEuclidean, nil
	}
	return "", errors.Wrapf(ErrInvalidArgument, "unknown metric %q", s)
}

// indexNamePattern keeps index names usable as SQL identifiers and key prefixes.
var indexNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// IndexSpec describes a vector index.
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    Metric
}

func (s *IndexSpec) Validate() error {
	if !indexNamePattern.MatchString(s.Name) {
		return errors.Wrapf(ErrInvalidArgument, "invalid index name %q", s.Name)
	}
	if s.Dimension < 1 {
		return errors.Wrapf(ErrInvalidArgument, "invalid dimension %d", s.Dimension)
	}
	if _, err := ParseMetric(string(s.Metric)); err != nil {
		return err
	}
	return nil
}

// VectorMetadata is the fixed-shape payload stored next to each vector.
type VectorMetadata struct {
	Title  string   `json:"title"`
	Genres string   `json:"genres"`
	Rating *float64 `json:"rating,omitempty"`
	Year   int      `json:"year"`
}

// IndexedVector is one entry of the vector index. The id is the dedup key:
// one vector per id, last write wins.
type IndexedVector struct {
	ID        MovieID
	Embedding []float32
	Metadata  VectorMetadata
}

// VectorMatch is a query result.
type VectorMatch struct {
	ID       MovieID
	Score    float64
	Metadata VectorMetadata
}

// VectorQuery is a nearest-neighbour request.
type VectorQuery struct {
	Vector          []float32
	TopK            int
	IncludeMetadata bool
}

func (q *VectorQuery) Validate() error {
	if len(q.Vector) == 0 {
		return errors.Wrap(ErrInvalidArgument, "empty query vector")
	}
	if q.TopK < 1 || q.TopK > MaxQueryTopK {
		return errors.Wrapf(ErrInvalidArgument, "top_k must be between 1 and %d, got %d", MaxQueryTopK, q.TopK)
	}
	return nil
}

// IndexStats describes an index and its size.
type IndexStats struct {
	Name             string `json:"name"`
	Dimension        int    `json:"dimension"`
	Metric           Metric `json:"metric"`
	TotalVectorCount int64  `json:"totalVectorCount"`
}
