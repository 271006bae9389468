package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	c := []float32{2, 0}

	assert.InDelta(t, 1.0, Similarity(MetricCosine, a, c), 1e-9)
	assert.InDelta(t, 0.0, Similarity(MetricCosine, a, b), 1e-9)
	assert.InDelta(t, 2.0, Similarity(MetricDotProduct, a, c), 1e-9)
	assert.InDelta(t, 1/(1+math.Sqrt2), Similarity(MetricEuclidean, a, b), 1e-9)
	assert.InDelta(t, 1.0, Similarity(MetricEuclidean, a, a), 1e-9)

	assert.Zero(t, Similarity(MetricCosine, a, []float32{0, 0}))
	assert.Zero(t, Similarity(MetricCosine, a, []float32{1}))
}

func TestRankMatches(t *testing.T) {
	matches := []*VectorMatch{
		{ID: "b", Score: 0.5},
		{ID: "a", Score: 0.9},
		{ID: "c", Score: 0.5},
		{ID: "d", Score: 0.1},
	}
	ranked := RankMatches(matches, 3)
	ids := make([]MovieID, 0, len(ranked))
	for _, m := range ranked {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []MovieID{"a", "b", "c"}, ids)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	assert.NoError(t, err)
	assert.Equal(t, MetricCosine, m)

	m, err = ParseMetric("DotProduct")
	assert.NoError(t, err)
	assert.Equal(t, MetricDotProduct, m)

	_, err = ParseMetric("manhattan")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestIndexSpecValidate(t *testing.T) {
	assert.NoError(t, (&IndexSpec{Name: "movies", Dimension: 384, Metric: MetricCosine}).Validate())
	assert.Error(t, (&IndexSpec{Name: "Movies-1", Dimension: 384}).Validate())
	assert.Error(t, (&IndexSpec{Name: "movies", Dimension: 0}).Validate())
	assert.Error(t, (&IndexSpec{Name: "movies; drop", Dimension: 3}).Validate())
}
