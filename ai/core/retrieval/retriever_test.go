package retrieval

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/cinesense/ai/metrics"
	"github.com/hrygo/cinesense/store"
)

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.([]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) QueryVectors(ctx context.Context, query *store.VectorQuery) ([]*store.VectorMatch, error) {
	args := m.Called(ctx, query)
	if v := args.Get(0); v != nil {
		return v.([]*store.VectorMatch), args.Error(1)
	}
	return nil, args.Error(1)
}

func match(id, title string, score float64) *store.VectorMatch {
	return &store.VectorMatch{
		ID:       store.MovieID(id),
		Score:    score,
		Metadata: store.VectorMetadata{Title: title, Genres: "Drama"},
	}
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	embedder := new(MockEmbedder)
	searcher := new(MockSearcher)
	r := NewRetriever(embedder, searcher)

	for _, q := range []string{"", "   ", "\t\n"} {
		for _, k := range []int{1, 5, 100} {
			got, err := r.Retrieve(context.Background(), q, k)
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		}
	}
	embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	searcher.AssertNotCalled(t, "QueryVectors", mock.Anything, mock.Anything)
}

func TestRetrieve_InvalidTopK(t *testing.T) {
	r := NewRetriever(new(MockEmbedder), new(MockSearcher))

	_, err := r.Retrieve(context.Background(), "space", 0)
	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestRetrieve_OverFetchAndScores(t *testing.T) {
	vec := []float32{1, 0}
	embedder := new(MockEmbedder)
	embedder.On("Embed", mock.Anything, "mind-bending sci-fi").Return(vec, nil)

	searcher := new(MockSearcher)
	searcher.On("QueryVectors", mock.Anything, mock.MatchedBy(func(q *store.VectorQuery) bool {
		return q.TopK == 6 && q.IncludeMetadata
	})).Return([]*store.VectorMatch{
		match("1", "Interstellar (2014)", 0.87654),
		match("2", "", 0.8),
		match("", "Ghost", 0.7),
		match("3", "Inception (2010)", 1.2),
		match("4", "Toy Story (1995)", -0.3),
	}, nil)

	r := NewRetriever(embedder, searcher)
	got, err := r.Retrieve(context.Background(), "mind-bending sci-fi", 2)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, store.MovieID("1"), got[0].ID)
	assert.Equal(t, 87.65, got[0].Score)
	assert.Equal(t, "Inception (2010)", got[1].Title)
	assert.Equal(t, 100.0, got[1].Score)
	assert.Equal(t, 0.0, got[2].Score)
	for _, c := range got {
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 100.0)
	}
	searcher.AssertExpectations(t)
}

func TestRetrieve_Errors(t *testing.T) {
	t.Run("embed", func(t *testing.T) {
		embedder := new(MockEmbedder)
		embedder.On("Embed", mock.Anything, "q").Return(nil, errors.New("provider down"))
		r := NewRetriever(embedder, new(MockSearcher))

		_, err := r.Retrieve(context.Background(), "q", 3)
		var retrievalErr *RetrievalError
		require.ErrorAs(t, err, &retrievalErr)
		assert.Equal(t, "embed", retrievalErr.Op)
	})

	t.Run("query", func(t *testing.T) {
		embedder := new(MockEmbedder)
		embedder.On("Embed", mock.Anything, "q").Return([]float32{1}, nil)
		searcher := new(MockSearcher)
		searcher.On("QueryVectors", mock.Anything, mock.Anything).Return(nil, errors.New("index offline"))
		r := NewRetriever(embedder, searcher)

		_, err := r.Retrieve(context.Background(), "q", 3)
		var retrievalErr *RetrievalError
		require.ErrorAs(t, err, &retrievalErr)
		assert.Equal(t, "query", retrievalErr.Op)
		assert.Contains(t, err.Error(), "index offline")
	})
}

func TestRetrieve_NoMatches(t *testing.T) {
	embedder := new(MockEmbedder)
	embedder.On("Embed", mock.Anything, "q").Return([]float32{1}, nil)
	searcher := new(MockSearcher)
	searcher.On("QueryVectors", mock.Anything, mock.Anything).Return([]*store.VectorMatch{}, nil)

	got, err := NewRetriever(embedder, searcher).Retrieve(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRetrieve_QueryCache(t *testing.T) {
	embedder := new(MockEmbedder)
	embedder.On("Embed", mock.Anything, "space").Return([]float32{1}, nil).Once()
	searcher := new(MockSearcher)
	searcher.On("QueryVectors", mock.Anything, mock.Anything).Return([]*store.VectorMatch{match("1", "Alien (1979)", 0.5)}, nil)
	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

	r := NewRetriever(embedder, searcher, WithQueryCache(8, 0), WithMetrics(exporter))
	for i := 0; i < 3; i++ {
		got, err := r.Retrieve(context.Background(), "space", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
	embedder.AssertNumberOfCalls(t, "Embed", 1)

	stats, ok := r.QueryCacheStats()
	require.True(t, ok)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 8, stats.Capacity)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)

	_, ok = NewRetriever(embedder, searcher).QueryCacheStats()
	assert.False(t, ok)

	text, err := exporter.ExportText()
	require.NoError(t, err)
	assert.Contains(t, text, `cinesense_cache_hits_total{cache_type="query_embedding"} 2`)
	assert.Contains(t, text, `cinesense_retrieval_requests_total{status="success"} 3`)
}

func TestRescaleScore(t *testing.T) {
	tests := []struct {
		raw  float64
		want float64
	}{
		{0.5, 50},
		{0.123456, 12.35},
		{1, 100},
		{1.5, 100},
		{-0.2, 0},
		{0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RescaleScore(tt.raw), "raw %v", tt.raw)
	}
}
