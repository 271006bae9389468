// Package dbtest holds the behaviour every store.Driver must share.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/cinesense/store"
)

// RunDriverSuite exercises a fresh driver returned by newDriver in each subtest.
func RunDriverSuite(t *testing.T, newDriver func(t *testing.T) store.Driver) {
	t.Helper()

	spec := &store.IndexSpec{Name: "movies", Dimension: 3, Metric: store.MetricCosine}

	setup := func(t *testing.T) (store.Driver, context.Context) {
		d := newDriver(t)
		t.Cleanup(func() { _ = d.Close() })
		ctx := context.Background()
		require.NoError(t, d.EnsureIndex(ctx, spec))
		return d, ctx
	}

	t.Run("EnsureIndex is idempotent", func(t *testing.T) {
		d, ctx := setup(t)
		require.NoError(t, d.EnsureIndex(ctx, spec))

		err := d.EnsureIndex(ctx, &store.IndexSpec{Name: "movies", Dimension: 4, Metric: store.MetricCosine})
		assert.ErrorIs(t, err, store.ErrIndexConflict)
	})

	t.Run("unknown index", func(t *testing.T) {
		d, ctx := setup(t)
		_, err := d.DescribeIndex(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrIndexNotFound)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		d, ctx := setup(t)
		require.NoError(t, d.UpsertVectors(ctx, "movies", []*store.IndexedVector{
			vector("1", "Old Title (1990)", 1, 0, 0),
			vector("2", "Other (2001)", 0, 1, 0),
		}))
		require.NoError(t, d.UpsertVectors(ctx, "movies", []*store.IndexedVector{
			vector("1", "New Title (1991)", 1, 0, 0),
		}))

		stats, err := d.DescribeIndex(ctx, "movies")
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.TotalVectorCount)
		assert.Equal(t, 3, stats.Dimension)
		assert.Equal(t, store.MetricCosine, stats.Metric)

		matches, err := d.QueryVectors(ctx, "movies", &store.VectorQuery{Vector: []float32{1, 0, 0}, TopK: 1, IncludeMetadata: true})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "New Title (1991)", matches[0].Metadata.Title)
	})

	t.Run("fetch existing ids", func(t *testing.T) {
		d, ctx := setup(t)
		require.NoError(t, d.UpsertVectors(ctx, "movies", []*store.IndexedVector{
			vector("1", "A (2000)", 1, 0, 0),
			vector("3", "C (2000)", 0, 0, 1),
		}))

		existing, err := d.FetchExistingIDs(ctx, "movies", []store.MovieID{"1", "2", "3"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []store.MovieID{"1", "3"}, existing)

		existing, err = d.FetchExistingIDs(ctx, "movies", nil)
		require.NoError(t, err)
		assert.Empty(t, existing)
	})

	t.Run("query orders by similarity", func(t *testing.T) {
		d, ctx := setup(t)
		require.NoError(t, d.UpsertVectors(ctx, "movies", []*store.IndexedVector{
			vector("far", "Far (2000)", 0, 0, 1),
			vector("near", "Near (2000)", 1, 0.1, 0),
			vector("mid", "Mid (2000)", 1, 1, 0),
		}))

		matches, err := d.QueryVectors(ctx, "movies", &store.VectorQuery{Vector: []float32{1, 0, 0}, TopK: 10, IncludeMetadata: true})
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, store.MovieID("near"), matches[0].ID)
		assert.Equal(t, store.MovieID("mid"), matches[1].ID)
		assert.Equal(t, store.MovieID("far"), matches[2].ID)
		for i := 1; i < len(matches); i++ {
			assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
		}
		assert.InDelta(t, 0.0, matches[2].Score, 1e-6)
		assert.Equal(t, "Near (2000)", matches[0].Metadata.Title)
		assert.Equal(t, "Drama", matches[0].Metadata.Genres)
		require.NotNil(t, matches[0].Metadata.Rating)
		assert.InDelta(t, 4.0, *matches[0].Metadata.Rating, 1e-9)
		assert.Equal(t, 2000, matches[0].Metadata.Year)
	})

	t.Run("query without metadata", func(t *testing.T) {
		d, ctx := setup(t)
		require.NoError(t, d.UpsertVectors(ctx, "movies", []*store.IndexedVector{vector("1", "A (2000)", 1, 0, 0)}))

		matches, err := d.QueryVectors(ctx, "movies", &store.VectorQuery{Vector: []float32{1, 0, 0}, TopK: 1})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Empty(t, matches[0].Metadata.Title)
	})

	t.Run("unknown rating round trips as nil", func(t *testing.T) {
		d, ctx := setup(t)
		v := vector("1", "A (2000)", 1, 0, 0)
		v.Metadata.Rating = nil
		require.NoError(t, d.UpsertVectors(ctx, "movies", []*store.IndexedVector{v}))

		matches, err := d.QueryVectors(ctx, "movies", &store.VectorQuery{Vector: []float32{1, 0, 0}, TopK: 1, IncludeMetadata: true})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Nil(t, matches[0].Metadata.Rating)
	})

	t.Run("top k larger batch", func(t *testing.T) {
		d, ctx := setup(t)
		vectors := make([]*store.IndexedVector, 0, 50)
		for i := range 50 {
			vectors = append(vectors, vector(fmt.Sprintf("m%02d", i), fmt.Sprintf("Movie %d (2000)", i), 1, float32(i)/10, 0))
		}
		require.NoError(t, d.UpsertVectors(ctx, "movies", vectors))

		matches, err := d.QueryVectors(ctx, "movies", &store.VectorQuery{Vector: []float32{1, 0, 0}, TopK: 5})
		require.NoError(t, err)
		assert.Len(t, matches, 5)
		assert.Equal(t, store.MovieID("m00"), matches[0].ID)
	})
}

func vector(id, title string, x, y, z float32) *store.IndexedVector {
	return &store.IndexedVector{
		ID:        store.MovieID(id),
		Embedding: []float32{x, y, z},
		Metadata: store.VectorMetadata{
			Title:  title,
			Genres: "Drama",
			Rating: store.Rating(4.0),
			Year:   store.ExtractYear(title),
		},
	}
}
