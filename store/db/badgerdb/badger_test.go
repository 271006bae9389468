package badgerdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/store"
	"github.com/hrygo/cinesense/store/db/dbtest"
)

func TestDriver(t *testing.T) {
	dbtest.RunDriverSuite(t, func(t *testing.T) store.Driver {
		driver, err := NewDB(&profile.Profile{DSN: InMemoryDSN})
		require.NoError(t, err)
		return driver
	})
}

func TestPersistsAcrossReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "vectors.badger")
	ctx := context.Background()
	spec := &store.IndexSpec{Name: "movies", Dimension: 2, Metric: store.MetricEuclidean}

	driver, err := NewDB(&profile.Profile{DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, driver.EnsureIndex(ctx, spec))
	require.NoError(t, driver.UpsertVectors(ctx, "movies", []*store.IndexedVector{
		{ID: "1", Embedding: []float32{1, 1}, Metadata: store.VectorMetadata{Title: "Heat (1995)", Genres: "Action|Crime|Thriller", Year: 1995}},
	}))
	require.NoError(t, driver.Close())

	driver, err = NewDB(&profile.Profile{DSN: dsn})
	require.NoError(t, err)
	defer driver.Close()

	stats, err := driver.DescribeIndex(ctx, "movies")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalVectorCount)
	assert.Equal(t, store.MetricEuclidean, stats.Metric)

	matches, err := driver.QueryVectors(ctx, "movies", &store.VectorQuery{Vector: []float32{1, 1}, TopK: 1, IncludeMetadata: true})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "Heat (1995)", matches[0].Metadata.Title)
}
