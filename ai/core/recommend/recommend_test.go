package recommend

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/cinesense/ai/core/embedding"
	"github.com/hrygo/cinesense/ai/core/indexing"
	"github.com/hrygo/cinesense/ai/core/retrieval"
	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/store"
	"github.com/hrygo/cinesense/store/catalog"
	"github.com/hrygo/cinesense/store/db/memory"
)

type stubRetriever struct {
	candidates []retrieval.Candidate
	err        error
	gotTopK    int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, topK int) ([]retrieval.Candidate, error) {
	s.gotTopK = topK
	if s.err != nil {
		return nil, s.err
	}
	if len(s.candidates) > topK*retrieval.OverFetchFactor {
		return s.candidates[:topK*retrieval.OverFetchFactor], nil
	}
	return s.candidates, nil
}

func candidate(id, title, genres string, rating *float64, score float64) retrieval.Candidate {
	return retrieval.Candidate{ID: store.MovieID(id), Title: title, Genres: genres, Rating: rating, Score: score}
}

func newRecommender(t *testing.T, r Retriever, ratings catalog.RatingLookup) *Recommender {
	t.Helper()
	rec, err := NewRecommender(r, ratings)
	require.NoError(t, err)
	return rec
}

func TestNewRecommender_RequiresRatings(t *testing.T) {
	_, err := NewRecommender(&stubRetriever{}, nil)
	var unavailable *store.DataUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "ratings", unavailable.Source)

	_, err = NewRecommender(nil, catalog.RatingIndex{})
	assert.Error(t, err)
}

func TestRecommend_CriteriaValidation(t *testing.T) {
	rec := newRecommender(t, &stubRetriever{}, catalog.RatingIndex{})

	_, err := rec.Recommend(context.Background(), "q", FilterCriteria{TopN: 0})
	assert.ErrorIs(t, err, ErrInvalidCriteria)

	_, err = rec.Recommend(context.Background(), "q", FilterCriteria{TopN: 3, MinRating: -1})
	assert.ErrorIs(t, err, ErrInvalidCriteria)
}

func TestRecommend_RetrievesTwiceTopN(t *testing.T) {
	stub := &stubRetriever{}
	rec := newRecommender(t, stub, catalog.RatingIndex{})

	got, err := rec.Recommend(context.Background(), "q", FilterCriteria{TopN: 4})
	require.NoError(t, err)
	assert.Equal(t, 8, stub.gotTopK)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRecommend_RetrievalErrorPropagates(t *testing.T) {
	want := &retrieval.RetrievalError{Op: "query", Err: errors.New("index offline")}
	rec := newRecommender(t, &stubRetriever{err: want}, catalog.RatingIndex{})

	_, err := rec.Recommend(context.Background(), "q", FilterCriteria{TopN: 2})
	var retrievalErr *retrieval.RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "query", retrievalErr.Op)
}

func TestRecommend_FilterAndRank(t *testing.T) {
	stub := &stubRetriever{candidates: []retrieval.Candidate{
		candidate("1", "Alien (1979)", "Horror|Sci-Fi", store.Rating(4.1), 80),
		candidate("2", "Solaris (1972)", "Drama|Sci-Fi", nil, 90),
		candidate("3", "Heat (1995)", "Action|Crime", store.Rating(4.8), 95),
		candidate("4", "Moon (2009)", "sci-fi", store.Rating(4.9), 40),
		candidate("5", "Sunshine (2007)", "Sci-Fi|Thriller", nil, 70),
		candidate("6", "Gattaca (1997)", "Drama|Sci-Fi", store.Rating(4.1), 85),
	}}
	// Solaris falls back to the lookup, Sunshine has no rating at all.
	ratings := catalog.RatingIndex{"2": 4.95}
	rec := newRecommender(t, stub, ratings)

	got, err := rec.Recommend(context.Background(), "space", FilterCriteria{GenreFilter: "SCI-FI", MinRating: 4.7, TopN: 3})
	require.NoError(t, err)

	// trunc(4.7) == 4, so every rating in [4, 5) qualifies.
	require.Len(t, got, 3)
	assert.Equal(t, "Solaris (1972)", got[0].Title)
	assert.Equal(t, 4.95, got[0].Rating)
	assert.Equal(t, "Moon (2009)", got[1].Title)
	assert.Equal(t, "Gattaca (1997)", got[2].Title, "equal rating is broken by score")

	got, err = rec.Recommend(context.Background(), "space", FilterCriteria{GenreFilter: "thriller", TopN: 3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Sunshine (2007)", got[0].Title)
	assert.Zero(t, got[0].Rating, "unknown rating is kept and ranked as 0")
}

func TestRecommend_DedupByTitle(t *testing.T) {
	stub := &stubRetriever{candidates: []retrieval.Candidate{
		candidate("10", "Clone (2010)", "Drama|Sci-Fi", store.Rating(3.0), 99),
		candidate("11", "Clone (2010)", "Drama|Sci-Fi", store.Rating(4.0), 50),
		candidate("12", "Other (2001)", "Drama", store.Rating(2.0), 60),
	}}
	rec := newRecommender(t, stub, catalog.RatingIndex{})

	got, err := rec.Recommend(context.Background(), "clone", FilterCriteria{TopN: 5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Clone (2010)", got[0].Title)
	assert.Equal(t, 4.0, got[0].Rating)

	titles := map[string]bool{}
	for _, r := range got {
		assert.False(t, titles[r.Title], "duplicate title %s", r.Title)
		titles[r.Title] = true
	}
}

func TestRecommend_MinRatingMonotonic(t *testing.T) {
	var candidates []retrieval.Candidate
	for i, r := range []float64{0.5, 1.2, 2.7, 3.3, 3.9, 4.4, 4.6, 5.0} {
		candidates = append(candidates, candidate(string(rune('a'+i)), string(rune('A'+i)), "Drama", store.Rating(r), float64(100-i)))
	}
	rec := newRecommender(t, &stubRetriever{candidates: candidates}, catalog.RatingIndex{})

	prev := -1
	for _, minRating := range []float64{5, 4.5, 4, 3, 2, 1, 0} {
		got, err := rec.Recommend(context.Background(), "drama", FilterCriteria{MinRating: minRating, TopN: 10})
		require.NoError(t, err)
		if prev >= 0 {
			assert.GreaterOrEqual(t, len(got), prev, "lowering min rating to %v lost results", minRating)
		}
		prev = len(got)
	}
}

func TestRecommend_NonFiniteRatingIsUnknown(t *testing.T) {
	ctx := context.Background()

	t.Run("candidate and lookup values", func(t *testing.T) {
		stub := &stubRetriever{candidates: []retrieval.Candidate{
			candidate("1", "Bad (2000)", "Drama", store.Rating(math.NaN()), 90),
			candidate("2", "Good (2001)", "Drama", store.Rating(4.5), 80),
			candidate("3", "Huge (2002)", "Drama", store.Rating(math.Inf(1)), 70),
			candidate("4", "Lookup (2003)", "Drama", nil, 60),
		}}
		rec := newRecommender(t, stub, catalog.RatingIndex{"4": math.NaN()})

		got, err := rec.Recommend(ctx, "drama", FilterCriteria{MinRating: 4, TopN: 5})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Good (2001)", got[0].Title)

		got, err = rec.Recommend(ctx, "drama", FilterCriteria{TopN: 5})
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, "Good (2001)", got[0].Title)
		for _, r := range got[1:] {
			assert.Zero(t, r.Rating, "%s ranks as unrated", r.Title)
		}
	})

	t.Run("csv rating lookup", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "movie_dataset.csv")
		require.NoError(t, os.WriteFile(path, []byte("movieId,title,genres,rating\n1,Bad (2000),Drama,NaN\n2,Good (2001),Drama,4.5\n"), 0o600))
		ratings, err := catalog.LoadRatings(ctx, path)
		require.NoError(t, err)

		stub := &stubRetriever{candidates: []retrieval.Candidate{
			candidate("1", "Bad (2000)", "Drama", nil, 90),
			candidate("2", "Good (2001)", "Drama", nil, 80),
		}}
		rec := newRecommender(t, stub, ratings)

		got, err := rec.Recommend(ctx, "drama", FilterCriteria{MinRating: 4, TopN: 5})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Good (2001)", got[0].Title)
		assert.Equal(t, 4.5, got[0].Rating)
	})
}

func TestRecommend_Scenarios(t *testing.T) {
	ctx := context.Background()
	const dim = 256

	vs := store.New(memory.NewDB(), &profile.Profile{IndexName: "movies", IndexDimension: dim, IndexMetric: "cosine"})
	require.NoError(t, vs.Init(ctx))
	embedder, err := embedding.NewHashProvider(dim)
	require.NoError(t, err)

	items := []store.CatalogItem{
		{ID: "1", Title: "Interstellar (2014)", Genres: []string{"Sci-Fi", "Drama"}, Rating: store.Rating(4.5)},
		{ID: "2", Title: "Toy Story (1995)", Genres: []string{"Animation", "Children's", "Comedy"}, Rating: store.Rating(4.2)},
		{ID: "3", Title: "Heat (1995)", Genres: []string{"Action", "Crime", "Thriller"}, Rating: store.Rating(4.1)},
		{ID: "4", Title: "Sense and Sensibility (1995)", Genres: []string{"Drama", "Romance"}, Rating: store.Rating(3.9)},
		{ID: "5", Title: "Casino (1995)", Genres: []string{"Drama", "Thriller"}, Rating: store.Rating(4.0)},
		{ID: "6", Title: "Jumanji (1995)", Genres: []string{"Adventure", "Children's", "Fantasy"}, Rating: store.Rating(3.2)},
		{ID: "7", Title: "Grumpier Old Men (1995)", Genres: []string{"Comedy", "Romance"}, Rating: store.Rating(3.0)},
		{ID: "8", Title: "Waiting to Exhale (1995)", Genres: []string{"Comedy", "Drama"}, Rating: store.Rating(2.7)},
		{ID: "9", Title: "Sabrina (1995)", Genres: []string{"Comedy", "Romance"}, Rating: store.Rating(3.4)},
		{ID: "10", Title: "GoldenEye (1995)", Genres: []string{"Action", "Adventure", "Thriller"}, Rating: store.Rating(3.5)},
	}
	_, err = indexing.NewIndexer(vs, embedder, indexing.Config{}).IndexCatalog(ctx, items)
	require.NoError(t, err)

	retriever := retrieval.NewRetriever(embedder, vs, retrieval.WithQueryCache(16, 0))
	rec := newRecommender(t, retriever, catalog.NewRatingIndex(items))

	t.Run("interstellar ranks first", func(t *testing.T) {
		got, err := rec.Recommend(ctx, "mind-bending sci-fi like Interstellar", FilterCriteria{GenreFilter: "Sci-Fi", MinRating: 4.0, TopN: 5})
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, "Interstellar (2014)", got[0].Title)
		assert.Equal(t, 4.5, got[0].Rating)
	})

	t.Run("no item rated five", func(t *testing.T) {
		got, err := rec.Recommend(ctx, "mind-bending sci-fi like Interstellar", FilterCriteria{MinRating: 5.0, TopN: 5})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("empty query", func(t *testing.T) {
		got, err := rec.Recommend(ctx, "   ", FilterCriteria{TopN: 5})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("query cache stats", func(t *testing.T) {
		stats, ok := rec.QueryCacheStats()
		require.True(t, ok)
		assert.Equal(t, 1, stats.Size)
		assert.Equal(t, uint64(1), stats.Hits)
		assert.Equal(t, uint64(1), stats.Misses)

		_, ok = newRecommender(t, &stubRetriever{}, catalog.RatingIndex{}).QueryCacheStats()
		assert.False(t, ok)
	})
}
