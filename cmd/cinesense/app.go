package main

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/ai"
	"github.com/hrygo/cinesense/ai/core/indexing"
	"github.com/hrygo/cinesense/ai/core/recommend"
	"github.com/hrygo/cinesense/ai/core/retrieval"
	"github.com/hrygo/cinesense/ai/metrics"
	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/store"
	"github.com/hrygo/cinesense/store/catalog"
	"github.com/hrygo/cinesense/store/db"
)

// app holds the components shared by the commands.
type app struct {
	profile  *profile.Profile
	config   *ai.Config
	store    *store.Store
	embedder ai.EmbeddingService
	metrics  *metrics.PrometheusExporter
}

func newApp(ctx context.Context, instanceProfile *profile.Profile) (*app, error) {
	cfg := ai.NewConfigFromProfile(instanceProfile)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid embedding configuration")
	}

	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

	embedder, err := ai.NewEmbeddingService(&cfg.Embedding, cfg.Retry, ai.WithEmbeddingMetrics(exporter))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding service")
	}

	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create vector store driver")
	}

	storeInstance := store.New(dbDriver, instanceProfile,
		store.WithRetryPolicy(cfg.Retry),
		store.WithBreakerObserver(exporter.SetBreakerState),
	)
	if err := storeInstance.Init(ctx); err != nil {
		_ = storeInstance.Close()
		return nil, errors.Wrap(err, "failed to initialize vector index")
	}

	slog.Debug("components ready",
		slog.String("driver", instanceProfile.Driver),
		slog.String("index", instanceProfile.IndexName),
		slog.String("embedding_model", embedder.Model()),
	)

	return &app{
		profile:  instanceProfile,
		config:   cfg,
		store:    storeInstance,
		embedder: embedder,
		metrics:  exporter,
	}, nil
}

func (a *app) indexer() *indexing.Indexer {
	return indexing.NewIndexer(a.store, a.embedder, indexing.Config{
		UpsertBatchSize:  a.config.Indexer.UpsertBatchSize,
		EmbedConcurrency: a.config.Indexer.EmbedConcurrency,
		EmbedChunkSize:   a.config.Indexer.EmbedChunkSize,
	}, indexing.WithMetrics(a.metrics))
}

func (a *app) retriever() *retrieval.Retriever {
	return retrieval.NewRetriever(a.embedder, a.store,
		retrieval.WithQueryCache(a.config.Retrieval.QueryCacheSize, a.config.Retrieval.QueryCacheTTL),
		retrieval.WithMetrics(a.metrics),
	)
}

// recommender loads the rating lookup; it fails with a
// *store.DataUnavailableError when the rating source is absent.
func (a *app) recommender(ctx context.Context) (*recommend.Recommender, error) {
	ratings, err := catalog.LoadRatings(ctx, a.profile.RatingsPath)
	if err != nil {
		return nil, err
	}
	return recommend.NewRecommender(a.retriever(), ratings, recommend.WithMetrics(a.metrics))
}

func (a *app) close() error {
	return a.store.Close()
}
