// Package indexing builds and incrementally maintains the movie vector index.
package indexing

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/cinesense/ai/metrics"
	"github.com/hrygo/cinesense/store"
	"github.com/hrygo/cinesense/store/catalog"
)

const (
	DefaultUpsertBatchSize  = 1000
	DefaultEmbedConcurrency = 4
	DefaultEmbedChunkSize   = 64
)

// VectorStore is the part of the vector index the indexer writes to.
type VectorStore interface {
	FetchExistingIDs(ctx context.Context, ids []store.MovieID) ([]store.MovieID, error)
	UpsertVectors(ctx context.Context, vectors []*store.IndexedVector) error
}

// Embedder turns embedding texts into vectors, one per text in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config tunes an indexing run. EmbedChunkSize is the number of texts sent
// in one EmbedBatch call; EmbedConcurrency bounds the calls in flight.
type Config struct {
	UpsertBatchSize  int
	EmbedConcurrency int
	EmbedChunkSize   int
}

// Report summarizes one IndexCatalog run.
type Report struct {
	RunID    string        `json:"run_id"`
	Total    int           `json:"total"`
	Unique   int           `json:"unique"`
	Existing int           `json:"existing"`
	Indexed  int           `json:"indexed"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// Indexer embeds catalog items that are not yet in the vector store and
// upserts them in batches. Running it twice over the same catalog is a no-op.
type Indexer struct {
	store    VectorStore
	embedder Embedder
	config   Config
	logger   *slog.Logger
	metrics  *metrics.PrometheusExporter
}

// Option configures an Indexer.
type Option func(*Indexer)

func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) { ix.logger = logger }
}

func WithMetrics(m *metrics.PrometheusExporter) Option {
	return func(ix *Indexer) { ix.metrics = m }
}

func NewIndexer(vs VectorStore, embedder Embedder, cfg Config, opts ...Option) *Indexer {
	if cfg.UpsertBatchSize < 1 {
		cfg.UpsertBatchSize = DefaultUpsertBatchSize
	}
	if cfg.EmbedConcurrency < 1 {
		cfg.EmbedConcurrency = DefaultEmbedConcurrency
	}
	if cfg.EmbedChunkSize < 1 {
		cfg.EmbedChunkSize = DefaultEmbedChunkSize
	}
	ix := &Indexer{
		store:    vs,
		embedder: embedder,
		config:   cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// IndexSource loads src and indexes its items.
func (ix *Indexer) IndexSource(ctx context.Context, src catalog.Source) (*Report, error) {
	items, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	return ix.IndexCatalog(ctx, items)
}

// IndexCatalog indexes the items whose ids are not in the store yet. All
// items are validated before the store is touched; an invalid item fails
// the run with a *store.SchemaError. Batches flushed before a later failure
// stay committed.
func (ix *Indexer) IndexCatalog(ctx context.Context, items []store.CatalogItem) (report *Report, err error) {
	began := time.Now()
	report = &Report{RunID: shortuuid.New(), Total: len(items)}
	logger := ix.logger.With(slog.String("run_id", report.RunID))
	defer func() {
		report.Duration = time.Since(began)
		ix.metrics.RecordIndexRun(report.Total, report.Existing, report.Indexed, report.Duration, err == nil)
	}()

	pending, err := prepare(items)
	if err != nil {
		return report, err
	}
	report.Unique = len(pending)

	ids := make([]store.MovieID, len(pending))
	for i := range pending {
		ids[i] = pending[i].ID
	}
	existing, err := ix.store.FetchExistingIDs(ctx, ids)
	if err != nil {
		return report, errors.Wrap(err, "failed to fetch existing ids")
	}
	indexed := make(map[store.MovieID]struct{}, len(existing))
	for _, id := range existing {
		indexed[id] = struct{}{}
	}

	todo := make([]store.CatalogItem, 0, len(pending))
	for _, item := range pending {
		if _, ok := indexed[item.ID]; !ok {
			todo = append(todo, item)
		}
	}
	report.Existing = len(pending) - len(todo)

	if len(todo) == 0 {
		logger.InfoContext(ctx, "catalog already indexed",
			slog.Int("total", report.Total),
			slog.Int("existing", report.Existing),
		)
		return report, nil
	}
	logger.InfoContext(ctx, "indexing catalog",
		slog.Int("total", report.Total),
		slog.Int("existing", report.Existing),
		slog.Int("new", len(todo)),
	)

	for start := 0; start < len(todo); start += ix.config.UpsertBatchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+ix.config.UpsertBatchSize, len(todo))

		vectors, err := ix.embedBatch(ctx, todo[start:end])
		if err != nil {
			return report, errors.Wrapf(err, "failed to embed batch [%d:%d]", start, end)
		}
		if err := ix.store.UpsertVectors(ctx, vectors); err != nil {
			return report, errors.Wrapf(err, "failed to upsert batch [%d:%d]", start, end)
		}

		report.Batches++
		report.Indexed += len(vectors)
		ix.metrics.RecordIndexBatch()
		logger.InfoContext(ctx, "upserted batch",
			slog.Int("batch", report.Batches),
			slog.Int("size", len(vectors)),
			slog.Int("remaining", len(todo)-end),
		)
	}
	return report, nil
}

// embedBatch embeds one upsert batch in chunks of EmbedChunkSize texts,
// with at most EmbedConcurrency chunks in flight. The batch fails as a
// whole when any chunk fails.
func (ix *Indexer) embedBatch(ctx context.Context, items []store.CatalogItem) ([]*store.IndexedVector, error) {
	vectors := make([]*store.IndexedVector, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.config.EmbedConcurrency)
	for start := 0; start < len(items); start += ix.config.EmbedChunkSize {
		chunk := items[start:min(start+ix.config.EmbedChunkSize, len(items))]
		g.Go(func() error {
			texts := make([]string, len(chunk))
			for i := range chunk {
				texts[i] = chunk[i].EmbeddingText()
			}
			embeddings, err := ix.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return errors.Wrapf(err, "movies %s..%s", chunk[0].ID, chunk[len(chunk)-1].ID)
			}
			if len(embeddings) != len(chunk) {
				return errors.Errorf("embedder returned %d vectors for %d texts", len(embeddings), len(chunk))
			}
			for i := range chunk {
				vectors[start+i] = &store.IndexedVector{
					ID:        chunk[i].ID,
					Embedding: embeddings[i],
					Metadata:  chunk[i].Metadata(),
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// prepare validates all items, normalizes copies of them and drops repeated
// ids, keeping the first occurrence.
func prepare(items []store.CatalogItem) ([]store.CatalogItem, error) {
	seen := make(map[store.MovieID]struct{}, len(items))
	out := make([]store.CatalogItem, 0, len(items))
	for i := range items {
		if err := items[i].Validate(); err != nil {
			var schemaErr *store.SchemaError
			if errors.As(err, &schemaErr) && schemaErr.Row == 0 {
				schemaErr.Row = i + 1
			}
			return nil, err
		}
		item := items[i]
		item.Genres = append([]string(nil), item.Genres...)
		item.Normalize()
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out, nil
}
