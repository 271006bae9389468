// Package memory is an in-process vector index for development and tests.
// Queries are brute force over every stored vector.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/store"
)

type index struct {
	spec    store.IndexSpec
	vectors map[store.MovieID]*store.IndexedVector
}

// DB is the in-memory driver.
type DB struct {
	mu      sync.RWMutex
	indexes map[string]*index
}

// NewDB creates an empty in-memory driver.
func NewDB() store.Driver {
	return &DB{indexes: make(map[string]*index)}
}

func (d *DB) EnsureIndex(_ context.Context, spec *store.IndexSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if idx, ok := d.indexes[spec.Name]; ok {
		if idx.spec.Dimension != spec.Dimension || idx.spec.Metric != spec.Metric {
			return errors.Wrapf(store.ErrIndexConflict, "index %s is %d/%s", spec.Name, idx.spec.Dimension, idx.spec.Metric)
		}
		return nil
	}
	d.indexes[spec.Name] = &index{spec: *spec, vectors: make(map[store.MovieID]*store.IndexedVector)}
	return nil
}

func (d *DB) lookup(name string) (*index, error) {
	idx, ok := d.indexes[name]
	if !ok {
		return nil, errors.Wrap(store.ErrIndexNotFound, name)
	}
	return idx, nil
}

func (d *DB) UpsertVectors(ctx context.Context, name string, vectors []*store.IndexedVector) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx, err := d.lookup(name)
	if err != nil {
		return err
	}
	for _, v := range vectors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(v.Embedding) != idx.spec.Dimension {
			return errors.Wrapf(store.ErrDimensionMismatch, "movie %s", v.ID)
		}
		idx.vectors[v.ID] = &store.IndexedVector{
			ID:        v.ID,
			Embedding: slices.Clone(v.Embedding),
			Metadata:  v.Metadata,
		}
	}
	return nil
}

func (d *DB) FetchExistingIDs(_ context.Context, name string, ids []store.MovieID) ([]store.MovieID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	idx, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	existing := make([]store.MovieID, 0)
	for _, id := range ids {
		if _, ok := idx.vectors[id]; ok {
			existing = append(existing, id)
		}
	}
	return existing, nil
}

func (d *DB) QueryVectors(ctx context.Context, name string, query *store.VectorQuery) ([]*store.VectorMatch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	idx, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	if len(query.Vector) != idx.spec.Dimension {
		return nil, errors.Wrapf(store.ErrDimensionMismatch, "query has %d dimensions", len(query.Vector))
	}

	matches := make([]*store.VectorMatch, 0, len(idx.vectors))
	for _, v := range idx.vectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := &store.VectorMatch{ID: v.ID, Score: store.Similarity(idx.spec.Metric, query.Vector, v.Embedding)}
		if query.IncludeMetadata {
			m.Metadata = v.Metadata
		}
		matches = append(matches, m)
	}
	return store.RankMatches(matches, query.TopK), nil
}

func (d *DB) DescribeIndex(_ context.Context, name string) (*store.IndexStats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	idx, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	return &store.IndexStats{
		Name:             idx.spec.Name,
		Dimension:        idx.spec.Dimension,
		Metric:           idx.spec.Metric,
		TotalVectorCount: int64(len(idx.vectors)),
	}, nil
}

// Close is a no-op for the in-memory driver.
func (d *DB) Close() error {
	return nil
}
