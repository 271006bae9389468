// Package badgerdb stores the vector index in an embedded Badger key-value
// store. Records are JSON encoded; queries scan the index key prefix.
package badgerdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/store"
)

// InMemoryDSN opens a Badger instance without a backing directory.
const InMemoryDSN = ":memory:"

// Key prefixes for BadgerDB storage
const (
	indexKeyPrefix  = "index:"
	vectorKeyPrefix = "vector:"
)

type indexRecord struct {
	Name      string       `json:"name"`
	Dimension int          `json:"dimension"`
	Metric    store.Metric `json:"metric"`
	CreatedTs int64        `json:"createdTs"`
}

type vectorRecord struct {
	Embedding []float32            `json:"embedding"`
	Metadata  store.VectorMetadata `json:"metadata"`
	UpdatedTs int64                `json:"updatedTs"`
}

type DB struct {
	db *badger.DB
}

// NewDB opens the Badger directory named by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	opts := badger.DefaultOptions(profile.DSN)
	if profile.DSN == InMemoryDSN {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(slogLogger{logger: slog.Default().With("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open badger at %s", profile.DSN)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func indexKey(name string) []byte {
	return []byte(indexKeyPrefix + name)
}

func vectorPrefix(index string) []byte {
	return []byte(vectorKeyPrefix + index + ":")
}

func vectorKey(index string, id store.MovieID) []byte {
	return []byte(vectorKeyPrefix + index + ":" + string(id))
}

func loadIndex(txn *badger.Txn, name string) (*indexRecord, error) {
	item, err := txn.Get(indexKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Wrap(store.ErrIndexNotFound, name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get index %s", name)
	}
	var rec indexRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, errors.Wrapf(err, "decode index %s", name)
	}
	return &rec, nil
}

func (d *DB) EnsureIndex(_ context.Context, spec *store.IndexSpec) error {
	return d.db.Update(func(txn *badger.Txn) error {
		existing, err := loadIndex(txn, spec.Name)
		if err == nil {
			if existing.Dimension != spec.Dimension || existing.Metric != spec.Metric {
				return errors.Wrapf(store.ErrIndexConflict, "index %s is %d/%s", spec.Name, existing.Dimension, existing.Metric)
			}
			return nil
		}
		if !errors.Is(err, store.ErrIndexNotFound) {
			return err
		}

		data, err := json.Marshal(indexRecord{
			Name:      spec.Name,
			Dimension: spec.Dimension,
			Metric:    spec.Metric,
			CreatedTs: time.Now().Unix(),
		})
		if err != nil {
			return errors.Wrap(err, "marshal index")
		}
		return txn.Set(indexKey(spec.Name), data)
	})
}

func (d *DB) UpsertVectors(ctx context.Context, index string, vectors []*store.IndexedVector) error {
	return d.db.Update(func(txn *badger.Txn) error {
		spec, err := loadIndex(txn, index)
		if err != nil {
			return err
		}
		now := time.Now().Unix()
		for _, v := range vectors {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(v.Embedding) != spec.Dimension {
				return errors.Wrapf(store.ErrDimensionMismatch, "movie %s", v.ID)
			}
			data, err := json.Marshal(vectorRecord{Embedding: v.Embedding, Metadata: v.Metadata, UpdatedTs: now})
			if err != nil {
				return errors.Wrapf(err, "marshal movie %s", v.ID)
			}
			if err := txn.Set(vectorKey(index, v.ID), data); err != nil {
				return errors.Wrapf(err, "set movie %s", v.ID)
			}
		}
		return nil
	})
}

func (d *DB) FetchExistingIDs(_ context.Context, index string, ids []store.MovieID) ([]store.MovieID, error) {
	existing := make([]store.MovieID, 0)
	err := d.db.View(func(txn *badger.Txn) error {
		if _, err := loadIndex(txn, index); err != nil {
			return err
		}
		for _, id := range ids {
			_, err := txn.Get(vectorKey(index, id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return errors.Wrapf(err, "get movie %s", id)
			}
			existing = append(existing, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (d *DB) QueryVectors(ctx context.Context, index string, query *store.VectorQuery) ([]*store.VectorMatch, error) {
	matches := make([]*store.VectorMatch, 0)
	err := d.db.View(func(txn *badger.Txn) error {
		spec, err := loadIndex(txn, index)
		if err != nil {
			return err
		}
		if len(query.Vector) != spec.Dimension {
			return errors.Wrapf(store.ErrDimensionMismatch, "query has %d dimensions, index %s expects %d", len(query.Vector), index, spec.Dimension)
		}

		prefix := vectorPrefix(index)
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := store.MovieID(item.Key()[len(prefix):])

			var rec vectorRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return errors.Wrapf(err, "decode movie %s", id)
			}

			m := &store.VectorMatch{ID: id, Score: store.Similarity(spec.Metric, query.Vector, rec.Embedding)}
			if query.IncludeMetadata {
				m.Metadata = rec.Metadata
			}
			matches = append(matches, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store.RankMatches(matches, query.TopK), nil
}

func (d *DB) DescribeIndex(_ context.Context, index string) (*store.IndexStats, error) {
	var stats *store.IndexStats
	err := d.db.View(func(txn *badger.Txn) error {
		spec, err := loadIndex(txn, index)
		if err != nil {
			return err
		}
		stats = &store.IndexStats{Name: spec.Name, Dimension: spec.Dimension, Metric: spec.Metric}

		it := txn.NewIterator(badger.IteratorOptions{Prefix: vectorPrefix(index)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			stats.TotalVectorCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// slogLogger routes Badger's internal logging through slog.
type slogLogger struct {
	logger *slog.Logger
}

func (l slogLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l slogLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l slogLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l slogLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
