package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/store"
)

func (d *DB) EnsureIndex(ctx context.Context, spec *store.IndexSpec) error {
	existing, err := d.loadSpec(ctx, spec.Name)
	if err == nil {
		if existing.Dimension != spec.Dimension || existing.Metric != spec.Metric {
			return errors.Wrapf(store.ErrIndexConflict, "index %s is %d/%s", spec.Name, existing.Dimension, existing.Metric)
		}
		return nil
	}
	if !errors.Is(err, store.ErrIndexNotFound) {
		return err
	}

	_, err = d.db.ExecContext(ctx,
		"INSERT INTO vector_index (name, dimension, metric, created_ts) VALUES (?, ?, ?, ?) ON CONFLICT(name) DO NOTHING",
		spec.Name, spec.Dimension, string(spec.Metric), time.Now().Unix())
	if err != nil {
		return errors.Wrapf(err, "failed to create index %s", spec.Name)
	}
	return nil
}

func (d *DB) UpsertVectors(ctx context.Context, index string, vectors []*store.IndexedVector) error {
	spec, err := d.loadSpec(ctx, index)
	if err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vector_entry (index_name, id, embedding, title, genres, rating, year, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(index_name, id) DO UPDATE SET
			embedding = excluded.embedding,
			title = excluded.title,
			genres = excluded.genres,
			rating = excluded.rating,
			year = excluded.year,
			updated_ts = excluded.updated_ts`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, v := range vectors {
		blob, err := encodeVector(v.Embedding, spec.Dimension)
		if err != nil {
			return errors.Wrapf(err, "movie %s", v.ID)
		}
		var rating sql.NullFloat64
		if v.Metadata.Rating != nil {
			rating = sql.NullFloat64{Float64: *v.Metadata.Rating, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, index, string(v.ID), blob, v.Metadata.Title, v.Metadata.Genres, rating, v.Metadata.Year, now); err != nil {
			return errors.Wrapf(err, "failed to upsert movie %s", v.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit upsert")
	}
	return nil
}

func (d *DB) FetchExistingIDs(ctx context.Context, index string, ids []store.MovieID) ([]store.MovieID, error) {
	if _, err := d.loadSpec(ctx, index); err != nil {
		return nil, err
	}
	existing := make([]store.MovieID, 0)
	if len(ids) == 0 {
		return existing, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, index)
	for _, id := range ids {
		args = append(args, string(id))
	}
	query := "SELECT id FROM vector_entry WHERE index_name = ? AND id IN (" + placeholders(len(ids)) + ")"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch existing ids")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan id")
		}
		existing = append(existing, store.MovieID(id))
	}
	return existing, rows.Err()
}

func (d *DB) QueryVectors(ctx context.Context, index string, query *store.VectorQuery) ([]*store.VectorMatch, error) {
	spec, err := d.loadSpec(ctx, index)
	if err != nil {
		return nil, err
	}
	if len(query.Vector) != spec.Dimension {
		return nil, errors.Wrapf(store.ErrDimensionMismatch, "query has %d dimensions, index %s expects %d", len(query.Vector), index, spec.Dimension)
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT id, embedding, title, genres, rating, year FROM vector_entry WHERE index_name = ?", index)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan vectors")
	}
	defer rows.Close()

	matches := make([]*store.VectorMatch, 0)
	for rows.Next() {
		var (
			id     string
			blob   []byte
			meta   store.VectorMetadata
			rating sql.NullFloat64
		)
		if err := rows.Scan(&id, &blob, &meta.Title, &meta.Genres, &rating, &meta.Year); err != nil {
			return nil, errors.Wrap(err, "failed to scan vector row")
		}
		embedding, err := decodeVector(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "movie %s", id)
		}
		m := &store.VectorMatch{ID: store.MovieID(id), Score: store.Similarity(spec.Metric, query.Vector, embedding)}
		if query.IncludeMetadata {
			if rating.Valid {
				meta.Rating = store.Rating(rating.Float64)
			}
			m.Metadata = meta
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate vectors")
	}
	return store.RankMatches(matches, query.TopK), nil
}

func (d *DB) DescribeIndex(ctx context.Context, index string) (*store.IndexStats, error) {
	spec, err := d.loadSpec(ctx, index)
	if err != nil {
		return nil, err
	}
	stats := &store.IndexStats{Name: spec.Name, Dimension: spec.Dimension, Metric: spec.Metric}
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vector_entry WHERE index_name = ?", index).Scan(&stats.TotalVectorCount); err != nil {
		return nil, errors.Wrap(err, "failed to count vectors")
	}
	return stats, nil
}

// encodeVector converts a []float32 to a little-endian BLOB after checking its dimension.
func encodeVector(vec []float32, dimension int) ([]byte, error) {
	if len(vec) != dimension {
		return nil, errors.Wrapf(store.ErrDimensionMismatch, "got %d, want %d", len(vec), dimension)
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf, nil
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("invalid vector blob length %d", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
