package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/store"
)

// EnsureIndex registers the index and creates its table with an HNSW index
// for the configured metric.
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

	table := tableName(spec.Name)
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			embedding  vector(%d) NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			genres     TEXT NOT NULL DEFAULT '',
			rating     DOUBLE PRECISION,
			year       INTEGER NOT NULL DEFAULT 0,
			updated_ts BIGINT NOT NULL
		)`, table, spec.Dimension),
	}
	if spec.Dimension <= hnswMaxDimension {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS "idx_vec_%s_embedding" ON %s USING hnsw (embedding %s)`,
			spec.Name, table, opsClass(spec.Metric)))
	} else {
		logger().WarnContext(ctx, "dimension too large for hnsw, queries will scan the table",
			"index", spec.Name, "dimension", spec.Dimension)
	}
	stmts = append(stmts, `INSERT INTO vector_index (name, dimension, metric) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`)

	for i, stmt := range stmts {
		var args []any
		if i == len(stmts)-1 {
			args = []any{spec.Name, spec.Dimension, string(spec.Metric)}
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return errors.Wrapf(err, "failed to create index %s", spec.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit index creation")
	}
	return nil
}

// UpsertVectors writes one batch in a single transaction.
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
		INSERT INTO `+tableName(index)+` (id, embedding, title, genres, rating, year, updated_ts)
		VALUES (`+placeholders(7)+`)
		ON CONFLICT (id)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			title = EXCLUDED.title,
			genres = EXCLUDED.genres,
			rating = EXCLUDED.rating,
			year = EXCLUDED.year,
			updated_ts = EXCLUDED.updated_ts
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, v := range vectors {
		if len(v.Embedding) != spec.Dimension {
			return errors.Wrapf(store.ErrDimensionMismatch, "movie %s", v.ID)
		}
		var rating sql.NullFloat64
		if v.Metadata.Rating != nil {
			rating = sql.NullFloat64{Float64: *v.Metadata.Rating, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			string(v.ID),
			pgvector.NewVector(v.Embedding),
			v.Metadata.Title,
			v.Metadata.Genres,
			rating,
			v.Metadata.Year,
			now,
		); err != nil {
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

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := d.db.QueryContext(ctx, "SELECT id FROM "+tableName(index)+" WHERE id = ANY("+placeholder(1)+")", pq.Array(raw))
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

	stmt := `
		SELECT id, title, genres, rating, year, ` + scoreExpr(spec.Metric, placeholder(1)) + ` AS score
		FROM ` + tableName(index) + `
		ORDER BY embedding ` + distanceOperator(spec.Metric) + ` ` + placeholder(1) + `, id
		LIMIT ` + placeholder(2)

	rows, err := d.db.QueryContext(ctx, stmt, pgvector.NewVector(query.Vector), query.TopK)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query vectors")
	}
	defer rows.Close()

	matches := make([]*store.VectorMatch, 0, query.TopK)
	for rows.Next() {
		var (
			m      store.VectorMatch
			id     string
			meta   store.VectorMetadata
			rating sql.NullFloat64
		)
		if err := rows.Scan(&id, &meta.Title, &meta.Genres, &rating, &meta.Year, &m.Score); err != nil {
			return nil, errors.Wrap(err, "failed to scan match")
		}
		m.ID = store.MovieID(id)
		if query.IncludeMetadata {
			if rating.Valid {
				meta.Rating = store.Rating(rating.Float64)
			}
			m.Metadata = meta
		}
		matches = append(matches, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

func (d *DB) DescribeIndex(ctx context.Context, index string) (*store.IndexStats, error) {
	spec, err := d.loadSpec(ctx, index)
	if err != nil {
		return nil, err
	}
	stats := &store.IndexStats{Name: spec.Name, Dimension: spec.Dimension, Metric: spec.Metric}
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableName(index)).Scan(&stats.TotalVectorCount); err != nil {
		return nil, errors.Wrap(err, "failed to count vectors")
	}
	return stats, nil
}
