package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/store"
)

// hnswMaxDimension is the largest dimension pgvector can build an HNSW index for.
const hnswMaxDimension = 2000

type DB struct {
	db      *sql.DB
	profile *profile.Profile

	mu    sync.RWMutex
	specs map[string]*store.IndexSpec
}

// NewDB opens a PostgreSQL connection pool and makes sure the pgvector
// extension and the index registry table exist.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil || profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping db")
	}

	driver := &DB{db: db, profile: profile, specs: make(map[string]*store.IndexSpec)}
	if err := driver.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return driver, nil
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS vector_index (
			name       TEXT PRIMARY KEY,
			dimension  INTEGER NOT NULL,
			metric     TEXT NOT NULL,
			created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate")
		}
	}
	return nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// loadSpec returns the registered spec of an index, caching it per driver.
func (d *DB) loadSpec(ctx context.Context, name string) (*store.IndexSpec, error) {
	d.mu.RLock()
	spec, ok := d.specs[name]
	d.mu.RUnlock()
	if ok {
		return spec, nil
	}

	spec = &store.IndexSpec{Name: name}
	var metric string
	err := d.db.QueryRowContext(ctx, "SELECT dimension, metric FROM vector_index WHERE name = "+placeholder(1), name).Scan(&spec.Dimension, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(store.ErrIndexNotFound, name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load index %s", name)
	}
	spec.Metric = store.Metric(metric)

	d.mu.Lock()
	d.specs[name] = spec
	d.mu.Unlock()
	return spec, nil
}

// tableName maps an index to its table. Index names are validated by
// store.IndexSpec, the quoting guards against anything that slipped through.
func tableName(index string) string {
	return `"vec_` + strings.ReplaceAll(index, `"`, "") + `"`
}

func placeholder(n int) string {
	return "$" + fmt.Sprint(n)
}

func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

func opsClass(metric store.Metric) string {
	switch metric {
	case store.MetricDotProduct:
		return "vector_ip_ops"
	case store.MetricEuclidean:
		return "vector_l2_ops"
	default:
		return "vector_cosine_ops"
	}
}

// distanceOperator is the pgvector operator ordered ascending for nearest first.
func distanceOperator(metric store.Metric) string {
	switch metric {
	case store.MetricDotProduct:
		return "<#>"
	case store.MetricEuclidean:
		return "<->"
	default:
		return "<=>"
	}
}

// scoreExpr converts the distance into a similarity where higher is better,
// matching store.Similarity for the same metric.
func scoreExpr(metric store.Metric, arg string) string {
	switch metric {
	case store.MetricDotProduct:
		return "(-(embedding <#> " + arg + "))"
	case store.MetricEuclidean:
		return "(1 / (1 + (embedding <-> " + arg + ")))"
	default:
		return "(1 - (embedding <=> " + arg + "))"
	}
}

func logger() *slog.Logger {
	return slog.Default().With("component", "postgres")
}
