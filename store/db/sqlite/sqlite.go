package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/store"
)

// ============================================================================
// SQLITE VECTOR INDEX
// ============================================================================
// Vectors are stored as little-endian float32 BLOBs next to their metadata.
// Similarity search is computed in the Go application layer by scanning the
// index, so this driver suits single-node catalogs of up to a few hundred
// thousand movies.
// ============================================================================

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

const schema = `
CREATE TABLE IF NOT EXISTS vector_index (
	name       TEXT PRIMARY KEY,
	dimension  INTEGER NOT NULL,
	metric     TEXT NOT NULL,
	created_ts INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS vector_entry (
	index_name TEXT NOT NULL,
	id         TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	genres     TEXT NOT NULL DEFAULT '',
	rating     REAL,
	year       INTEGER NOT NULL DEFAULT 0,
	updated_ts INTEGER NOT NULL,
	PRIMARY KEY (index_name, id)
);
`

// NewDB opens the SQLite file named by the profile DSN and creates the
// vector tables if needed.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	// Ensure a DSN is set before attempting to open the database.
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect to the database with some sane settings:
	// - No shared-cache: it's obsolete; WAL journal mode is a better solution.
	// - Journal mode set to WAL: it prevents readers from blocking the indexer.
	//
	// When using the `modernc.org/sqlite` driver, each pragma must be prefixed with `_pragma=`.
	separator := "?"
	if strings.Contains(profile.DSN, "?") {
		separator = "&"
	}
	sqliteDB, err := sql.Open("sqlite", profile.DSN+separator+"_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite: single connection is optimal with WAL
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	if _, err := sqliteDB.Exec(schema); err != nil {
		sqliteDB.Close()
		return nil, errors.Wrap(err, "failed to migrate vector tables")
	}

	return &DB{db: sqliteDB, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) loadSpec(ctx context.Context, name string) (*store.IndexSpec, error) {
	spec := &store.IndexSpec{Name: name}
	var metric string
	err := d.db.QueryRowContext(ctx, "SELECT dimension, metric FROM vector_index WHERE name = ?", name).Scan(&spec.Dimension, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(store.ErrIndexNotFound, name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load index %s", name)
	}
	spec.Metric = store.Metric(metric)
	return spec, nil
}
