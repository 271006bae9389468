package catalog

import (
	"context"
	"database/sql"
	"os"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/cinesense/internal/version"
	"github.com/hrygo/cinesense/store"
)

const (
	// SchemaVersion is written into catalog_meta by WriteSQLiteCatalog.
	SchemaVersion = "1.1.0"
	// MinSchemaVersion is the oldest catalog layout SQLiteSource reads.
	// Catalogs without a catalog_meta table are treated as 1.0.0.
	MinSchemaVersion = "1.0.0"
)

// SQLiteSource reads the movies table of a prepared catalog, joined with
// the mean of its ratings table when present.
type SQLiteSource struct {
	Path string
}

func (s *SQLiteSource) Name() string {
	return s.Path
}

func openCatalog(path string, readOnly bool) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(10000)"
	if readOnly {
		dsn += "&mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open catalog %s", path)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type='table' AND name=?)", name).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check table %s", name)
	}
	return exists, nil
}

func (s *SQLiteSource) schemaVersion(ctx context.Context, db *sql.DB) (string, error) {
	ok, err := tableExists(ctx, db, "catalog_meta")
	if err != nil || !ok {
		return MinSchemaVersion, err
	}
	var v string
	err = db.QueryRowContext(ctx, "SELECT value FROM catalog_meta WHERE key = 'schema_version'").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return MinSchemaVersion, nil
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to read catalog schema version")
	}
	return v, nil
}

func (s *SQLiteSource) Load(ctx context.Context) ([]store.CatalogItem, error) {
	if _, err := os.Stat(s.Path); err != nil {
		return nil, notFound(s.Path, err)
	}
	db, err := openCatalog(s.Path, true)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	v, err := s.schemaVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	if !version.IsValid(v) || !version.IsVersionGreaterOrEqualThan(v, MinSchemaVersion) {
		return nil, &store.SchemaError{Source: s.Path, Field: "schema_version", Reason: "unsupported catalog schema " + v}
	}

	hasMovies, err := tableExists(ctx, db, "movies")
	if err != nil {
		return nil, err
	}
	if !hasMovies {
		return nil, &store.SchemaError{Source: s.Path, Field: "movies", Reason: "missing movies table"}
	}
	hasRatings, err := tableExists(ctx, db, "ratings")
	if err != nil {
		return nil, err
	}

	query := `SELECT m.movie_id, m.title, m.genres, NULL FROM movies m ORDER BY m.rowid`
	if hasRatings {
		query = `
			SELECT m.movie_id, m.title, m.genres, r.avg_rating
			FROM movies m
			LEFT JOIN (SELECT movie_id, AVG(rating) AS avg_rating FROM ratings GROUP BY movie_id) r
				ON r.movie_id = m.movie_id
			ORDER BY m.rowid`
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query movies")
	}
	defer rows.Close()

	var items []store.CatalogItem
	for rows.Next() {
		var (
			id, title, genres string
			rating            sql.NullFloat64
		)
		if err := rows.Scan(&id, &title, &genres, &rating); err != nil {
			return nil, errors.Wrap(err, "failed to scan movie")
		}
		item := store.CatalogItem{
			ID:     store.MovieID(id),
			Title:  title,
			Genres: store.ParseGenres(genres),
			Year:   store.ExtractYear(title),
		}
		if rating.Valid {
			item.Rating = store.Rating(round2(rating.Float64))
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate movies")
	}
	return items, nil
}
