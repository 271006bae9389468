package catalog

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/store"
)

const catalogSchema = `
DROP TABLE IF EXISTS movies;
DROP TABLE IF EXISTS ratings;
DROP TABLE IF EXISTS catalog_meta;
CREATE TABLE movies (
	movie_id TEXT PRIMARY KEY,
	title    TEXT NOT NULL,
	genres   TEXT NOT NULL,
	year     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE ratings (
	user_id  TEXT NOT NULL,
	movie_id TEXT NOT NULL,
	rating   REAL NOT NULL,
	ts       INTEGER NOT NULL
);
CREATE INDEX idx_ratings_movie_id ON ratings (movie_id);
CREATE TABLE catalog_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// WriteSQLiteCatalog replaces the catalog tables at path with movies and ratings.
func WriteSQLiteCatalog(ctx context.Context, path string, movies []store.CatalogItem, ratings []UserRating) error {
	db, err := openCatalog(path, false)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, catalogSchema); err != nil {
		return errors.Wrap(err, "failed to create catalog tables")
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO catalog_meta (key, value) VALUES ('schema_version', ?)", SchemaVersion); err != nil {
		return errors.Wrap(err, "failed to write catalog schema version")
	}

	movieStmt, err := tx.PrepareContext(ctx, "INSERT INTO movies (movie_id, title, genres, year) VALUES (?, ?, ?, ?)")
	if err != nil {
		return errors.Wrap(err, "failed to prepare movie insert")
	}
	defer movieStmt.Close()
	for _, m := range movies {
		if _, err := movieStmt.ExecContext(ctx, string(m.ID), m.Title, m.GenreString(), m.Year); err != nil {
			return errors.Wrapf(err, "failed to insert movie %s", m.ID)
		}
	}

	ratingStmt, err := tx.PrepareContext(ctx, "INSERT INTO ratings (user_id, movie_id, rating, ts) VALUES (?, ?, ?, ?)")
	if err != nil {
		return errors.Wrap(err, "failed to prepare rating insert")
	}
	defer ratingStmt.Close()
	for _, r := range ratings {
		if _, err := ratingStmt.ExecContext(ctx, r.UserID, string(r.MovieID), r.Rating, r.Timestamp); err != nil {
			return errors.Wrapf(err, "failed to insert rating for movie %s", r.MovieID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit catalog")
	}
	return nil
}

// WriteCSVDataset writes one row per movie with its mean rating and rating count.
func WriteCSVDataset(path string, movies []store.CatalogItem, stats map[store.MovieID]RatingStats) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{ColumnMovieID, ColumnTitle, ColumnGenres, ColumnYear, ColumnRating, ColumnRatingCount}); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for _, m := range movies {
		rating, count := "", "0"
		if s, ok := stats[m.ID]; ok {
			rating = strconv.FormatFloat(s.Mean, 'f', -1, 64)
			count = strconv.Itoa(s.Count)
		}
		if err := w.Write([]string{string(m.ID), m.Title, m.GenreString(), strconv.Itoa(m.Year), rating, count}); err != nil {
			return errors.Wrapf(err, "failed to write movie %s", m.ID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "failed to flush dataset")
	}
	return f.Close()
}
