// Package catalog reads and writes the movie catalog consumed by the
// indexer: the merged CSV dataset, the SQLite catalog produced by
// `cinesense prepare` and the raw MovieLens files it is built from.
package catalog

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/store"
)

// Source yields catalog items in source order.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]store.CatalogItem, error)
}

// OpenSource picks a Source implementation from the file extension.
func OpenSource(path string) Source {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return &SQLiteSource{Path: path}
	default:
		return &CSVSource{Path: path}
	}
}

// RatingLookup resolves a movie's aggregate rating.
type RatingLookup interface {
	Rating(id store.MovieID) (float64, bool)
}

// RatingIndex is an in-memory RatingLookup.
type RatingIndex map[store.MovieID]float64

func (r RatingIndex) Rating(id store.MovieID) (float64, bool) {
	v, ok := r[id]
	return v, ok
}

// NewRatingIndex collects the known ratings of items.
func NewRatingIndex(items []store.CatalogItem) RatingIndex {
	idx := make(RatingIndex, len(items))
	for _, item := range items {
		if item.Rating != nil && finite(*item.Rating) {
			idx[item.ID] = *item.Rating
		}
	}
	return idx
}

// LoadRatings builds a RatingIndex from the catalog at path. An absent or
// unreadable source is reported as *store.DataUnavailableError.
func LoadRatings(ctx context.Context, path string) (RatingIndex, error) {
	if path == "" {
		return nil, &store.DataUnavailableError{Source: "rating lookup", Err: errors.New("no rating source configured")}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &store.DataUnavailableError{Source: path, Err: err}
	}
	items, err := OpenSource(path).Load(ctx)
	if err != nil {
		return nil, &store.DataUnavailableError{Source: path, Err: err}
	}
	return NewRatingIndex(items), nil
}

func notFound(path string, err error) error {
	if os.IsNotExist(err) {
		return &store.SchemaError{Source: path, Reason: "dataset not found"}
	}
	return errors.Wrapf(err, "failed to open %s", path)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
