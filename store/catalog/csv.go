package catalog

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/store"
)

// Column names of the merged dataset.
const (
	ColumnMovieID     = "movieId"
	ColumnTitle       = "title"
	ColumnGenres      = "genres"
	ColumnYear        = "year"
	ColumnRating      = "rating"
	ColumnRatingCount = "rating_count"
)

// CSVSource reads a dataset CSV with a header row. Required columns are
// movieId, title and genres; rating is optional. Rows repeating a movie id
// are folded into one item whose rating is the mean of the numeric ratings.
type CSVSource struct {
	Path string
}

func (s *CSVSource) Name() string {
	return s.Path
}

type accumulator struct {
	item  store.CatalogItem
	sum   float64
	count int
}

func (s *CSVSource) Load(ctx context.Context) ([]store.CatalogItem, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, notFound(s.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, &store.SchemaError{Source: s.Path, Reason: "empty dataset"}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read header of %s", s.Path)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	required := []string{ColumnMovieID, ColumnTitle, ColumnGenres}
	for _, name := range required {
		if _, ok := cols[strings.ToLower(name)]; !ok {
			return nil, &store.SchemaError{Source: s.Path, Field: name, Reason: "missing required column"}
		}
	}
	idCol, titleCol, genresCol := cols[strings.ToLower(ColumnMovieID)], cols[ColumnTitle], cols[ColumnGenres]
	ratingCol, hasRating := cols[ColumnRating]

	var (
		order []*accumulator
		byID  = make(map[store.MovieID]*accumulator)
		row   = 0
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s row %d", s.Path, row)
		}
		if row%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		id := store.MovieID(strings.TrimSpace(field(record, idCol)))
		acc, seen := byID[id]
		if !seen || id == "" {
			acc = &accumulator{item: store.CatalogItem{
				ID:     id,
				Title:  strings.TrimSpace(field(record, titleCol)),
				Genres: store.ParseGenres(field(record, genresCol)),
			}}
			order = append(order, acc)
			if id != "" {
				byID[id] = acc
			}
		}
		if hasRating {
			// ParseFloat accepts NaN and Inf; those count as missing.
			if v, err := strconv.ParseFloat(strings.TrimSpace(field(record, ratingCol)), 64); err == nil && finite(v) {
				acc.sum += v
				acc.count++
			}
		}
	}

	items := make([]store.CatalogItem, 0, len(order))
	for _, acc := range order {
		item := acc.item
		if acc.count > 0 {
			item.Rating = store.Rating(round2(acc.sum / float64(acc.count)))
		}
		item.Year = store.ExtractYear(item.Title)
		items = append(items, item)
	}
	return items, nil
}

func field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}
