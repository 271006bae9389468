package catalog

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"

	"github.com/hrygo/cinesense/store"
)

// MovieLens-1M files use "::" as field separator and ISO-8859-1 text.
const movieLensSeparator = "::"

// UserRating is one line of ratings.dat.
type UserRating struct {
	UserID    string
	MovieID   store.MovieID
	Rating    float64
	Timestamp int64
}

// RatingStats is the aggregate of the ratings of one movie.
type RatingStats struct {
	Mean  float64
	Count int
}

// ParseMovieLens reads movies.dat and ratings.dat. Movies come back in file
// order with Year derived from the title and Rating set to the mean user
// rating, when the movie has any.
func ParseMovieLens(movies, ratings io.Reader) ([]store.CatalogItem, []UserRating, error) {
	items, err := parseMovies(movies)
	if err != nil {
		return nil, nil, err
	}
	userRatings, err := parseRatings(ratings)
	if err != nil {
		return nil, nil, err
	}

	stats := AggregateRatings(userRatings)
	for i := range items {
		if s, ok := stats[items[i].ID]; ok {
			items[i].Rating = store.Rating(s.Mean)
		}
	}
	return items, userRatings, nil
}

// AggregateRatings computes the per-movie mean (rounded to two decimals) and count.
func AggregateRatings(ratings []UserRating) map[store.MovieID]RatingStats {
	sums := make(map[store.MovieID]float64)
	stats := make(map[store.MovieID]RatingStats)
	for _, r := range ratings {
		sums[r.MovieID] += r.Rating
		s := stats[r.MovieID]
		s.Count++
		stats[r.MovieID] = s
	}
	for id, s := range stats {
		s.Mean = round2(sums[id] / float64(s.Count))
		stats[id] = s
	}
	return stats
}

func scanLines(r io.Reader, source string, fields int, fn func(row int, parts []string) error) error {
	scanner := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(r))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	row := 0
	for scanner.Scan() {
		row++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, movieLensSeparator)
		if len(parts) != fields {
			return &store.SchemaError{Source: source, Row: row, Reason: "expected " + strconv.Itoa(fields) + " fields separated by " + movieLensSeparator}
		}
		if err := fn(row, parts); err != nil {
			return err
		}
	}
	return errors.Wrapf(scanner.Err(), "failed to read %s", source)
}

func parseMovies(r io.Reader) ([]store.CatalogItem, error) {
	var items []store.CatalogItem
	err := scanLines(r, "movies.dat", 3, func(row int, parts []string) error {
		id, err := store.NewMovieID(parts[0])
		if err != nil {
			return &store.SchemaError{Source: "movies.dat", Row: row, Field: ColumnMovieID, Reason: "empty movie id"}
		}
		title := strings.TrimSpace(parts[1])
		items = append(items, store.CatalogItem{
			ID:     id,
			Title:  title,
			Genres: store.ParseGenres(parts[2]),
			Year:   store.ExtractYear(title),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func parseRatings(r io.Reader) ([]UserRating, error) {
	var ratings []UserRating
	err := scanLines(r, "ratings.dat", 4, func(row int, parts []string) error {
		id, err := store.NewMovieID(parts[1])
		if err != nil {
			return &store.SchemaError{Source: "ratings.dat", Row: row, Field: ColumnMovieID, Reason: "empty movie id"}
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return &store.SchemaError{Source: "ratings.dat", Row: row, Field: ColumnRating, Reason: "rating is not numeric"}
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(parts[3]), 10, 64)
		if err != nil {
			return &store.SchemaError{Source: "ratings.dat", Row: row, Field: "timestamp", Reason: "timestamp is not numeric"}
		}
		ratings = append(ratings, UserRating{
			UserID:    strings.TrimSpace(parts[0]),
			MovieID:   id,
			Rating:    value,
			Timestamp: ts,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ratings, nil
}
