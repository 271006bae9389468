package store

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MovieID is the normalized movie identifier shared by catalog sources,
// the vector index and the HTTP layer.
type MovieID string

// NewMovieID trims raw and rejects empty identifiers.
func NewMovieID(raw string) (MovieID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", errors.Wrap(ErrInvalidArgument, "empty movie id")
	}
	return MovieID(id), nil
}

// MovieIDFromInt formats a numeric source id.
func MovieIDFromInt(n int64) MovieID {
	return MovieID(strconv.FormatInt(n, 10))
}

func (id MovieID) String() string {
	return string(id)
}

// CatalogItem is the indexable unit read from a catalog source.
type CatalogItem struct {
	ID     MovieID
	Title  string
	Genres []string
	Year   int
	// Rating is the aggregate user rating; nil means unknown.
	Rating *float64
}

var yearPattern = regexp.MustCompile(`\((\d{4})\)`)

// ExtractYear returns the first parenthesized four digit year in title, or 0.
func ExtractYear(title string) int {
	m := yearPattern.FindStringSubmatch(title)
	if m == nil {
		return 0
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return year
}

// ParseGenres splits a pipe-delimited genre string.
func ParseGenres(s string) []string {
	parts := strings.Split(s, "|")
	genres := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			genres = append(genres, p)
		}
	}
	return genres
}

// GenreString joins the genres back into the pipe-delimited form.
func (c *CatalogItem) GenreString() string {
	return strings.Join(c.Genres, "|")
}

// Validate checks the fields every indexable item must carry.
func (c *CatalogItem) Validate() error {
	switch {
	case strings.TrimSpace(string(c.ID)) == "":
		return &SchemaError{Field: "movieId", Reason: "empty movie id"}
	case strings.TrimSpace(c.Title) == "":
		return &SchemaError{Field: "title", Reason: "empty title for movie " + string(c.ID)}
	case len(c.Genres) == 0:
		return &SchemaError{Field: "genres", Reason: "no genres for movie " + string(c.ID)}
	}
	return nil
}

// Normalize trims the id and title, derives Year from the title and drops
// a NaN or infinite rating.
func (c *CatalogItem) Normalize() {
	c.ID = MovieID(strings.TrimSpace(string(c.ID)))
	c.Title = strings.TrimSpace(c.Title)
	c.Year = ExtractYear(c.Title)
	if c.Rating != nil && (math.IsNaN(*c.Rating) || math.IsInf(*c.Rating, 0)) {
		c.Rating = nil
	}
}

// EmbeddingText is the text embedded for the item: title, space-joined
// genres and the year, always all three.
func (c *CatalogItem) EmbeddingText() string {
	return c.Title + " " + strings.Join(c.Genres, " ") + " " + strconv.Itoa(c.Year)
}

// Metadata projects the item onto the metadata stored next to its vector.
func (c *CatalogItem) Metadata() VectorMetadata {
	return VectorMetadata{
		Title:  c.Title,
		Genres: c.GenreString(),
		Rating: c.Rating,
		Year:   c.Year,
	}
}

// Rating returns a pointer to v for populating optional ratings.
func Rating(v float64) *float64 {
	return &v
}
