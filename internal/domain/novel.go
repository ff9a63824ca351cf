package domain

import (
	"strings"
	"time"
)

type Genre string

const (
	GenreUnset         Genre = ""
	GenreAction        Genre = "Action"
	GenreFantasy       Genre = "Fantasy"
	GenreHorrorMystery Genre = "Horror & Mystery"
	GenreRomance       Genre = "Romance"
	GenreComedy        Genre = "Comedy"
	GenreSliceOfLife   Genre = "Slice of life"
)

// genreSlugs maps the short path segments used by the genre pages.
var genreSlugs = map[string]Genre{
	"action":  GenreAction,
	"fantasy": GenreFantasy,
	"horror":  GenreHorrorMystery,
	"romance": GenreRomance,
	"comedy":  GenreComedy,
	"slice":   GenreSliceOfLife,
}

// Genres lists the known genres in display order.
func Genres() []Genre {
	return []Genre{
		GenreAction,
		GenreFantasy,
		GenreHorrorMystery,
		GenreRomance,
		GenreComedy,
		GenreSliceOfLife,
	}
}

// ParseGenre normalizes a submitted genre value. Anything outside the known
// set is treated as unset.
func ParseGenre(raw string) Genre {
	raw = strings.TrimSpace(raw)
	for _, g := range Genres() {
		if strings.EqualFold(raw, string(g)) {
			return g
		}
	}
	return GenreUnset
}

// GenreFromSlug resolves a genre page slug such as "horror".
func GenreFromSlug(slug string) (Genre, bool) {
	g, ok := genreSlugs[strings.ToLower(strings.TrimSpace(slug))]
	return g, ok
}

// Slug returns the genre page path segment, or "" for unset genres.
func (g Genre) Slug() string {
	for slug, genre := range genreSlugs {
		if genre == g {
			return slug
		}
	}
	return ""
}

// Novel is a single uploaded work. Author holds the creator's username as it
// was at creation time.
type Novel struct {
	ID        int64
	Title     string
	Author    string
	Body      string
	Genre     Genre
	CoverRef  string
	CreatedAt time.Time
}

// HasCover reports whether a stored cover asset is attached.
func (n Novel) HasCover() bool {
	return n.CoverRef != ""
}

// OwnedBy reports whether username is the novel's author.
func (n Novel) OwnedBy(username string) bool {
	return username != "" && n.Author == username
}
