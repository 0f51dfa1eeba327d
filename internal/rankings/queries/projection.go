// internal/rankings/queries/projection.go
package queries

import (
	"fmt"

	"cinerank-workers/internal/models"
)

// Projection names the SQL expressions selected for the category-dependent
// columns. Movie summary columns (id, title, year, poster) are always selected
// since every stat lists the movies it came from.
type Projection struct {
	Director string
	Genres   string
	Extended string
}

const (
	noText     = "NULL::text"
	noTextList = "NULL::text[]"
	noJSON     = "NULL::jsonb"
)

var fullProjection = Projection{
	Director: "m.director",
	Genres:   "m.genres",
	Extended: "m.extended_data",
}

func crewProjection(role string) Projection {
	return Projection{
		Director: noText,
		Genres:   noTextList,
		Extended: fmt.Sprintf(
			"jsonb_build_object('crew', jsonb_build_object('%s', m.extended_data->'crew'->'%s'), 'crew_details', m.extended_data->'crew_details')",
			role, role),
	}
}

// Projections holds the narrowed column set for each category.
var Projections = map[models.RankingCategory]Projection{
	models.CategoryDirector: {
		Director: "m.director",
		Genres:   noTextList,
		Extended: "jsonb_build_object('crew_details', m.extended_data->'crew_details')",
	},
	models.CategoryActor: {
		Director: noText,
		Genres:   noTextList,
		Extended: "jsonb_build_object('cast', m.extended_data->'cast')",
	},
	models.CategoryGenre: {
		Director: noText,
		Genres:   "m.genres",
		Extended: "jsonb_build_object('technical', jsonb_build_object('genres', m.extended_data->'technical'->'genres'))",
	},
	models.CategoryYear: {
		Director: noText,
		Genres:   noTextList,
		Extended: noJSON,
	},
	models.CategoryScreenplay:  crewProjection("screenplay"),
	models.CategoryPhotography: crewProjection("photography"),
	models.CategoryMusic:       crewProjection("music"),
}

func buildRatedItemsQuery(p Projection) string {
	return fmt.Sprintf(`SELECT w.rating, m.id, m.title, m.year, m.poster_url,
       %s AS director, %s AS genres, %s AS extended_data
FROM watchlist w
LEFT JOIN movies m ON m.id = w.movie_id
WHERE w.user_id = $1 AND w.rating >= 1
ORDER BY w.created_at, w.id`, p.Director, p.Genres, p.Extended)
}

var (
	fullQuery       = buildRatedItemsQuery(fullProjection)
	categoryQueries = func() map[models.RankingCategory]string {
		out := make(map[models.RankingCategory]string, len(Projections))
		for c, p := range Projections {
			out[c] = buildRatedItemsQuery(p)
		}
		return out
	}()
)

// RatedItemsQuery returns the SELECT for a category, or the full one when category is empty.
func RatedItemsQuery(category models.RankingCategory) (string, error) {
	if category == "" {
		return fullQuery, nil
	}
	q, ok := categoryQueries[category]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	return q, nil
}
