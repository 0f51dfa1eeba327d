// internal/models/ranking.go
package models

// RankingCategory is one of the fixed ranking dimensions.
type RankingCategory string

const (
	CategoryDirector    RankingCategory = "director"
	CategoryActor       RankingCategory = "actor"
	CategoryGenre       RankingCategory = "genre"
	CategoryYear        RankingCategory = "year"
	CategoryScreenplay  RankingCategory = "screenplay"
	CategoryPhotography RankingCategory = "photography"
	CategoryMusic       RankingCategory = "music"
)

// AllCategories lists every category in output order.
var AllCategories = []RankingCategory{
	CategoryDirector,
	CategoryActor,
	CategoryGenre,
	CategoryYear,
	CategoryScreenplay,
	CategoryPhotography,
	CategoryMusic,
}

func (c RankingCategory) IsValid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// CategoryNames returns the categories as plain strings, e.g. for schema enums.
func CategoryNames() []string {
	out := make([]string, len(AllCategories))
	for i, c := range AllCategories {
		out[i] = string(c)
	}
	return out
}

// RankingStat is one aggregated (category, key) bucket. It is also the persisted row payload.
type RankingStat struct {
	Type  RankingCategory `json:"type"`
	Key   string          `json:"key"`
	Count int             `json:"count"`
	Score int             `json:"score"`
	Data  StatData        `json:"data"`
}

type StatData struct {
	ImageURL string         `json:"imageUrl,omitempty"`
	Roles    []ActorRole    `json:"roles,omitempty"`
	Movies   []MovieSummary `json:"movies"`
}

// ActorRole records the character played in one movie.
type ActorRole struct {
	Role   string   `json:"role"`
	Movies []string `json:"movies"`
}

type MovieSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Year       *int   `json:"year"`
	PosterURL  string `json:"posterUrl,omitempty"`
	UserRating *int   `json:"userRating,omitempty"`
}
