// internal/rankings/extractors.go
package rankings

import (
	"strconv"
	"strings"

	"cinerank-workers/internal/models"
)

// Contribution is one (key, extras) pair a rated item adds to a category.
type Contribution struct {
	Key   string
	Photo string
	// Role is set only for actor contributions.
	Role *string
}

// Extractor maps a movie to its contributions for one category.
// Keys returned for a single movie are unique.
type Extractor func(movie *models.MovieRecord, opts Options) []Contribution

// Finalizer adjusts a completed bucket after every item has been folded in.
type Finalizer func(stat *models.RankingStat)

// Crew photo lookup jobs. An empty job matches any crew_details entry.
const (
	JobDirector     = "Director"
	JobPhotography  = "Director of Photography"
	JobMusic        = "Original Music Composer"
	jobAnyCrewEntry = ""
)

var extractors = map[models.RankingCategory]Extractor{
	models.CategoryDirector:    extractDirectors,
	models.CategoryActor:       extractActors,
	models.CategoryGenre:       extractGenres,
	models.CategoryYear:        extractYear,
	models.CategoryScreenplay:  crewExtractor(models.CategoryScreenplay, jobAnyCrewEntry),
	models.CategoryPhotography: crewExtractor(models.CategoryPhotography, JobPhotography),
	models.CategoryMusic:       crewExtractor(models.CategoryMusic, JobMusic),
}

var finalizers = map[models.RankingCategory]Finalizer{
	models.CategoryActor: sagaScore,
}

func extractDirectors(movie *models.MovieRecord, _ Options) []Contribution {
	names := dedupe(movie.Directors())
	out := make([]Contribution, 0, len(names))
	for _, name := range names {
		out = append(out, Contribution{
			Key:   name,
			Photo: movie.ExtendedData.CrewPhoto(name, JobDirector),
		})
	}
	return out
}

func extractGenres(movie *models.MovieRecord, _ Options) []Contribution {
	genres := dedupe(movie.EffectiveGenres())
	out := make([]Contribution, 0, len(genres))
	for _, g := range genres {
		out = append(out, Contribution{Key: g})
	}
	return out
}

func extractYear(movie *models.MovieRecord, _ Options) []Contribution {
	if movie.Year == nil || *movie.Year <= 0 {
		return nil
	}
	return []Contribution{{Key: strconv.Itoa(*movie.Year)}}
}

func crewExtractor(category models.RankingCategory, job string) Extractor {
	return func(movie *models.MovieRecord, _ Options) []Contribution {
		name := movie.ExtendedData.CrewName(category)
		if name == "" {
			return nil
		}
		return []Contribution{{
			Key:   name,
			Photo: movie.ExtendedData.CrewPhoto(name, job),
		}}
	}
}

// extractActors truncates to the top-billed cast first, then keeps the first
// credit per name within the movie.
func extractActors(movie *models.MovieRecord, opts Options) []Contribution {
	cast := movie.ExtendedData.TopCast(opts.CastLimit)
	seen := make(map[string]struct{}, len(cast))
	out := make([]Contribution, 0, len(cast))
	for _, member := range cast {
		name := strings.TrimSpace(member.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		role := member.Role
		out = append(out, Contribution{Key: name, Photo: member.Photo, Role: &role})
	}
	return out
}

// sagaScore rewards distinct characters at full weight and repeats of the same
// character at a reduced weight.
func sagaScore(stat *models.RankingStat) {
	unique := make(map[string]struct{}, len(stat.Data.Roles))
	for _, r := range stat.Data.Roles {
		unique[r.Role] = struct{}{}
	}
	uniqueRoles := len(unique)
	stat.Score = uniqueRoles*ScorePerMovie + (stat.Count-uniqueRoles)*ScorePerRepeatRole
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
