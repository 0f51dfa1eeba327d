// internal/workers/collection/backfill-collection/enrich.go
package backfillcollection

import (
	"sort"
	"strings"

	"cinerank-workers/internal/common/tmdb"
	"cinerank-workers/internal/models"
	"cinerank-workers/internal/rankings"
)

// Crew jobs copied into crew_details. Other jobs are dropped.
var keptJobs = map[string]bool{
	rankings.JobDirector:    true,
	"Screenplay":            true,
	"Writer":                true,
	rankings.JobPhotography: true,
	rankings.JobMusic:       true,
}

type imageResolver func(path string) string

// buildExtendedData turns TMDB details into the stored metadata blob.
func buildExtendedData(d *tmdb.MovieDetails, image imageResolver, castLimit int) *models.ExtendedData {
	ext := &models.ExtendedData{
		Technical: &models.TechnicalData{Genres: genreNames(d)},
		Crew:      &models.CrewData{},
	}
	if d.Runtime > 0 {
		runtime := d.Runtime
		ext.Technical.Runtime = &runtime
	}

	for _, c := range d.Credits.Crew {
		if !keptJobs[c.Job] || strings.TrimSpace(c.Name) == "" {
			continue
		}
		ext.CrewDetails = append(ext.CrewDetails, models.CrewMember{Name: c.Name, Job: c.Job, Photo: image(c.ProfilePath)})

		switch {
		case c.Job == rankings.JobPhotography && ext.Crew.Photography == "":
			ext.Crew.Photography = c.Name
		case c.Job == rankings.JobMusic && ext.Crew.Music == "":
			ext.Crew.Music = c.Name
		case c.Job == "Screenplay" && ext.Crew.Screenplay == "":
			ext.Crew.Screenplay = c.Name
		}
	}
	if ext.Crew.Screenplay == "" {
		for _, c := range d.Credits.Crew {
			if c.Job == "Writer" && strings.TrimSpace(c.Name) != "" {
				ext.Crew.Screenplay = c.Name
				break
			}
		}
	}

	cast := append([]tmdb.CastCredit(nil), d.Credits.Cast...)
	sort.SliceStable(cast, func(i, j int) bool { return cast[i].Order < cast[j].Order })
	for _, c := range cast {
		if castLimit > 0 && len(ext.Cast) >= castLimit {
			break
		}
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		ext.Cast = append(ext.Cast, models.CastMember{Name: c.Name, Role: c.Character, Photo: image(c.ProfilePath)})
	}

	return ext
}

func directorsOf(d *tmdb.MovieDetails) string {
	var names []string
	seen := map[string]bool{}
	for _, c := range d.Credits.Crew {
		if c.Job == rankings.JobDirector && c.Name != "" && !seen[c.Name] {
			seen[c.Name] = true
			names = append(names, c.Name)
		}
	}
	return strings.Join(names, ", ")
}

func genreNames(d *tmdb.MovieDetails) []string {
	var out []string
	for _, g := range d.Genres {
		if g.Name != "" {
			out = append(out, g.Name)
		}
	}
	return out
}
