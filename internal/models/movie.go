// internal/models/movie.go
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RatedItem is a watchlist entry with an explicit rating joined to its movie.
// Movie is nil when the entry points at a movie row that no longer exists.
type RatedItem struct {
	Rating int          `json:"rating"`
	Movie  *MovieRecord `json:"movie"`
}

type MovieRecord struct {
	ID        string   `json:"id"`
	TMDBID    int64    `json:"tmdbId,omitempty"`
	Title     string   `json:"title"`
	Year      *int     `json:"year"`
	PosterURL string   `json:"posterUrl,omitempty"`
	Director  string   `json:"director,omitempty"` // comma separated
	Genres    []string `json:"genres,omitempty"`

	ExtendedData *ExtendedData `json:"extendedData,omitempty"`
}

// Directors splits the director field on commas, trimming each name and dropping blanks.
func (m *MovieRecord) Directors() []string {
	if m == nil || m.Director == "" {
		return nil
	}
	parts := strings.Split(m.Director, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// EffectiveGenres prefers the genres column and falls back to technical.genres.
func (m *MovieRecord) EffectiveGenres() []string {
	if m == nil {
		return nil
	}
	if len(m.Genres) > 0 {
		return m.Genres
	}
	return m.ExtendedData.TechnicalGenres()
}

// Summary builds the per-movie entry appended to every stat the movie touches.
func (m *MovieRecord) Summary(rating int) MovieSummary {
	s := MovieSummary{
		ID:        m.ID,
		Title:     m.Title,
		Year:      m.Year,
		PosterURL: m.PosterURL,
	}
	if rating > 0 {
		r := rating
		s.UserRating = &r
	}
	return s
}

// ExtendedData is the loosely structured metadata blob. Every field is optional and
// every accessor tolerates a nil receiver.
type ExtendedData struct {
	Technical   *TechnicalData `json:"technical,omitempty"`
	Crew        *CrewData      `json:"crew,omitempty"`
	CrewDetails []CrewMember   `json:"crew_details,omitempty"`
	Cast        []CastMember   `json:"cast,omitempty"`
}

type TechnicalData struct {
	Genres  []string `json:"genres,omitempty"`
	Runtime *int     `json:"runtime,omitempty"`
}

type CrewData struct {
	Screenplay  string `json:"screenplay,omitempty"`
	Photography string `json:"photography,omitempty"`
	Music       string `json:"music,omitempty"`
}

type CrewMember struct {
	Name  string `json:"name"`
	Job   string `json:"job,omitempty"`
	Photo string `json:"photo,omitempty"`
}

type CastMember struct {
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Photo string `json:"photo,omitempty"`
}

// ParseExtendedData decodes a raw blob. Empty or JSON null input yields nil.
// Sections are decoded independently: a mistyped field drops only its own
// section (or list entry), and the returned error lists what was dropped
// next to the partially filled result.
func ParseExtendedData(raw []byte) (*ExtendedData, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, err
	}

	var (
		ext  ExtendedData
		errs []error
	)
	if rawTech, ok := sections["technical"]; ok {
		var fields map[string]json.RawMessage
		if decodeField(rawTech, &fields, "technical", &errs) && fields != nil {
			tech := &TechnicalData{}
			if v, ok := fields["genres"]; ok {
				decodeField(v, &tech.Genres, "technical.genres", &errs)
			}
			if v, ok := fields["runtime"]; ok {
				decodeField(v, &tech.Runtime, "technical.runtime", &errs)
			}
			ext.Technical = tech
		}
	}
	if v, ok := sections["crew"]; ok {
		var crew CrewData
		if decodeField(v, &crew, "crew", &errs) {
			ext.Crew = &crew
		}
	}
	if v, ok := sections["crew_details"]; ok {
		ext.CrewDetails = decodeList[CrewMember](v, "crew_details", &errs)
	}
	if v, ok := sections["cast"]; ok {
		ext.Cast = decodeList[CastMember](v, "cast", &errs)
	}
	return &ext, errors.Join(errs...)
}

func decodeField(raw json.RawMessage, dst interface{}, name string, errs *[]error) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return false
	}
	return true
}

// decodeList keeps every entry that decodes and skips the rest.
func decodeList[T any](raw json.RawMessage, name string, errs *[]error) []T {
	var entries []json.RawMessage
	if !decodeField(raw, &entries, name, errs) {
		return nil
	}
	out := make([]T, 0, len(entries))
	for i, entry := range entries {
		var v T
		if decodeField(entry, &v, fmt.Sprintf("%s[%d]", name, i), errs) {
			out = append(out, v)
		}
	}
	return out
}

func (e *ExtendedData) TechnicalGenres() []string {
	if e == nil || e.Technical == nil {
		return nil
	}
	return e.Technical.Genres
}

// CrewName returns the single credited person for a crew role, trimmed.
func (e *ExtendedData) CrewName(category RankingCategory) string {
	if e == nil || e.Crew == nil {
		return ""
	}
	switch category {
	case CategoryScreenplay:
		return strings.TrimSpace(e.Crew.Screenplay)
	case CategoryPhotography:
		return strings.TrimSpace(e.Crew.Photography)
	case CategoryMusic:
		return strings.TrimSpace(e.Crew.Music)
	}
	return ""
}

// CrewPhoto finds the first non-empty photo for name in crew_details. An empty job matches any job.
func (e *ExtendedData) CrewPhoto(name, job string) string {
	if e == nil {
		return ""
	}
	for _, c := range e.CrewDetails {
		if strings.TrimSpace(c.Name) != name || c.Photo == "" {
			continue
		}
		if job != "" && c.Job != job {
			continue
		}
		return c.Photo
	}
	return ""
}

// TopCast returns at most limit cast entries in billing order.
func (e *ExtendedData) TopCast(limit int) []CastMember {
	if e == nil || len(e.Cast) == 0 {
		return nil
	}
	if limit > 0 && len(e.Cast) > limit {
		return e.Cast[:limit]
	}
	return e.Cast
}
