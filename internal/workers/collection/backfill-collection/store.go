// internal/workers/collection/backfill-collection/store.go
package backfillcollection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cinerank-workers/internal/models"

	"github.com/lib/pq"
)

const pendingFilter = `extended_data IS NULL AND metadata_checked_at IS NULL`

type MovieStore struct {
	db *sql.DB
}

func NewMovieStore(db *sql.DB) *MovieStore {
	return &MovieStore{db: db}
}

func (s *MovieStore) PendingMovies(ctx context.Context, limit int) ([]PendingMovie, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tmdb_id, title, director, genres
		FROM movies
		WHERE `+pendingFilter+`
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending movies: %w", err)
	}
	defer rows.Close()

	var out []PendingMovie
	for rows.Next() {
		var (
			m        PendingMovie
			tmdbID   sql.NullInt64
			title    sql.NullString
			director sql.NullString
			genres   pq.StringArray
		)
		if err := rows.Scan(&m.ID, &tmdbID, &title, &director, &genres); err != nil {
			return nil, fmt.Errorf("scan pending movie: %w", err)
		}
		m.TMDBID = tmdbID.Int64
		m.Title = title.String
		m.Director = director.String
		m.Genres = genres
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending movies: %w", err)
	}
	return out, nil
}

func (s *MovieStore) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies WHERE `+pendingFilter).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending movies: %w", err)
	}
	return n, nil
}

// SaveEnrichment stores the metadata blob and fills director and genres only where they are empty.
func (s *MovieStore) SaveEnrichment(ctx context.Context, movieID string, ext *models.ExtendedData, director string, genres []string, at time.Time) error {
	data, err := json.Marshal(ext)
	if err != nil {
		return fmt.Errorf("marshal extended data for %s: %w", movieID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE movies SET
			extended_data = $2,
			director = COALESCE(NULLIF(director, ''), NULLIF($3, '')),
			genres = CASE WHEN genres IS NULL OR cardinality(genres) = 0 THEN $4 ELSE genres END,
			metadata_checked_at = $5
		WHERE id = $1`, movieID, data, director, pq.Array(genres), at)
	if err != nil {
		return fmt.Errorf("save enrichment for %s: %w", movieID, err)
	}
	return nil
}

// MarkChecked takes a movie out of the pending set without metadata.
func (s *MovieStore) MarkChecked(ctx context.Context, movieID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE movies SET metadata_checked_at = $2 WHERE id = $1`, movieID, at)
	if err != nil {
		return fmt.Errorf("mark checked %s: %w", movieID, err)
	}
	return nil
}
