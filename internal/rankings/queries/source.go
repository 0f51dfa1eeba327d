// internal/rankings/queries/source.go
package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cinerank-workers/internal/common/logger"
	"cinerank-workers/internal/models"

	"github.com/lib/pq"
)

var ErrUnknownCategory = errors.New("unknown ranking category")

// PostgresSource reads rated items from the watchlist joined with movies.
type PostgresSource struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresSource(db *sql.DB, log logger.Logger) *PostgresSource {
	return &PostgresSource{db: db, logger: log}
}

func (s *PostgresSource) RatedItems(ctx context.Context, userID string, category models.RankingCategory) ([]models.RatedItem, error) {
	query, err := RatedItemsQuery(category)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query rated items: %w", err)
	}
	defer rows.Close()

	var items []models.RatedItem
	for rows.Next() {
		var (
			rating    int
			movieID   sql.NullString
			title     sql.NullString
			year      sql.NullInt64
			posterURL sql.NullString
			director  sql.NullString
			genres    pq.StringArray
			extended  []byte
		)
		if err := rows.Scan(&rating, &movieID, &title, &year, &posterURL, &director, &genres, &extended); err != nil {
			return nil, fmt.Errorf("scan rated item: %w", err)
		}
		if !movieID.Valid {
			continue
		}

		movie := &models.MovieRecord{
			ID:        movieID.String,
			Title:     title.String,
			PosterURL: posterURL.String,
			Director:  director.String,
			Genres:    []string(genres),
		}
		if year.Valid {
			y := int(year.Int64)
			movie.Year = &y
		}
		ext, err := models.ParseExtendedData(extended)
		if err != nil {
			s.logger.Warn("ignoring malformed extended data", map[string]interface{}{
				"movieId": movieID.String,
				"error":   err.Error(),
			})
		}
		movie.ExtendedData = ext

		items = append(items, models.RatedItem{Rating: rating, Movie: movie})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rated items: %w", err)
	}

	return items, nil
}
