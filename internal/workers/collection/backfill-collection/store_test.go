package backfillcollection

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"cinerank-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestMovieStore_PendingMovies(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE extended_data IS NULL AND metadata_checked_at IS NULL")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tmdb_id", "title", "director", "genres"}).
			AddRow("m1", 603, "The Matrix", nil, nil).
			AddRow("m2", nil, "Home Video", "Someone", "{Drama}"))

	movies, err := NewMovieStore(db).PendingMovies(context.Background(), 50)

	require.NoError(t, err)
	require.Len(t, movies, 2)
	assert.Equal(t, int64(603), movies[0].TMDBID)
	assert.Empty(t, movies[0].Director)
	assert.Equal(t, int64(0), movies[1].TMDBID)
	assert.Equal(t, []string{"Drama"}, movies[1].Genres)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMovieStore_PendingMovies_Error(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery("FROM movies").WillReturnError(errors.New("too many connections"))

	_, err := NewMovieStore(db).PendingMovies(context.Background(), 50)

	assert.ErrorContains(t, err, "query pending movies")
}

func TestMovieStore_CountPending(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM movies WHERE extended_data IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(17))

	n, err := NewMovieStore(db).CountPending(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 17, n)
}

func TestMovieStore_SaveEnrichment(t *testing.T) {
	db, mock := setupMockDB(t)
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ext := &models.ExtendedData{Cast: []models.CastMember{{Name: "Keanu Reeves", Role: "Neo"}}}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE movies SET")).
		WithArgs("m1", sqlmock.AnyArg(), "Lana Wachowski", sqlmock.AnyArg(), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewMovieStore(db).SaveEnrichment(context.Background(), "m1", ext, "Lana Wachowski", []string{"Action"}, at)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMovieStore_MarkChecked(t *testing.T) {
	db, mock := setupMockDB(t)
	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE movies SET metadata_checked_at = $2 WHERE id = $1")).
		WithArgs("m9", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewMovieStore(db).MarkChecked(context.Background(), "m9", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
