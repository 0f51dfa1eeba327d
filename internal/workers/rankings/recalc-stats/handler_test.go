package recalcstats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	apperrors "cinerank-workers/internal/common/errors"
	"cinerank-workers/internal/common/events"
	"cinerank-workers/internal/common/logger"
	"cinerank-workers/internal/models"
	"cinerank-workers/internal/rankings"
	"cinerank-workers/internal/rankings/queries"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type mockEngine struct{ mock.Mock }

func (m *mockEngine) ComputeRankings(ctx context.Context, userID string, category models.RankingCategory) ([]models.RankingStat, error) {
	args := m.Called(ctx, userID, category)
	stats, _ := args.Get(0).([]models.RankingStat)
	return stats, args.Error(1)
}

type mockStore struct{ mock.Mock }

func (m *mockStore) UpsertStats(ctx context.Context, rows []queries.StatRow) error {
	return m.Called(ctx, rows).Error(0)
}

func (m *mockStore) DeleteStaleStats(ctx context.Context, userID string, before time.Time) (int64, error) {
	args := m.Called(ctx, userID, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockCache struct{ mock.Mock }

func (m *mockCache) Invalidate(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockIndexer struct{ mock.Mock }

func (m *mockIndexer) IndexStats(ctx context.Context, userID string, stats []models.RankingStat) error {
	return m.Called(ctx, userID, stats).Error(0)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, event events.Event) error {
	return m.Called(ctx, event).Error(0)
}

type fixedSource struct{ items []models.RatedItem }

func (s fixedSource) RatedItems(ctx context.Context, userID string, category models.RankingCategory) ([]models.RatedItem, error) {
	return s.items, nil
}

func ratedLibrary() []models.RatedItem {
	year := func(y int) *int { return &y }
	return []models.RatedItem{
		{Rating: 9, Movie: &models.MovieRecord{ID: "m1", Title: "Heat", Year: year(1995), Director: "Michael Mann",
			Genres: []string{"Crime", "Drama"},
			ExtendedData: &models.ExtendedData{
				Crew: &models.CrewData{Music: "Elliot Goldenthal"},
				Cast: []models.CastMember{{Name: "Al Pacino", Role: "Vincent Hanna"}, {Name: "Robert De Niro", Role: "Neil McCauley"}},
			}}},
		{Rating: 7, Movie: &models.MovieRecord{ID: "m2", Title: "The Godfather Part II", Year: year(1974), Director: "Francis Ford Coppola",
			Genres: []string{"Crime"},
			ExtendedData: &models.ExtendedData{
				Cast: []models.CastMember{{Name: "Al Pacino", Role: "Michael Corleone"}, {Name: "Robert De Niro", Role: "Vito Corleone"}},
			}}},
		{Rating: 8, Movie: &models.MovieRecord{ID: "m3", Title: "The Godfather", Year: year(1972), Director: "Francis Ford Coppola",
			Genres: []string{"Crime", "Drama"},
			ExtendedData: &models.ExtendedData{
				Cast: []models.CastMember{{Name: "Al Pacino", Role: "Michael Corleone"}, {Name: "Marlon Brando", Role: "Vito Corleone"}},
			}}},
	}
}

func makeStats(n int) []models.RankingStat {
	stats := make([]models.RankingStat, n)
	for i := range stats {
		stats[i] = models.RankingStat{Type: models.CategoryGenre, Key: fmt.Sprintf("genre-%04d", i), Count: 1, Score: 10}
	}
	return stats
}

func rowsOfLen(n int) interface{} {
	return mock.MatchedBy(func(rows []queries.StatRow) bool { return len(rows) == n })
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	return cfg
}

// ==========================
// Batching
// ==========================

func TestExecute_UpsertsInBatchesOf500(t *testing.T) {
	engine := new(mockEngine)
	store := new(mockStore)
	engine.On("ComputeRankings", mock.Anything, "user-1", models.RankingCategory("")).Return(makeStats(1001), nil)
	store.On("UpsertStats", mock.Anything, rowsOfLen(500)).Return(nil).Twice()
	store.On("UpsertStats", mock.Anything, rowsOfLen(1)).Return(nil).Once()

	handler := NewHandler(testConfig(), nil, nil, logger.NewTestLogger(t), WithEngine(engine), WithStore(store))
	out, err := handler.Execute(context.Background(), &Input{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, 1001, out.Count)
	assert.Equal(t, 3, out.Batches)
	assert.NotEmpty(t, out.RunID)
	store.AssertNumberOfCalls(t, "UpsertStats", 3)
	store.AssertNotCalled(t, "DeleteStaleStats", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_NonPositiveBatchSizeFallsBackToDefault(t *testing.T) {
	engine := new(mockEngine)
	store := new(mockStore)
	engine.On("ComputeRankings", mock.Anything, "user-1", models.RankingCategory("")).Return(makeStats(3), nil)
	store.On("UpsertStats", mock.Anything, rowsOfLen(3)).Return(nil).Once()

	cfg := &Config{Timeout: 5 * time.Second}
	handler := NewHandler(cfg, nil, nil, logger.NewTestLogger(t), WithEngine(engine), WithStore(store))
	out, err := handler.Execute(context.Background(), &Input{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, 1, out.Batches)
	assert.Equal(t, 0, cfg.BatchSize)
	store.AssertNumberOfCalls(t, "UpsertStats", 1)
}

func TestExecute_RowsShareRunTimestamp(t *testing.T) {
	engine := new(mockEngine)
	store := new(mockStore)
	engine.On("ComputeRankings", mock.Anything, "user-1", models.RankingCategory("")).Return(makeStats(3), nil)

	var captured []queries.StatRow
	store.On("UpsertStats", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).([]queries.StatRow)
	}).Return(nil)

	handler := NewHandler(testConfig(), nil, nil, logger.NewTestLogger(t), WithEngine(engine), WithStore(store))
	_, err := handler.Execute(context.Background(), &Input{UserID: "user-1"})

	require.NoError(t, err)
	require.Len(t, captured, 3)
	for _, r := range captured {
		assert.Equal(t, "user-1", r.UserID)
		assert.Equal(t, captured[0].UpdatedAt, r.UpdatedAt)
	}
}

func TestExecute_BatchFailureStopsLaterBatches(t *testing.T) {
	engine := new(mockEngine)
	store := new(mockStore)
	cache := new(mockCache)
	engine.On("ComputeRankings", mock.Anything, "user-1", models.RankingCategory("")).Return(makeStats(1200), nil)
	store.On("UpsertStats", mock.Anything, mock.Anything).Return(nil).Once()
	store.On("UpsertStats", mock.Anything, mock.Anything).Return(errors.New("connection reset")).Once()

	handler := NewHandler(testConfig(), nil, nil, logger.NewTestLogger(t),
		WithEngine(engine), WithStore(store), WithCache(cache))
	out, err := handler.Execute(context.Background(), &Input{UserID: "user-1"})

	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePersistenceFailed))

	stdErr := apperrors.As(err)
	assert.Equal(t, 2, stdErr.Metadata["batch"])
	assert.Equal(t, 500, stdErr.Metadata["persisted"])
	store.AssertNumberOfCalls(t, "UpsertStats", 2)
	cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

func TestExecute_NoStatsWritesNothing(t *testing.T) {
	engine := new(mockEngine)
	store := new(mockStore)
	engine.On("ComputeRankings", mock.Anything, "user-1", models.RankingCategory("")).Return([]models.RankingStat{}, nil)

	handler := NewHandler(testConfig(), nil, nil, logger.NewTestLogger(t), WithEngine(engine), WithStore(store))
	out, err := handler.Execute(context.Background(), &Input{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, 0, out.Count)
	assert.Equal(t, 0, out.Batches)
	store.AssertNotCalled(t, "UpsertStats", mock.Anything, mock.Anything)
}

// ==========================
// Validation and source errors
// ==========================

func TestExecute_MissingUserID(t *testing.T) {
	engine := new(mockEngine)
	handler := NewHandler(testConfig(), nil, nil, logger.NewTestLogger(t), WithEngine(engine), WithStore(new(mockStore)))

	for _, in := range []*Input{nil, {}, {UserID: "   "}} {
		_, err := handler.Execute(context.Background(), in)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	}
	engine.AssertNotCalled(t, "ComputeRankings", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_SourceFailurePropagates(t *testing.T) {
	engine := new(mockEngine)
	store := new(mockStore)
	engine.On("ComputeRankings", mock.Anything, "user-1", models.RankingCategory("")).
		Return(nil, apperrors.NewSourceFetchError("user-1", errors.New("timeout")))

	handler := NewHandler(testConfig(), nil, nil, logger.NewTestLogger(t), WithEngine(engine), WithStore(store))
	_, err := handler.Execute(context.Background(), &Input{UserID: "user-1"})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSourceFetchFailed))
	store.AssertNotCalled(t, "UpsertStats", mock.Anything, mock.Anything)
}

// ==========================
// Pruning and side effects
// ==========================

func TestExecute_PrunesOnlyWhenConfigured(t *testing.T) {
	engine := new(mockEngine)
	store := new(mockStore)
	engine.On("ComputeRankings", mock.Anything, "user-1", models.RankingCategory("")).Return(makeStats(2), nil)

	var upsertedAt time.Time
	store.On("UpsertStats", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		upsertedAt = args.Get(1).([]queries.StatRow)[0].UpdatedAt
	}).Return(nil)
	store.On("DeleteStaleStats", mock.Anything, "user-1", mock.AnythingOfType("time.Time")).Run(func(args mock.Arguments) {
		assert.Equal(t, upsertedAt, args.Get(2).(time.Time))
	}).Return(int64(4), nil)

	cfg := testConfig()
	cfg.PruneStale = true
	handler := NewHandler(cfg, nil, nil, logger.NewTestLogger(t), WithEngine(engine), WithStore(store))
	out, err := handler.Execute(context.Background(), &Input{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, int64(4), out.Pruned)
	store.AssertCalled(t, "DeleteStaleStats", mock.Anything, "user-1", mock.Anything)
}

func TestExecute_SideEffectFailuresDoNotFailRun(t *testing.T) {
	engine := new(mockEngine)
	store := new(mockStore)
	cache := new(mockCache)
	indexer := new(mockIndexer)
	publisher := new(mockPublisher)
	stats := makeStats(2)

	engine.On("ComputeRankings", mock.Anything, "user-1", models.RankingCategory("")).Return(stats, nil)
	store.On("UpsertStats", mock.Anything, mock.Anything).Return(nil)
	store.On("DeleteStaleStats", mock.Anything, "user-1", mock.Anything).Return(int64(0), errors.New("lock timeout"))
	cache.On("Invalidate", mock.Anything, "user-1").Return(errors.New("redis down"))
	indexer.On("IndexStats", mock.Anything, "user-1", stats).Return(errors.New("es down"))
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.TypeRankingsRecalculated && e.UserID == "user-1" && e.RunID != ""
	})).Return(errors.New("sns down"))

	cfg := testConfig()
	cfg.PruneStale = true
	handler := NewHandler(cfg, nil, nil, logger.NewTestLogger(t),
		WithEngine(engine), WithStore(store), WithCache(cache), WithIndexer(indexer), WithPublisher(publisher))
	out, err := handler.Execute(context.Background(), &Input{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
	cache.AssertExpectations(t)
	indexer.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

// ==========================
// Idempotence
// ==========================

func TestExecute_RerunWritesIdenticalRows(t *testing.T) {
	engine := rankings.NewEngine(fixedSource{items: ratedLibrary()}, rankings.Options{})
	store := new(mockStore)
	var runs [][]queries.StatRow
	store.On("UpsertStats", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		runs = append(runs, args.Get(1).([]queries.StatRow))
	}).Return(nil)

	handler := NewHandler(testConfig(), nil, nil, logger.NewTestLogger(t), WithEngine(engine), WithStore(store))
	for i := 0; i < 2; i++ {
		_, err := handler.Execute(context.Background(), &Input{UserID: "user-1"})
		require.NoError(t, err)
	}
	require.Len(t, runs, 2)

	type written struct {
		count, score int
		data         string
	}
	byKey := func(rows []queries.StatRow) map[string]written {
		out := make(map[string]written, len(rows))
		for _, row := range rows {
			data, err := json.Marshal(row.Data)
			require.NoError(t, err)
			out[string(row.Type)+"|"+row.Key] = written{count: row.Count, score: row.Score, data: string(data)}
		}
		return out
	}

	first, second := byKey(runs[0]), byKey(runs[1])
	require.Len(t, first, len(runs[0]))
	assert.Equal(t, first, second)
	assert.Contains(t, first, string(models.CategoryActor)+"|Al Pacino")
	assert.Contains(t, first, string(models.CategoryDirector)+"|Francis Ford Coppola")
}

// ==========================
// Postgres round trip
// ==========================

func TestExecute_WithPostgres(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	query, err := queries.RatedItemsQuery("")
	require.NoError(t, err)

	sqlMock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"rating", "id", "title", "year", "poster_url", "director", "genres", "extended_data"}).
			AddRow(8, "m1", "Movie M", 2020, nil, "Jane Doe", "{Drama}", []byte(`{"cast":[{"name":"Alan","role":"Hero"}]}`)))
	sqlMock.ExpectExec("INSERT INTO ranking_stats").WillReturnResult(sqlmock.NewResult(0, 4))

	handler := NewHandler(testConfig(), db, nil, logger.NewTestLogger(t))
	out, err := handler.Execute(context.Background(), &Input{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, 4, out.Count)
	assert.Equal(t, 1, out.Batches)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}
