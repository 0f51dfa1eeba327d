package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cinerank-workers/internal/common/config"
	apperrors "cinerank-workers/internal/common/errors"
	"cinerank-workers/internal/common/logger"
	backfillcollection "cinerank-workers/internal/workers/collection/backfill-collection"
	recalcstats "cinerank-workers/internal/workers/rankings/recalc-stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type mockRecalc struct{ mock.Mock }

func (m *mockRecalc) Recalculate(ctx context.Context, userID string) (*recalcstats.Output, error) {
	args := m.Called(ctx, userID)
	out, _ := args.Get(0).(*recalcstats.Output)
	return out, args.Error(1)
}

type mockBackfill struct{ mock.Mock }

func (m *mockBackfill) RunSlice(ctx context.Context, input *backfillcollection.Input) (*backfillcollection.Output, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*backfillcollection.Output)
	return out, args.Error(1)
}

type mockTrigger struct{ mock.Mock }

func (m *mockTrigger) Trigger(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

type fixture struct {
	recalc   *mockRecalc
	backfill *mockBackfill
	trigger  *mockTrigger
	handler  http.Handler
}

func newFixture(t *testing.T, cfg config.ServerConfig, checks ...Check) *fixture {
	f := &fixture{recalc: new(mockRecalc), backfill: new(mockBackfill), trigger: new(mockTrigger)}
	f.handler = NewServer(cfg, f.recalc, f.backfill, f.trigger, checks, logger.NewTestLogger(t)).Routes()
	return f
}

func (f *fixture) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// ==========================
// recalc-stats
// ==========================

func TestRecalc_QueryParam(t *testing.T) {
	f := newFixture(t, config.ServerConfig{})
	f.recalc.On("Recalculate", mock.Anything, "user-1").Return(&recalcstats.Output{Count: 42, ElapsedMs: 17}, nil)

	rec := f.do(http.MethodGet, "/api/workers/recalc-stats?userId=user-1", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 42, body["count"])
	assert.EqualValues(t, 17, body["time"])
}

func TestRecalc_JSONBody(t *testing.T) {
	f := newFixture(t, config.ServerConfig{})
	f.recalc.On("Recalculate", mock.Anything, "user-2").Return(&recalcstats.Output{Count: 0}, nil)

	rec := f.do(http.MethodPost, "/api/workers/recalc-stats", `{"userId":"user-2"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	f.recalc.AssertExpectations(t)
}

func TestRecalc_MissingUserID(t *testing.T) {
	f := newFixture(t, config.ServerConfig{})

	for _, tc := range []struct{ method, body string }{
		{http.MethodGet, ""},
		{http.MethodPost, ""},
		{http.MethodPost, `{"userId":"  "}`},
		{http.MethodPost, `not json`},
	} {
		rec := f.do(tc.method, "/api/workers/recalc-stats", tc.body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, decode(t, rec)["error"])
	}
	f.recalc.AssertNotCalled(t, "Recalculate", mock.Anything, mock.Anything)
}

func TestRecalc_FailureIs500(t *testing.T) {
	f := newFixture(t, config.ServerConfig{})
	f.recalc.On("Recalculate", mock.Anything, "user-1").
		Return(nil, apperrors.NewPersistenceError(2, errors.New("deadlock")))

	rec := f.do(http.MethodGet, "/api/workers/recalc-stats?userId=user-1", "", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "deadlock")
}

func TestRecalc_SecretOnlyWhenRequired(t *testing.T) {
	open := newFixture(t, config.ServerConfig{WorkerSecret: "s3cret"})
	open.recalc.On("Recalculate", mock.Anything, "user-1").Return(&recalcstats.Output{}, nil)
	assert.Equal(t, http.StatusOK, open.do(http.MethodGet, "/api/workers/recalc-stats?userId=user-1", "", nil).Code)

	guarded := newFixture(t, config.ServerConfig{WorkerSecret: "s3cret", RequireSecretForRecalc: true})
	guarded.recalc.On("Recalculate", mock.Anything, "user-1").Return(&recalcstats.Output{}, nil)
	assert.Equal(t, http.StatusUnauthorized, guarded.do(http.MethodGet, "/api/workers/recalc-stats?userId=user-1", "", nil).Code)
	assert.Equal(t, http.StatusOK, guarded.do(http.MethodGet, "/api/workers/recalc-stats?userId=user-1", "",
		map[string]string{secretHeader: "s3cret"}).Code)
}

// ==========================
// backfill-collection
// ==========================

func TestBackfill_RequiresSecret(t *testing.T) {
	f := newFixture(t, config.ServerConfig{WorkerSecret: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/workers/backfill-collection", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/workers/backfill-collection", "",
		map[string]string{secretHeader: "wrong"}).Code)
	f.backfill.AssertNotCalled(t, "RunSlice", mock.Anything, mock.Anything)
}

func TestBackfill_NoSecretConfiguredRejects(t *testing.T) {
	f := newFixture(t, config.ServerConfig{})

	rec := f.do(http.MethodPost, "/api/workers/backfill-collection", "", map[string]string{secretHeader: ""})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBackfill_TriggersContinuation(t *testing.T) {
	f := newFixture(t, config.ServerConfig{WorkerSecret: "s3cret"})
	f.backfill.On("RunSlice", mock.Anything, &backfillcollection.Input{PageSize: 20}).
		Return(&backfillcollection.Output{RunID: "run-1", Processed: 20, Enriched: 18, Unavailable: 2, Remaining: 40, HasMore: true}, nil)
	f.trigger.On("Trigger", mock.Anything).Return(true)

	rec := f.do(http.MethodPost, "/api/workers/backfill-collection", `{"pageSize":20}`,
		map[string]string{secretHeader: "s3cret"})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "run-1", body["runId"])
	assert.EqualValues(t, 40, body["remaining"])
	assert.Equal(t, true, body["continued"])
	f.trigger.AssertExpectations(t)
}

func TestBackfill_DoneDoesNotTrigger(t *testing.T) {
	f := newFixture(t, config.ServerConfig{WorkerSecret: "s3cret"})
	f.backfill.On("RunSlice", mock.Anything, mock.Anything).
		Return(&backfillcollection.Output{Processed: 3, Enriched: 3}, nil)

	rec := f.do(http.MethodPost, "/api/workers/backfill-collection", "", map[string]string{secretHeader: "s3cret"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["continued"])
	f.trigger.AssertNotCalled(t, "Trigger", mock.Anything)
}

func TestBackfill_SliceFailure(t *testing.T) {
	f := newFixture(t, config.ServerConfig{WorkerSecret: "s3cret"})
	f.backfill.On("RunSlice", mock.Anything, mock.Anything).
		Return(nil, apperrors.NewBackfillError(errors.New("connection refused")))

	rec := f.do(http.MethodPost, "/api/workers/backfill-collection", "", map[string]string{secretHeader: "s3cret"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ==========================
// Health
// ==========================

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, config.ServerConfig{},
		Check{Name: "postgres", Ping: func(context.Context) error { return nil }},
		Check{Name: "redis", Ping: func(context.Context) error { return errors.New("dial tcp: refused") }},
	)

	health := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, health.Code)
	assert.Equal(t, "healthy", decode(t, health)["status"])

	ready := f.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, ready.Code)
	checks := decode(t, ready)["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["postgres"])
	assert.Contains(t, checks["redis"], "refused")

	metrics := f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, metrics.Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, config.ServerConfig{WorkerSecret: "s3cret", RateLimitRequests: 1, RateLimitWindow: 60000})
	f.recalc.On("Recalculate", mock.Anything, "user-1").Return(&recalcstats.Output{}, nil)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/workers/recalc-stats?userId=user-1", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/api/workers/recalc-stats?userId=user-1", "", nil).Code)
}

type recordedJob struct {
	taskType, status string
}

type fakeRecorder struct{ jobs []recordedJob }

func (r *fakeRecorder) RecordJob(_ context.Context, taskType, status string, _ time.Duration) {
	r.jobs = append(r.jobs, recordedJob{taskType, status})
}

func TestRecorder_ObservesWorkerEndpoints(t *testing.T) {
	recalc := new(mockRecalc)
	recalc.On("Recalculate", mock.Anything, "user-1").Return(&recalcstats.Output{Count: 1}, nil)
	recorder := &fakeRecorder{}
	handler := NewServer(config.ServerConfig{}, recalc, new(mockBackfill), new(mockTrigger), nil, logger.NewTestLogger(t)).
		WithRecorder(recorder).
		Routes()

	for _, target := range []string{"/api/workers/recalc-stats?userId=user-1", "/api/workers/recalc-stats", "/health"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	assert.Equal(t, []recordedJob{
		{"recalc-stats", "ok"},
		{"recalc-stats", "error"},
	}, recorder.jobs)
}
