// Package api serves the worker HTTP endpoints next to the health and metrics routes.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"cinerank-workers/internal/common/config"
	apperrors "cinerank-workers/internal/common/errors"
	"cinerank-workers/internal/common/logger"
	backfillcollection "cinerank-workers/internal/workers/collection/backfill-collection"
	recalcstats "cinerank-workers/internal/workers/rankings/recalc-stats"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const secretHeader = "X-Worker-Secret"

type Recalculator interface {
	Recalculate(ctx context.Context, userID string) (*recalcstats.Output, error)
}

type SliceRunner interface {
	RunSlice(ctx context.Context, input *backfillcollection.Input) (*backfillcollection.Output, error)
}

type ContinuationTrigger interface {
	Trigger(ctx context.Context) bool
}

// JobRecorder receives one observation per worker endpoint call.
type JobRecorder interface {
	RecordJob(ctx context.Context, taskType, status string, duration time.Duration)
}

// Check is a named readiness dependency check.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Server struct {
	config   config.ServerConfig
	recalc   Recalculator
	backfill SliceRunner
	runner   ContinuationTrigger
	checks   []Check
	recorder JobRecorder
	logger   logger.Logger
}

func NewServer(cfg config.ServerConfig, recalc Recalculator, backfill SliceRunner, runner ContinuationTrigger, checks []Check, log logger.Logger) *Server {
	return &Server{
		config:   cfg,
		recalc:   recalc,
		backfill: backfill,
		runner:   runner,
		checks:   checks,
		logger:   log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

// WithRecorder attaches a recorder for endpoint runs.
func (s *Server) WithRecorder(r JobRecorder) *Server {
	s.recorder = r
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/workers", func(r chi.Router) {
		if s.config.RateLimitRequests > 0 {
			r.Use(httprate.LimitByIP(s.config.RateLimitRequests, config.GetDuration(s.config.RateLimitWindow)))
		}
		r.Use(s.requestLogger)

		r.Get("/recalc-stats", s.recalcStats)
		r.Post("/recalc-stats", s.recalcStats)
		r.Post("/backfill-collection", s.backfillCollection)
	})

	return r
}

// ==========================
// Worker endpoints
// ==========================

type recalcRequest struct {
	UserID string `json:"userId"`
}

type recalcResponse struct {
	Success bool  `json:"success"`
	Count   int   `json:"count"`
	Time    int64 `json:"time"`
}

func (s *Server) recalcStats(w http.ResponseWriter, r *http.Request) {
	if s.config.RequireSecretForRecalc && !s.authorized(r) {
		s.writeError(w, r, apperrors.NewUnauthorizedError())
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" && r.Method == http.MethodPost {
		var req recalcRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, apperrors.NewValidationError("request body is not valid JSON"))
			return
		}
		userID = req.UserID
	}
	if strings.TrimSpace(userID) == "" {
		s.writeError(w, r, apperrors.NewValidationError("userId is required"))
		return
	}

	out, err := s.recalc.Recalculate(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recalcResponse{Success: true, Count: out.Count, Time: out.ElapsedMs})
}

type backfillResponse struct {
	*backfillcollection.Output
	Continued bool `json:"continued"`
}

func (s *Server) backfillCollection(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.writeError(w, r, apperrors.NewUnauthorizedError())
		return
	}

	var input backfillcollection.Input
	if err := decodeBody(r, &input); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("request body is not valid JSON"))
		return
	}

	out, err := s.backfill.RunSlice(r.Context(), &input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := backfillResponse{Output: out}
	if out.HasMore && s.runner != nil {
		resp.Continued = s.runner.Trigger(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}

// authorized fails closed when no secret is configured.
func (s *Server) authorized(r *http.Request) bool {
	if s.config.WorkerSecret == "" {
		return false
	}
	got := r.Header.Get(secretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.config.WorkerSecret)) == 1
}

// ==========================
// Health
// ==========================

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := map[string]string{}
	for _, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[c.Name] = err.Error()
			continue
		}
		results[c.Name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, status, map[string]interface{}{"status": state, "checks": results})
}

// ==========================
// Helpers
// ==========================

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		s.logger.Info("request handled", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"requestId":  chimiddleware.GetReqID(r.Context()),
			"durationMs": elapsed.Milliseconds(),
		})
		if s.recorder != nil {
			status := "ok"
			if ww.Status() >= http.StatusBadRequest {
				status = "error"
			}
			s.recorder.RecordJob(r.Context(), path.Base(r.URL.Path), status, elapsed)
		}
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := apperrors.As(err)
	status := apperrors.HTTPStatus(stdErr.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("worker endpoint failed", map[string]interface{}{
			"path":      r.URL.Path,
			"errorCode": string(stdErr.Code),
			"details":   stdErr.Details,
		})
	}

	msg := stdErr.Details
	if msg == "" {
		msg = stdErr.Message
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody accepts an empty body.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
