// internal/workers/rankings/recalc-stats/handler.go
package recalcstats

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "cinerank-workers/internal/common/errors"
	"cinerank-workers/internal/common/events"
	"cinerank-workers/internal/common/logger"
	"cinerank-workers/internal/common/metrics"
	"cinerank-workers/internal/common/validation"
	"cinerank-workers/internal/models"
	"cinerank-workers/internal/rankings"
	"cinerank-workers/internal/rankings/cache"
	"cinerank-workers/internal/rankings/queries"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	TaskType = "recalc-stats"
)

type RankingComputer interface {
	ComputeRankings(ctx context.Context, userID string, category models.RankingCategory) ([]models.RankingStat, error)
}

type StatsWriter interface {
	UpsertStats(ctx context.Context, rows []queries.StatRow) error
	DeleteStaleStats(ctx context.Context, userID string, before time.Time) (int64, error)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

type StatsIndexer interface {
	IndexStats(ctx context.Context, userID string, stats []models.RankingStat) error
}

type Handler struct {
	config    *Config
	engine    RankingComputer
	store     StatsWriter
	cache     CacheInvalidator
	indexer   StatsIndexer
	publisher events.Publisher
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

type Option func(*Handler)

func WithEngine(e RankingComputer) Option     { return func(h *Handler) { h.engine = e } }
func WithStore(s StatsWriter) Option          { return func(h *Handler) { h.store = s } }
func WithCache(c CacheInvalidator) Option     { return func(h *Handler) { h.cache = c } }
func WithIndexer(i StatsIndexer) Option       { return func(h *Handler) { h.indexer = i } }
func WithPublisher(p events.Publisher) Option { return func(h *Handler) { h.publisher = p } }

// NewHandler wires the Postgres source and store from db and the live cache from redisClient.
// redisClient may be nil, in which case no cache invalidation happens.
func NewHandler(config *Config, db *sql.DB, redisClient *redis.Client, log logger.Logger, opts ...Option) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	cfg := *config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	h := &Handler{
		config:    &cfg,
		engine:    rankings.NewEngine(queries.NewPostgresSource(db, log), rankings.Options{CastLimit: cfg.CastLimit}),
		store:     queries.NewStatsStore(db),
		publisher: events.NoopPublisher{},
		errors:    apperrors.NewErrorHandler(log),
		logger:    log,
	}
	if redisClient != nil {
		h.cache = cache.New(redisClient, cfg.CacheTTL)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, start, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, start, err)
		return
	}

	metrics.ObserveJob(TaskType, time.Since(start).Seconds(), "")
	h.completeJob(client, job, output)
}

// Recalculate is the entry point for callers outside the job runtime.
func (h *Handler) Recalculate(ctx context.Context, userID string) (*Output, error) {
	return h.execute(ctx, &Input{UserID: userID})
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, apperrors.NewValidationError("userId is required")
	}
	if err := validation.Validate(validation.RecalcRequest, input); err != nil {
		return nil, err
	}
	userID := input.UserID
	start := time.Now()
	runID := uuid.New().String()
	log := h.logger.WithFields(map[string]interface{}{"userId": userID, "runId": runID})

	ctx, span := otel.Tracer(TaskType).Start(ctx, "recalculate")
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("run.id", runID))
	defer span.End()

	stats, err := h.engine.ComputeRankings(ctx, userID, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation failed")
		return nil, err
	}

	now := time.Now().UTC()
	rows := queries.RowsFromStats(userID, stats, now)

	written, batches := 0, 0
	for offset := 0; offset < len(rows); offset += h.config.BatchSize {
		end := min(offset+h.config.BatchSize, len(rows))
		batches++
		if err := h.store.UpsertStats(ctx, rows[offset:end]); err != nil {
			metrics.RankingUpsertBatches.WithLabelValues("failed").Inc()
			log.Error("upsert batch failed", map[string]interface{}{
				"batch":     batches,
				"persisted": written,
				"total":     len(rows),
				"error":     err.Error(),
			})
			span.RecordError(err)
			span.SetStatus(codes.Error, "persistence failed")
			return nil, apperrors.NewPersistenceError(batches, err).WithMetadata("persisted", written)
		}
		written += end - offset
		metrics.RankingUpsertBatches.WithLabelValues("ok").Inc()
		metrics.RankingStatsUpserted.Add(float64(end - offset))
	}

	var pruned int64
	if h.config.PruneStale {
		pruned, err = h.store.DeleteStaleStats(ctx, userID, now)
		if err != nil {
			log.Warn("stale stat prune failed", map[string]interface{}{
				"error": apperrors.NewStalePruneError(err).Details,
			})
		}
	}

	h.afterPersist(ctx, log, userID, runID, stats)

	elapsed := time.Since(start).Milliseconds()
	span.SetAttributes(attribute.Int("stats.count", written), attribute.Int("stats.batches", batches))
	log.Info("rankings recalculated", map[string]interface{}{
		"count":      written,
		"batches":    batches,
		"pruned":     pruned,
		"durationMs": elapsed,
	})

	return &Output{
		RunID:     runID,
		UserID:    userID,
		Count:     written,
		ElapsedMs: elapsed,
		Batches:   batches,
		Pruned:    pruned,
	}, nil
}

// afterPersist runs side effects that never change the result of a recalculation.
func (h *Handler) afterPersist(ctx context.Context, log logger.Logger, userID, runID string, stats []models.RankingStat) {
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, userID); err != nil {
			log.Warn("cache invalidation failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if h.indexer != nil {
		if err := h.indexer.IndexStats(ctx, userID, stats); err != nil {
			log.Warn("search mirror failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if h.publisher != nil {
		err := h.publisher.Publish(ctx, events.Event{
			Type:       events.TypeRankingsRecalculated,
			UserID:     userID,
			RunID:      runID,
			OccurredAt: time.Now().UTC(),
			Payload:    map[string]interface{}{"count": len(stats)},
		})
		if err != nil {
			log.Warn("event publish failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
		"count":  output.Count,
	})
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, start time.Time, err error) {
	stdErr := apperrors.As(err)
	metrics.ObserveJob(TaskType, time.Since(start).Seconds(), string(stdErr.Code))
	h.errors.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
