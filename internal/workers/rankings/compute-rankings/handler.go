// internal/workers/rankings/compute-rankings/handler.go
package computerankings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "cinerank-workers/internal/common/errors"
	"cinerank-workers/internal/common/logger"
	"cinerank-workers/internal/common/metrics"
	"cinerank-workers/internal/common/validation"
	"cinerank-workers/internal/models"
	"cinerank-workers/internal/rankings"
	"cinerank-workers/internal/rankings/cache"
	"cinerank-workers/internal/rankings/queries"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"
)

const (
	TaskType = "compute-rankings"
)

type RankingComputer interface {
	ComputeRankings(ctx context.Context, userID string, category models.RankingCategory) ([]models.RankingStat, error)
}

type StatsCache interface {
	Get(ctx context.Context, userID string, category models.RankingCategory) ([]models.RankingStat, bool, error)
	Set(ctx context.Context, userID string, category models.RankingCategory, stats []models.RankingStat) error
}

type Handler struct {
	config *Config
	engine RankingComputer
	cache  StatsCache
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, redisClient *redis.Client, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	var c StatsCache
	if redisClient != nil {
		c = cache.New(redisClient, config.CacheTTL)
	}
	engine := rankings.NewEngine(queries.NewPostgresSource(db, log), rankings.Options{CastLimit: config.CastLimit})
	return newHandler(config, engine, c, log)
}

func newHandler(config *Config, engine RankingComputer, c StatsCache, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		engine: engine,
		cache:  c,
		errors: apperrors.NewErrorHandler(log),
		logger: log,
	}
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
		h.failJob(ctx, client, job, start, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, start, err)
		return
	}

	metrics.ObserveJob(TaskType, time.Since(start).Seconds(), "")
	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := validation.Validate(validation.RankingsRequest, input); err != nil {
		return nil, err
	}
	category := models.RankingCategory(input.Category)

	stats, cached := h.lookup(ctx, input.UserID, category)
	if !cached {
		var err error
		stats, err = h.engine.ComputeRankings(ctx, input.UserID, category)
		if err != nil {
			return nil, err
		}
		rankings.SortStats(stats)
		h.store(ctx, input.UserID, category, stats)
	}

	return &Output{
		UserID:   input.UserID,
		Category: input.Category,
		Stats:    rankings.Top(stats, input.Limit),
		Total:    len(stats),
		Cached:   cached,
	}, nil
}

// lookup treats cache errors as misses.
func (h *Handler) lookup(ctx context.Context, userID string, category models.RankingCategory) ([]models.RankingStat, bool) {
	if h.cache == nil {
		return nil, false
	}
	stats, hit, err := h.cache.Get(ctx, userID, category)
	if err != nil {
		h.logger.Warn("cache read failed", map[string]interface{}{
			"userId": userID,
			"error":  apperrors.NewCacheError("get", err).Details,
		})
		metrics.RankingCacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	if !hit {
		metrics.RankingCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.RankingCacheLookups.WithLabelValues("hit").Inc()
	return stats, true
}

func (h *Handler) store(ctx context.Context, userID string, category models.RankingCategory, stats []models.RankingStat) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, userID, category, stats); err != nil {
		h.logger.Warn("cache write failed", map[string]interface{}{
			"userId": userID,
			"error":  apperrors.NewCacheError("set", err).Details,
		})
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
		"total":  output.Total,
		"cached": output.Cached,
	})
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, start time.Time, err error) {
	stdErr := apperrors.As(err)
	metrics.ObserveJob(TaskType, time.Since(start).Seconds(), string(stdErr.Code))
	h.errors.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
