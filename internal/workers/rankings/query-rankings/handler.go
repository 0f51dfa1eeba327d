// internal/workers/rankings/query-rankings/handler.go
package queryrankings

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
	"cinerank-workers/internal/rankings/queries"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "query-rankings"
)

type StatsReader interface {
	ListStats(ctx context.Context, f queries.ListFilter) ([]models.RankingStat, error)
	CountStats(ctx context.Context, userID string) (int, error)
}

type Handler struct {
	config *Config
	store  StatsReader
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		store:  queries.NewStatsStore(db),
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

	limit := input.Limit
	if limit == 0 {
		limit = h.config.DefaultLimit
	}

	stats, err := h.store.ListStats(ctx, queries.ListFilter{
		UserID:   input.UserID,
		Category: models.RankingCategory(input.Category),
		MinCount: input.MinCount,
		Limit:    limit,
	})
	if err != nil {
		return nil, h.readError(ctx, input.UserID, err)
	}

	stored, err := h.store.CountStats(ctx, input.UserID)
	if err != nil {
		return nil, h.readError(ctx, input.UserID, err)
	}

	return &Output{
		UserID:   input.UserID,
		Category: input.Category,
		Stats:    stats,
		Stored:   stored,
	}, nil
}

func (h *Handler) readError(ctx context.Context, userID string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return apperrors.NewTimeoutError("postgres", err)
	}
	return apperrors.NewSourceFetchError(userID, err)
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
		"count":  len(output.Stats),
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
