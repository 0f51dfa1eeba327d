// internal/workers/rankings/search-rankings/handler.go
package searchrankings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "cinerank-workers/internal/common/errors"
	"cinerank-workers/internal/common/logger"
	"cinerank-workers/internal/common/metrics"
	"cinerank-workers/internal/common/validation"
	"cinerank-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/elastic/go-elasticsearch/v8"
)

const (
	TaskType = "search-rankings"
)

type Handler struct {
	config *Config
	index  *Index
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, client *elasticsearch.Client, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		index:  NewIndex(client, config.Index),
		errors: apperrors.NewErrorHandler(log),
		logger: log,
	}
}

// Index exposes the mirror so recalculation can write to it.
func (h *Handler) Index() *Index {
	return h.index
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
	if err := validation.Validate(validation.SearchRequest, input); err != nil {
		return nil, err
	}

	size := input.Size
	if size == 0 {
		size = h.config.DefaultSize
	}

	start := time.Now()
	stats, total, err := h.index.Search(ctx, Query{
		UserID:   input.UserID,
		Prefix:   strings.TrimSpace(input.Query),
		Category: models.RankingCategory(input.Category),
		Size:     size,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewTimeoutError("elasticsearch", err)
		}
		return nil, err
	}

	return &Output{
		Stats:     stats,
		TotalHits: total,
		Took:      time.Since(start).Milliseconds(),
	}, nil
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
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, start time.Time, err error) {
	stdErr := apperrors.As(err)
	metrics.ObserveJob(TaskType, time.Since(start).Seconds(), string(stdErr.Code))
	h.errors.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
