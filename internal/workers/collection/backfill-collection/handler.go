// internal/workers/collection/backfill-collection/handler.go
package backfillcollection

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
	"cinerank-workers/internal/common/tmdb"
	"cinerank-workers/internal/common/validation"
	"cinerank-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	TaskType = "backfill-collection"
)

type Store interface {
	PendingMovies(ctx context.Context, limit int) ([]PendingMovie, error)
	CountPending(ctx context.Context) (int, error)
	SaveEnrichment(ctx context.Context, movieID string, ext *models.ExtendedData, director string, genres []string, at time.Time) error
	MarkChecked(ctx context.Context, movieID string, at time.Time) error
}

// MetadataClient is the slice of the TMDB client the backfill needs.
type MetadataClient interface {
	tmdb.Fetcher
	ImageURL(path string) string
}

type outcome int

const (
	outcomeEnriched outcome = iota
	outcomeUnavailable
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeEnriched:
		return "enriched"
	case outcomeUnavailable:
		return "unavailable"
	default:
		return "failed"
	}
}

type Handler struct {
	config    *Config
	store     Store
	metadata  MetadataClient
	publisher events.Publisher
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewHandler(config *Config, db *sql.DB, metadata MetadataClient, publisher events.Publisher, log logger.Logger) *Handler {
	return newHandler(config, NewMovieStore(db), metadata, publisher, log)
}

func newHandler(config *Config, store Store, metadata MetadataClient, publisher events.Publisher, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Handler{
		config:    config,
		store:     store,
		metadata:  metadata,
		publisher: publisher,
		errors:    apperrors.NewErrorHandler(log),
		logger:    log,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
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
	if len(job.Variables) > 0 {
		if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
			h.failJob(ctx, client, job, start, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
			return
		}
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, start, err)
		return
	}

	metrics.ObserveJob(TaskType, time.Since(start).Seconds(), "")
	h.completeJob(client, job, output)
}

// RunSlice processes one bounded page of pending movies.
func (h *Handler) RunSlice(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		input = &Input{}
	}
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := validation.Validate(validation.BackfillRequest, input); err != nil {
		return nil, err
	}

	start := h.now()
	out := &Output{RunID: uuid.New().String()}
	log := h.logger.WithFields(map[string]interface{}{"runId": out.RunID})

	pageSize := input.PageSize
	if pageSize == 0 {
		pageSize = h.config.PageSize
	}

	movies, err := h.store.PendingMovies(ctx, pageSize)
	if err != nil {
		return nil, apperrors.NewBackfillError(err)
	}

	for offset := 0; offset < len(movies); offset += h.config.SubBatchSize {
		if offset > 0 {
			if err := h.sleep(ctx, h.config.SubBatchDelay); err != nil {
				out.StoppedEarly = true
				break
			}
		}
		if h.now().Sub(start) > h.config.TimeBudget {
			out.StoppedEarly = true
			log.Info("time budget reached", map[string]interface{}{
				"processed": out.Processed,
				"budgetMs":  h.config.TimeBudget.Milliseconds(),
			})
			break
		}

		batch := movies[offset:min(offset+h.config.SubBatchSize, len(movies))]
		for _, o := range h.processSubBatch(ctx, log, batch) {
			out.Processed++
			switch o {
			case outcomeEnriched:
				out.Enriched++
			case outcomeUnavailable:
				out.Unavailable++
			default:
				out.Failed++
			}
			metrics.BackfillItems.WithLabelValues(o.String()).Inc()
		}
	}

	remaining, err := h.store.CountPending(ctx)
	if err != nil {
		// Fall back to what this page tells us: a full page means there may be more.
		log.Warn("count pending failed", map[string]interface{}{"error": err.Error()})
		remaining = len(movies) - out.Enriched - out.Unavailable
		out.HasMore = remaining > 0 || len(movies) == pageSize
	} else {
		out.HasMore = remaining > 0
	}
	out.Remaining = remaining
	out.ElapsedMs = h.now().Sub(start).Milliseconds()
	metrics.BackfillPending.Set(float64(remaining))

	log.Info("backfill slice finished", map[string]interface{}{
		"processed":    out.Processed,
		"enriched":     out.Enriched,
		"unavailable":  out.Unavailable,
		"failed":       out.Failed,
		"remaining":    out.Remaining,
		"stoppedEarly": out.StoppedEarly,
		"durationMs":   out.ElapsedMs,
	})

	if out.Processed > 0 {
		err := h.publisher.Publish(ctx, events.Event{
			Type:       events.TypeCollectionBackfilled,
			RunID:      out.RunID,
			OccurredAt: time.Now().UTC(),
			Payload: map[string]interface{}{
				"enriched":    out.Enriched,
				"unavailable": out.Unavailable,
				"remaining":   out.Remaining,
			},
		})
		if err != nil {
			log.Warn("event publish failed", map[string]interface{}{"error": err.Error()})
		}
	}

	return out, nil
}

// processSubBatch enriches every movie concurrently and waits for all of them.
// One item's failure never cancels its siblings.
func (h *Handler) processSubBatch(ctx context.Context, log logger.Logger, batch []PendingMovie) []outcome {
	results := make([]outcome, len(batch))
	var g errgroup.Group
	for i, m := range batch {
		g.Go(func() error {
			results[i] = h.enrich(ctx, log, m)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (h *Handler) enrich(ctx context.Context, log logger.Logger, m PendingMovie) outcome {
	var details *tmdb.MovieDetails
	var fetchErr error
	if m.TMDBID > 0 {
		details, fetchErr = h.metadata.GetMovie(ctx, m.TMDBID)
	}

	at := h.now().UTC()
	if details == nil {
		unavailable := apperrors.NewEnrichmentUnavailableError(m.ID, fetchErr)
		log.Debug("metadata unavailable", map[string]interface{}{
			"movieId": m.ID,
			"tmdbId":  m.TMDBID,
			"details": unavailable.Details,
		})
		if err := h.store.MarkChecked(ctx, m.ID, at); err != nil {
			log.Warn("mark checked failed", map[string]interface{}{"movieId": m.ID, "error": err.Error()})
			return outcomeFailed
		}
		return outcomeUnavailable
	}

	ext := buildExtendedData(details, h.metadata.ImageURL, h.config.CastLimit)
	if err := h.store.SaveEnrichment(ctx, m.ID, ext, directorsOf(details), genreNames(details), at); err != nil {
		log.Warn("save enrichment failed", map[string]interface{}{"movieId": m.ID, "error": err.Error()})
		return outcomeFailed
	}
	return outcomeEnriched
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
		"jobKey":  job.Key,
		"hasMore": output.HasMore,
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
