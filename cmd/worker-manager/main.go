// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cinerank-workers/internal/api"
	"cinerank-workers/internal/common/camunda"
	"cinerank-workers/internal/common/config"
	"cinerank-workers/internal/common/database"
	"cinerank-workers/internal/common/events"
	"cinerank-workers/internal/common/logger"
	"cinerank-workers/internal/common/observability"
	"cinerank-workers/internal/common/tmdb"

	bc "cinerank-workers/internal/workers/collection/backfill-collection"
	cr "cinerank-workers/internal/workers/rankings/compute-rankings"
	qr "cinerank-workers/internal/workers/rankings/query-rankings"
	rs "cinerank-workers/internal/workers/rankings/recalc-stats"
	sr "cinerank-workers/internal/workers/rankings/search-rankings"
)

// retryWithBackoff attempts to execute a function with exponential backoff.
// Errors that retry reports as permanent end the loop early.
func retryWithBackoff(ctx context.Context, operation func() error, retry func(error) bool, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}
		if retry != nil && !retry(err) {
			break
		}

		if i < maxRetries-1 {
			log.WithError(err).Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", operationName, ctx.Err())
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"app":         cfg.App.Name,
		"environment": cfg.App.Environment,
	})

	log.Info("Starting worker manager...", map[string]interface{}{"version": cfg.App.Version})

	if err := run(cfg, log); err != nil {
		zapLog.Fatal("worker manager stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(cfg.App.Name, cfg.App.Version)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	// --- Postgres ---
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := retryWithBackoff(ctx, func() error { return pg.Ping(ctx) }, nil, 10, 2*time.Second, log, "PostgreSQL connection"); err != nil {
		return err
	}
	log.Info("Connected to PostgreSQL", nil)

	// --- Redis ---
	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()
	if err := retryWithBackoff(ctx, func() error { return rdb.Ping(ctx) }, nil, 5, time.Second, log, "Redis connection"); err != nil {
		return err
	}
	log.Info("Connected to Redis", nil)

	checks := []api.Check{
		{Name: "postgres", Ping: pg.Ping},
		{Name: "redis", Ping: rdb.Ping},
	}

	// --- Events ---
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Events.Enabled {
		sns, err := events.NewSNSPublisherFromRegion(ctx, cfg.Events.Region, cfg.Events.TopicARN)
		if err != nil {
			return fmt.Errorf("events publisher: %w", err)
		}
		publisher = sns
		log.Info("Publishing domain events", map[string]interface{}{"topicArn": cfg.Events.TopicARN})
	}

	recalcOpts := []rs.Option{rs.WithPublisher(publisher)}

	// --- Elasticsearch ---
	var searchHandler *sr.Handler
	if cfg.Search.Enabled {
		esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		if err := retryWithBackoff(ctx, func() error {
			if err := esClient.Ping(ctx); err != nil {
				return err
			}
			return esClient.EnsureIndex(ctx, cfg.Search.Index, sr.IndexMapping)
		}, nil, 10, 2*time.Second, log, "Elasticsearch connection"); err != nil {
			return err
		}
		log.Info("Connected to Elasticsearch", map[string]interface{}{"index": cfg.Search.Index})

		searchHandler = sr.NewHandler(sr.LoadConfig(cfg), esClient.Client, log)
		recalcOpts = append(recalcOpts, rs.WithIndexer(searchHandler.Index()))
		checks = append(checks, api.Check{Name: "elasticsearch", Ping: esClient.Ping})
	}

	// --- Handlers ---
	recalcHandler := rs.NewHandler(rs.LoadConfig(cfg), pg.DB, rdb.Client, log, recalcOpts...)
	computeHandler := cr.NewHandler(cr.LoadConfig(cfg), pg.DB, rdb.Client, log)
	queryHandler := qr.NewHandler(qr.LoadConfig(cfg), pg.DB, log)

	metadata := tmdb.NewClient(cfg.TMDB, log)
	backfillHandler := bc.NewHandler(bc.LoadConfig(cfg), pg.DB, metadata, publisher, log)
	runner := bc.NewRunner(backfillHandler, log)
	runner.Start(ctx)
	defer runner.Stop()

	// --- Zeebe workers ---
	if cfg.Camunda.Enabled {
		var registry *camunda.Registry
		err := retryWithBackoff(ctx, func() error {
			client, err := camunda.Connect(ctx, cfg.Camunda)
			if err != nil {
				return err
			}
			registry = camunda.NewRegistry(client, log)
			return nil
		}, camunda.IsTransient, 10, 2*time.Second, log, "Zeebe client initialization")
		if err != nil {
			return err
		}
		defer registry.Close()

		registry.Register(rs.TaskType, config.GetWorkerConfig(cfg, rs.TaskType), recalcHandler)
		registry.Register(cr.TaskType, config.GetWorkerConfig(cfg, cr.TaskType), computeHandler)
		registry.Register(qr.TaskType, config.GetWorkerConfig(cfg, qr.TaskType), queryHandler)
		registry.Register(bc.TaskType, config.GetWorkerConfig(cfg, bc.TaskType), backfillHandler)
		if searchHandler != nil {
			registry.Register(sr.TaskType, config.GetWorkerConfig(cfg, sr.TaskType), searchHandler)
		}
		checks = append(checks, api.Check{Name: "zeebe", Ping: registry.Ping})
		log.Info("Zeebe workers registered", map[string]interface{}{"taskTypes": registry.TaskTypes()})
	}

	// --- HTTP ---
	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.NewServer(cfg.Server, recalcHandler, backfillHandler, runner, checks, log).WithRecorder(obs).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down worker manager...", nil)
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown incomplete", nil)
	}

	log.Info("Worker manager stopped", nil)
	return nil
}
