// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"cinerank-workers/internal/common/config"
	"cinerank-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler is implemented by every worker Handler.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// Registry opens one job worker per enabled task type and closes them together.
type Registry struct {
	client  zbc.Client
	workers map[string]worker.JobWorker
	logger  logger.Logger
}

func NewRegistry(client zbc.Client, log logger.Logger) *Registry {
	return &Registry{
		client:  client,
		workers: make(map[string]worker.JobWorker),
		logger:  log,
	}
}

// Register opens a job worker for taskType. Disabled workers are skipped
// and report false.
func (r *Registry) Register(taskType string, wcfg config.WorkerConfig, handler JobHandler) bool {
	if !wcfg.Enabled {
		r.logger.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return false
	}

	r.workers[taskType] = r.client.NewJobWorker().
		JobType(taskType).
		Handler(handler.Handle).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	r.logger.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
	})
	return true
}

// TaskTypes lists the task types with an open worker.
func (r *Registry) TaskTypes() []string {
	out := make([]string, 0, len(r.workers))
	for taskType := range r.workers {
		out = append(out, taskType)
	}
	return out
}

// Ping checks the gateway behind the registered workers.
func (r *Registry) Ping(ctx context.Context) error {
	return HealthCheck(ctx, r.client, time.Second)
}

// Close stops every worker, waits for in-flight jobs, then closes the client.
func (r *Registry) Close() error {
	for taskType, w := range r.workers {
		r.logger.Info("stopping worker", map[string]interface{}{"taskType": taskType})
		w.Close()
		w.AwaitClose()
	}
	return r.client.Close()
}
