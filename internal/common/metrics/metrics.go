// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	RankingStatsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ranking_stats_upserted_total",
			Help: "Ranking statistic rows written to the store",
		},
	)

	RankingUpsertBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_upsert_batches_total",
			Help: "Upsert batches by outcome",
		},
		[]string{"outcome"},
	)

	RankingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_cache_lookups_total",
			Help: "Live ranking cache lookups by result",
		},
		[]string{"result"},
	)

	BackfillItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backfill_items_total",
			Help: "Backfill items processed by outcome",
		},
		[]string{"outcome"},
	)

	BackfillPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backfill_pending_items",
			Help: "Movies still waiting for metadata after the last slice",
		},
	)
)

// ObserveJob records the outcome of one job run.
func ObserveJob(taskType string, seconds float64, errorCode string) {
	WorkerJobDuration.WithLabelValues(taskType).Observe(seconds)
	if errorCode == "" {
		WorkerJobsCompleted.WithLabelValues(taskType).Inc()
		return
	}
	WorkerJobsFailed.WithLabelValues(taskType, errorCode).Inc()
}
