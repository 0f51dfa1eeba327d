// internal/workers/rankings/recalc-stats/config.go
package recalcstats

import (
	"time"

	"cinerank-workers/internal/common/config"
	"cinerank-workers/internal/rankings"
)

// DefaultBatchSize applies when a Config carries no positive BatchSize.
const DefaultBatchSize = 500

type Config struct {
	Timeout   time.Duration
	BatchSize int
	CastLimit int
	CacheTTL  time.Duration
	// PruneStale deletes the user's rows not refreshed by the current run.
	PruneStale bool
}

func LoadConfig(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	if w, ok := cfg.Workers[TaskType]; ok && w.Timeout > 0 {
		c.Timeout = config.GetDuration(w.Timeout)
	}
	if cfg.Rankings.BatchSize > 0 {
		c.BatchSize = cfg.Rankings.BatchSize
	}
	if cfg.Rankings.CastLimit > 0 {
		c.CastLimit = cfg.Rankings.CastLimit
	}
	if cfg.Rankings.CacheTTL > 0 {
		c.CacheTTL = time.Duration(cfg.Rankings.CacheTTL) * time.Second
	}
	c.PruneStale = cfg.Rankings.PruneStale
	return c
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:   60 * time.Second,
		BatchSize: DefaultBatchSize,
		CastLimit: rankings.DefaultCastLimit,
		CacheTTL:  5 * time.Minute,
	}
}
