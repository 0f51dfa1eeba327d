// internal/workers/collection/backfill-collection/config.go
package backfillcollection

import (
	"time"

	"cinerank-workers/internal/common/config"
)

type Config struct {
	Timeout             time.Duration
	PageSize            int
	SubBatchSize        int
	SubBatchDelay       time.Duration
	TimeBudget          time.Duration
	ContinuationTimeout time.Duration
	CastLimit           int
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:             60 * time.Second,
		PageSize:            50,
		SubBatchSize:        5,
		SubBatchDelay:       150 * time.Millisecond,
		TimeBudget:          50 * time.Second,
		ContinuationTimeout: time.Second,
		CastLimit:           20,
	}
}

func LoadConfig(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	if w, ok := cfg.Workers[TaskType]; ok && w.Timeout > 0 {
		c.Timeout = config.GetDuration(w.Timeout)
	}
	b := cfg.Backfill
	if b.PageSize > 0 {
		c.PageSize = b.PageSize
	}
	if b.SubBatchSize > 0 {
		c.SubBatchSize = b.SubBatchSize
	}
	if b.SubBatchDelay > 0 {
		c.SubBatchDelay = config.GetDuration(b.SubBatchDelay)
	}
	if b.TimeBudget > 0 {
		c.TimeBudget = config.GetDuration(b.TimeBudget)
	}
	if b.ContinuationTimeout > 0 {
		c.ContinuationTimeout = config.GetDuration(b.ContinuationTimeout)
	}
	if cfg.Rankings.CastLimit > 0 {
		c.CastLimit = cfg.Rankings.CastLimit
	}
	return c
}
