// internal/workers/rankings/compute-rankings/config.go
package computerankings

import (
	"time"

	"cinerank-workers/internal/common/config"
	"cinerank-workers/internal/rankings"
)

type Config struct {
	Timeout   time.Duration
	CastLimit int
	CacheTTL  time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		Timeout:   10 * time.Second,
		CastLimit: rankings.DefaultCastLimit,
		CacheTTL:  5 * time.Minute,
	}
	if cfg == nil {
		return c
	}
	if w, ok := cfg.Workers[TaskType]; ok && w.Timeout > 0 {
		c.Timeout = config.GetDuration(w.Timeout)
	}
	if cfg.Rankings.CastLimit > 0 {
		c.CastLimit = cfg.Rankings.CastLimit
	}
	if cfg.Rankings.CacheTTL > 0 {
		c.CacheTTL = time.Duration(cfg.Rankings.CacheTTL) * time.Second
	}
	return c
}
