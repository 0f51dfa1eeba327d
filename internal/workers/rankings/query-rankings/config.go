// internal/workers/rankings/query-rankings/config.go
package queryrankings

import (
	"time"

	"cinerank-workers/internal/common/config"
)

type Config struct {
	Timeout      time.Duration
	DefaultLimit int
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		Timeout:      5 * time.Second,
		DefaultLimit: 50,
	}
	if cfg == nil {
		return c
	}
	if w, ok := cfg.Workers[TaskType]; ok && w.Timeout > 0 {
		c.Timeout = config.GetDuration(w.Timeout)
	}
	return c
}
