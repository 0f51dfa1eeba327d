// internal/workers/rankings/search-rankings/config.go
package searchrankings

import (
	"time"

	"cinerank-workers/internal/common/config"
)

type Config struct {
	Timeout     time.Duration
	Index       string
	DefaultSize int
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		Timeout:     5 * time.Second,
		Index:       "ranking-stats",
		DefaultSize: 20,
	}
	if cfg == nil {
		return c
	}
	if w, ok := cfg.Workers[TaskType]; ok && w.Timeout > 0 {
		c.Timeout = config.GetDuration(w.Timeout)
	}
	if cfg.Search.Index != "" {
		c.Index = cfg.Search.Index
	}
	return c
}
