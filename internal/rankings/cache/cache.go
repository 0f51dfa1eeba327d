// internal/rankings/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cinerank-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rankings:live:"

// RankingsCache stores live aggregation results per (user, category).
type RankingsCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func New(client *redis.Client, ttl time.Duration) *RankingsCache {
	return &RankingsCache{redis: client, ttl: ttl}
}

// Key builds the cache key. An empty category is stored under "all".
func Key(userID string, category models.RankingCategory) string {
	c := string(category)
	if c == "" {
		c = "all"
	}
	return keyPrefix + userID + ":" + c
}

// Get returns (nil, false, nil) on a miss.
func (c *RankingsCache) Get(ctx context.Context, userID string, category models.RankingCategory) ([]models.RankingStat, bool, error) {
	val, err := c.redis.Get(ctx, Key(userID, category)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var stats []models.RankingStat
	if err := json.Unmarshal(val, &stats); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return stats, true, nil
}

func (c *RankingsCache) Set(ctx context.Context, userID string, category models.RankingCategory, stats []models.RankingStat) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.redis.Set(ctx, Key(userID, category), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops every cached view of the user's rankings. Keys are
// deleted by exact name, so user IDs are never read as a match pattern.
func (c *RankingsCache) Invalidate(ctx context.Context, userID string) error {
	keys := make([]string, 0, len(models.AllCategories)+1)
	keys = append(keys, Key(userID, ""))
	for _, category := range models.AllCategories {
		keys = append(keys, Key(userID, category))
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
