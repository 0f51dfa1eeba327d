// Package rankings aggregates a user's rated movies into per-category ranking statistics.
package rankings

import (
	"context"
	"strings"

	apperrors "cinerank-workers/internal/common/errors"
	"cinerank-workers/internal/models"
)

const (
	ScorePerMovie      = 10
	ScorePerRepeatRole = 2
	DefaultCastLimit   = 20
)

// Source reads a user's rated items. When category is non-empty only the
// fields that category needs are populated.
type Source interface {
	RatedItems(ctx context.Context, userID string, category models.RankingCategory) ([]models.RatedItem, error)
}

type Options struct {
	CastLimit int
}

// Engine computes rankings from an injected Source.
type Engine struct {
	source Source
	opts   Options
}

func NewEngine(source Source, opts Options) *Engine {
	if opts.CastLimit <= 0 {
		opts.CastLimit = DefaultCastLimit
	}
	return &Engine{source: source, opts: opts}
}

// ComputeRankings fetches the user's rated items and aggregates them. An empty
// category means every category. Source failures are fatal and no partial result is returned.
func (e *Engine) ComputeRankings(ctx context.Context, userID string, category models.RankingCategory) ([]models.RankingStat, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewValidationError("userId is required")
	}
	if category != "" && !category.IsValid() {
		return nil, apperrors.NewInvalidCategoryError(string(category))
	}

	items, err := e.source.RatedItems(ctx, userID, category)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeSourceFetchFailed) {
			return nil, err
		}
		return nil, apperrors.NewSourceFetchError(userID, err)
	}

	return Aggregate(items, category, e.opts), nil
}

// bucketSet keeps stats for one category in first-seen order.
type bucketSet struct {
	index map[string]int
	stats []models.RankingStat
}

func (b *bucketSet) get(category models.RankingCategory, key string) *models.RankingStat {
	if i, ok := b.index[key]; ok {
		return &b.stats[i]
	}
	b.index[key] = len(b.stats)
	b.stats = append(b.stats, models.RankingStat{
		Type: category,
		Key:  key,
		Data: models.StatData{Movies: []models.MovieSummary{}},
	})
	return &b.stats[len(b.stats)-1]
}

// Aggregate is the pure fold over rated items. Items with rating below 1 or
// without a movie contribute nothing.
func Aggregate(items []models.RatedItem, category models.RankingCategory, opts Options) []models.RankingStat {
	if opts.CastLimit <= 0 {
		opts.CastLimit = DefaultCastLimit
	}

	categories := models.AllCategories
	if category != "" {
		categories = []models.RankingCategory{category}
	}

	buckets := make(map[models.RankingCategory]*bucketSet, len(categories))
	for _, c := range categories {
		buckets[c] = &bucketSet{index: make(map[string]int)}
	}

	for _, item := range items {
		if item.Rating < 1 || item.Movie == nil {
			continue
		}
		summary := item.Movie.Summary(item.Rating)

		for _, c := range categories {
			extract, ok := extractors[c]
			if !ok {
				continue
			}
			for _, contrib := range extract(item.Movie, opts) {
				stat := buckets[c].get(c, contrib.Key)
				stat.Count++
				stat.Score += ScorePerMovie
				stat.Data.Movies = append(stat.Data.Movies, summary)
				if stat.Data.ImageURL == "" && contrib.Photo != "" {
					stat.Data.ImageURL = contrib.Photo
				}
				if contrib.Role != nil {
					stat.Data.Roles = append(stat.Data.Roles, models.ActorRole{
						Role:   *contrib.Role,
						Movies: []string{item.Movie.Title},
					})
				}
			}
		}
	}

	var out []models.RankingStat
	for _, c := range categories {
		finalize := finalizers[c]
		for i := range buckets[c].stats {
			if finalize != nil {
				finalize(&buckets[c].stats[i])
			}
		}
		out = append(out, buckets[c].stats...)
	}
	if out == nil {
		out = []models.RankingStat{}
	}
	return out
}
