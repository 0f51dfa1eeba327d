package rankings

import (
	"sort"

	"cinerank-workers/internal/models"
)

// SortStats orders stats by score desc, count desc, key asc.
func SortStats(stats []models.RankingStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Key < b.Key
	})
}

// Top returns at most limit leading stats. limit <= 0 returns all of them.
func Top(stats []models.RankingStat, limit int) []models.RankingStat {
	if limit <= 0 || limit >= len(stats) {
		return stats
	}
	return stats[:limit]
}
