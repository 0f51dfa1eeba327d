// internal/workers/rankings/search-rankings/models.go
package searchrankings

import "cinerank-workers/internal/models"

type Input struct {
	UserID   string `json:"userId"`
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	Size     int    `json:"size,omitempty"`
}

type Output struct {
	Stats     []models.RankingStat `json:"stats"`
	TotalHits int64                `json:"totalHits"`
	Took      int64                `json:"took"`
}
