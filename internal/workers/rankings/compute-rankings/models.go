// internal/workers/rankings/compute-rankings/models.go
package computerankings

import "cinerank-workers/internal/models"

type Input struct {
	UserID   string `json:"userId"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type Output struct {
	UserID   string               `json:"userId"`
	Category string               `json:"category,omitempty"`
	Stats    []models.RankingStat `json:"stats"`
	Total    int                  `json:"total"`
	Cached   bool                 `json:"cached"`
}
