// internal/workers/rankings/query-rankings/models.go
package queryrankings

import "cinerank-workers/internal/models"

type Input struct {
	UserID   string `json:"userId"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	MinCount int    `json:"minCount,omitempty"`
}

type Output struct {
	UserID   string               `json:"userId"`
	Category string               `json:"category,omitempty"`
	Stats    []models.RankingStat `json:"stats"`
	// Stored counts every persisted row for the user, across categories.
	Stored   int                  `json:"stored"`
}
