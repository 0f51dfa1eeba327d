// internal/workers/rankings/recalc-stats/models.go
package recalcstats

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	RunID     string `json:"runId"`
	UserID    string `json:"userId"`
	Count     int    `json:"count"`
	ElapsedMs int64  `json:"elapsedMs"`
	Batches   int    `json:"batches"`
	Pruned    int64  `json:"pruned"`
}
