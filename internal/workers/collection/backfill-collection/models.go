// internal/workers/collection/backfill-collection/models.go
package backfillcollection

type Input struct {
	PageSize int `json:"pageSize,omitempty"`
}

// Output reports one bounded slice of backfill work.
type Output struct {
	RunID        string `json:"runId"`
	Processed    int    `json:"processed"`
	Enriched     int    `json:"enriched"`
	Unavailable  int    `json:"unavailable"`
	Failed       int    `json:"failed"`
	Remaining    int    `json:"remaining"`
	HasMore      bool   `json:"hasMore"`
	StoppedEarly bool   `json:"stoppedEarly"`
	ElapsedMs    int64  `json:"elapsedMs"`
}

// PendingMovie is a movie row still waiting for metadata.
type PendingMovie struct {
	ID       string
	TMDBID   int64
	Title    string
	Director string
	Genres   []string
}
