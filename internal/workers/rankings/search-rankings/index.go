// internal/workers/rankings/search-rankings/index.go
package searchrankings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "cinerank-workers/internal/common/errors"
	"cinerank-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// IndexMapping is applied when the stats index does not exist yet.
const IndexMapping = `{
  "mappings": {
    "properties": {
      "userId":   {"type": "keyword"},
      "type":     {"type": "keyword"},
      "key":      {"type": "keyword"},
      "count":    {"type": "integer"},
      "score":    {"type": "integer"},
      "imageUrl": {"type": "keyword", "index": false},
      "data":     {"type": "object", "enabled": false}
    }
  }
}`

// StatDocument is the indexed form of a persisted ranking stat.
type StatDocument struct {
	UserID   string                 `json:"userId"`
	Type     models.RankingCategory `json:"type"`
	Key      string                 `json:"key"`
	Count    int                    `json:"count"`
	Score    int                    `json:"score"`
	ImageURL string                 `json:"imageUrl,omitempty"`
	Data     models.StatData        `json:"data"`
}

func DocumentID(userID string, category models.RankingCategory, key string) string {
	return userID + ":" + string(category) + ":" + key
}

type Index struct {
	client *elasticsearch.Client
	name   string
}

func NewIndex(client *elasticsearch.Client, name string) *Index {
	return &Index{client: client, name: name}
}

func (ix *Index) Name() string {
	return ix.name
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// IndexStats mirrors one recalculation's stats. Documents are keyed by
// user, type and key so a later run overwrites them in place.
func (ix *Index) IndexStats(ctx context.Context, userID string, stats []models.RankingStat) error {
	if len(stats) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, s := range stats {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_id": DocumentID(userID, s.Type, s.Key)},
		}
		doc := StatDocument{
			UserID:   userID,
			Type:     s.Type,
			Key:      s.Key,
			Count:    s.Count,
			Score:    s.Score,
			ImageURL: s.Data.ImageURL,
			Data:     s.Data,
		}
		if err := enc.Encode(meta); err != nil {
			return apperrors.NewSearchIndexError(ix.name, err)
		}
		if err := enc.Encode(doc); err != nil {
			return apperrors.NewSearchIndexError(ix.name, err)
		}
	}

	req := esapi.BulkRequest{
		Index: ix.name,
		Body:  &body,
	}
	res, err := req.Do(ctx, ix.client)
	if err != nil {
		return apperrors.NewSearchIndexError(ix.name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.NewSearchIndexError(ix.name, fmt.Errorf("bulk request failed: %s", res.Status()))
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return apperrors.NewSearchIndexError(ix.name, fmt.Errorf("decode bulk response: %w", err))
	}
	if !br.Errors {
		return nil
	}

	var failed []string
	for _, item := range br.Items {
		for _, op := range item {
			if op.Error != nil {
				failed = append(failed, fmt.Sprintf("%s: %s", op.ID, op.Error.Reason))
			}
		}
	}
	return apperrors.NewSearchIndexError(ix.name, fmt.Errorf("%d documents rejected: %s",
		len(failed), strings.Join(failed, "; "))).WithMetadata("rejected", len(failed))
}

// Query is a name search over one user's mirrored stats.
type Query struct {
	UserID   string
	Prefix   string
	Category models.RankingCategory
	Size     int
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source StatDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func buildSearchBody(q Query) map[string]interface{} {
	filters := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"userId": q.UserID}},
	}
	if q.Category != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"type": string(q.Category)},
		})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filters,
				"must": []interface{}{
					map[string]interface{}{
						"prefix": map[string]interface{}{
							"key": map[string]interface{}{
								"value":            q.Prefix,
								"case_insensitive": true,
							},
						},
					},
				},
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"score": "desc"},
			map[string]interface{}{"count": "desc"},
			map[string]interface{}{"key": "asc"},
		},
	}
}

// Search returns matching stats ordered like the persisted view, plus the total hit count.
func (ix *Index) Search(ctx context.Context, q Query) ([]models.RankingStat, int64, error) {
	body, err := json.Marshal(buildSearchBody(q))
	if err != nil {
		return nil, 0, apperrors.NewSearchQueryError(ix.name, err)
	}

	size := q.Size
	req := esapi.SearchRequest{
		Index: []string{ix.name},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}
	res, err := req.Do(ctx, ix.client)
	if err != nil {
		return nil, 0, apperrors.NewSearchQueryError(ix.name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, apperrors.NewSearchQueryError(ix.name, fmt.Errorf("search failed: %s", res.Status()))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, 0, apperrors.NewSearchQueryError(ix.name, fmt.Errorf("decode search response: %w", err))
	}

	stats := make([]models.RankingStat, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		d := hit.Source
		stats = append(stats, models.RankingStat{Type: d.Type, Key: d.Key, Count: d.Count, Score: d.Score, Data: d.Data})
	}
	return stats, sr.Hits.Total.Value, nil
}
