// internal/rankings/queries/store.go
package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cinerank-workers/internal/models"
)

const statColumns = 7

// StatRow is the persisted shape of a RankingStat.
type StatRow struct {
	UserID    string
	Type      models.RankingCategory
	Key       string
	Count     int
	Score     int
	Data      models.StatData
	UpdatedAt time.Time
}

// RowsFromStats stamps every stat of a run with the same user and timestamp.
func RowsFromStats(userID string, stats []models.RankingStat, now time.Time) []StatRow {
	rows := make([]StatRow, len(stats))
	for i, s := range stats {
		rows[i] = StatRow{
			UserID:    userID,
			Type:      s.Type,
			Key:       s.Key,
			Count:     s.Count,
			Score:     s.Score,
			Data:      s.Data,
			UpdatedAt: now,
		}
	}
	return rows
}

// ListFilter narrows ListStats. Zero values mean no restriction.
type ListFilter struct {
	UserID   string
	Category models.RankingCategory
	MinCount int
	Limit    int
}

// StatsStore persists ranking statistics keyed by (user_id, type, key).
type StatsStore struct {
	db *sql.DB
}

func NewStatsStore(db *sql.DB) *StatsStore {
	return &StatsStore{db: db}
}

// UpsertStats writes rows in a single statement. Later writes for the same key win.
func (s *StatsStore) UpsertStats(ctx context.Context, rows []StatRow) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ranking_stats (user_id, type, key, count, score, data, updated_at) VALUES ")
	args := make([]interface{}, 0, len(rows)*statColumns)
	for i, r := range rows {
		data, err := json.Marshal(r.Data)
		if err != nil {
			return fmt.Errorf("marshal stat data %s/%s: %w", r.Type, r.Key, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * statColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, r.UserID, string(r.Type), r.Key, r.Count, r.Score, data, r.UpdatedAt)
	}
	sb.WriteString(` ON CONFLICT (user_id, type, key) DO UPDATE SET
	count = EXCLUDED.count,
	score = EXCLUDED.score,
	data = EXCLUDED.data,
	updated_at = EXCLUDED.updated_at`)

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("upsert ranking stats: %w", err)
	}
	return nil
}

// DeleteStaleStats removes the user's rows not refreshed since before.
func (s *StatsStore) DeleteStaleStats(ctx context.Context, userID string, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ranking_stats WHERE user_id = $1 AND updated_at < $2`, userID, before)
	if err != nil {
		return 0, fmt.Errorf("delete stale stats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete stale stats: %w", err)
	}
	return n, nil
}

func (s *StatsStore) CountStats(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ranking_stats WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stats: %w", err)
	}
	return n, nil
}

// ListStats returns persisted stats ordered by score, then count, then key.
func (s *StatsStore) ListStats(ctx context.Context, f ListFilter) ([]models.RankingStat, error) {
	var limit interface{}
	if f.Limit > 0 {
		limit = f.Limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, key, count, score, data
		FROM ranking_stats
		WHERE user_id = $1 AND ($2 = '' OR type = $2) AND count >= $3
		ORDER BY score DESC, count DESC, key ASC
		LIMIT $4`, f.UserID, string(f.Category), f.MinCount, limit)
	if err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	defer rows.Close()

	stats := []models.RankingStat{}
	for rows.Next() {
		var (
			stat models.RankingStat
			typ  string
			data []byte
		)
		if err := rows.Scan(&typ, &stat.Key, &stat.Count, &stat.Score, &data); err != nil {
			return nil, fmt.Errorf("scan stat: %w", err)
		}
		stat.Type = models.RankingCategory(typ)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &stat.Data); err != nil {
				return nil, fmt.Errorf("decode stat data %s/%s: %w", typ, stat.Key, err)
			}
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}
