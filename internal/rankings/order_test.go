package rankings

import (
	"testing"

	"cinerank-workers/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestSortStats(t *testing.T) {
	stats := []models.RankingStat{
		{Key: "b", Count: 1, Score: 10},
		{Key: "c", Count: 3, Score: 22},
		{Key: "a", Count: 1, Score: 10},
		{Key: "d", Count: 2, Score: 22},
	}

	SortStats(stats)

	var keys []string
	for _, s := range stats {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"c", "d", "a", "b"}, keys)
}

func TestTop(t *testing.T) {
	stats := make([]models.RankingStat, 5)

	assert.Len(t, Top(stats, 0), 5)
	assert.Len(t, Top(stats, 2), 2)
	assert.Len(t, Top(stats, 10), 5)
}
