package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectors(t *testing.T) {
	tests := []struct {
		name     string
		director string
		want     []string
	}{
		{"single", "Jane Doe", []string{"Jane Doe"}},
		{"split and trim", " A ,B", []string{"A", "B"}},
		{"blank parts dropped", "A, ,B,", []string{"A", "B"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MovieRecord{Director: tt.director}
			assert.Equal(t, tt.want, m.Directors())
		})
	}
}

func TestEffectiveGenres_FallsBackToTechnical(t *testing.T) {
	m := &MovieRecord{ExtendedData: &ExtendedData{Technical: &TechnicalData{Genres: []string{"Drama"}}}}
	assert.Equal(t, []string{"Drama"}, m.EffectiveGenres())

	m.Genres = []string{"Comedy"}
	assert.Equal(t, []string{"Comedy"}, m.EffectiveGenres())
}

func TestExtendedData_NilSafe(t *testing.T) {
	var e *ExtendedData
	assert.Nil(t, e.TechnicalGenres())
	assert.Empty(t, e.CrewName(CategoryMusic))
	assert.Empty(t, e.CrewPhoto("A", "Director"))
	assert.Nil(t, e.TopCast(20))
}

func TestParseExtendedData(t *testing.T) {
	ext, err := ParseExtendedData(nil)
	require.NoError(t, err)
	assert.Nil(t, ext)

	ext, err = ParseExtendedData([]byte(`null`))
	require.NoError(t, err)
	assert.Nil(t, ext)

	ext, err = ParseExtendedData([]byte(`{"crew":{"music":" Hans "},"crew_details":[{"name":"Hans","job":"Original Music Composer","photo":"/h.jpg"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Hans", ext.CrewName(CategoryMusic))
	assert.Equal(t, "/h.jpg", ext.CrewPhoto("Hans", "Original Music Composer"))
	assert.Empty(t, ext.CrewPhoto("Hans", "Director"))
	assert.Equal(t, "/h.jpg", ext.CrewPhoto("Hans", ""))

	ext, err = ParseExtendedData([]byte(`{"cast":"nope","crew":{"music":"Hans"}}`))
	assert.Error(t, err)
	require.NotNil(t, ext)
	assert.Empty(t, ext.Cast)
	assert.Equal(t, "Hans", ext.CrewName(CategoryMusic))

	_, err = ParseExtendedData([]byte(`["not","an","object"]`))
	assert.Error(t, err)
}

func TestParseExtendedData_MistypedFieldDropsOnlyItsSection(t *testing.T) {
	ext, err := ParseExtendedData([]byte(`{
		"technical": {"genres": ["Drama"], "runtime": "120 min"},
		"cast": [{"name": "Alan", "role": "Hero"}, {"name": 7}, {"name": "Beth", "role": "Sidekick"}],
		"crew": {"music": "Hans"},
		"crew_details": [{"name": "Hans", "job": "Original Music Composer", "photo": "/h.jpg"}]
	}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "technical.runtime")
	assert.Contains(t, err.Error(), "cast[1]")
	require.NotNil(t, ext)
	assert.Equal(t, []string{"Drama"}, ext.TechnicalGenres())
	assert.Nil(t, ext.Technical.Runtime)
	require.Len(t, ext.Cast, 2)
	assert.Equal(t, "Beth", ext.Cast[1].Name)
	assert.Equal(t, "Hans", ext.CrewName(CategoryMusic))
	assert.Equal(t, "/h.jpg", ext.CrewPhoto("Hans", ""))
}

func TestTopCast(t *testing.T) {
	cast := make([]CastMember, 25)
	e := &ExtendedData{Cast: cast}
	assert.Len(t, e.TopCast(20), 20)
	assert.Len(t, e.TopCast(0), 25)
}

func TestRankingCategory_IsValid(t *testing.T) {
	for _, c := range AllCategories {
		assert.True(t, c.IsValid())
	}
	assert.False(t, RankingCategory("studio").IsValid())
	assert.Len(t, CategoryNames(), 7)
}
