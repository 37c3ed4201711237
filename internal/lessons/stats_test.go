package lessons

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStats(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	stats, err := ComputeStats(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0.0, stats.AvgConfidence)

	for _, tc := range []struct {
		id       string
		category Category
		conf     float64
		freq     int
	}{
		{"a", CategoryArchitecture, 0.8, 1},
		{"b", CategoryArchitecture, 0.6, 4},
		{"c", CategoryPitfall, 0.4, 2},
	} {
		l := validLesson()
		l.ID = tc.id
		l.Title = "lesson " + tc.id
		l.Category = tc.category
		l.Confidence = tc.conf
		l.Frequency = tc.freq
		require.NoError(t, repo.Insert(ctx, l))
	}

	stats, err = ComputeStats(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByCategory[CategoryArchitecture])
	assert.Equal(t, 1, stats.ByCategory[CategoryPitfall])
	assert.InDelta(t, 0.6, stats.AvgConfidence, 1e-9)
	assert.Equal(t, 1, stats.HighFrequency)
	assert.Equal(t, []string{"lesson c"}, stats.LowConfidenceTitles)
	assert.Empty(t, stats.DuplicateTitles)
	require.NotEmpty(t, stats.TopByFrequency)
	assert.Equal(t, TopLesson{Title: "lesson b", Frequency: 4}, stats.TopByFrequency[0])
}

func TestComputeStats_FlagsDuplicateTitles(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first := validLesson()
	first.ID = "d1"
	require.NoError(t, repo.Insert(ctx, first))

	second := validLesson()
	second.ID = "d2"
	second.Title = "USE   Connection Pooling"
	second.Category = CategoryPitfall
	require.NoError(t, repo.Insert(ctx, second))

	stats, err := ComputeStats(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, []string{"use connection pooling"}, stats.DuplicateTitles)
}
