package metalearn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/playbookd/internal/lessons"
	"github.com/fyrsmithlabs/playbookd/internal/session"
)

func seedStackLesson(t *testing.T, repo lessons.Repository, id string, types, stacks []string, conf float64, freq int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, repo.Insert(context.Background(), &lessons.Lesson{
		ID:           id,
		Title:        "stack " + id,
		Category:     lessons.CategoryTechStack,
		Confidence:   conf,
		Frequency:    freq,
		ProjectTypes: types,
		TechStacks:   stacks,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
}

func TestRecommender_SuggestStack(t *testing.T) {
	repo := lessons.NewMemoryRepository()
	// Two saas stacks vouch for postgresql, one for mongodb.
	seedStackLesson(t, repo, "a", []string{"saas"}, []string{"react", "fastapi", "postgresql"}, 0.8, 3)
	seedStackLesson(t, repo, "b", []string{"saas"}, []string{"nextjs", "express", "postgresql"}, 0.5, 2)
	seedStackLesson(t, repo, "c", []string{"saas"}, []string{"vue", "django", "mongodb"}, 0.9, 1)
	// An api-only lesson must not leak into saas suggestions.
	seedStackLesson(t, repo, "d", []string{"api"}, []string{"flask", "sqlite"}, 1.0, 9)

	r, err := NewRecommender(repo)
	require.NoError(t, err)

	got, err := r.SuggestStack(context.Background(), "saas")
	require.NoError(t, err)
	assert.Equal(t, "saas", got.ProjectType)
	assert.Equal(t, 3, got.SampleSize)

	dbs := got.Layers[session.LayerDatabase]
	require.NotEmpty(t, dbs)
	// postgresql: 0.8*3 + 0.5*2 = 3.4; mongodb: 0.9*1 = 0.9.
	assert.Equal(t, "postgresql", dbs[0].Technology)
	assert.InDelta(t, 3.4, dbs[0].Weight, 1e-9)
	assert.Equal(t, "mongodb", dbs[1].Technology)

	// No sqlite or flask anywhere in the saas suggestion.
	for _, ranked := range got.Layers {
		for _, rt := range ranked {
			assert.NotEqual(t, "sqlite", rt.Technology)
			assert.NotEqual(t, "flask", rt.Technology)
		}
	}
}

func TestRecommender_UnknownTechGoesToOther(t *testing.T) {
	repo := lessons.NewMemoryRepository()
	seedStackLesson(t, repo, "a", nil, []string{"kafka"}, 0.6, 1)

	r, err := NewRecommender(repo)
	require.NoError(t, err)

	got, err := r.SuggestStack(context.Background(), "saas")
	require.NoError(t, err)
	require.Len(t, got.Layers["other"], 1)
	assert.Equal(t, "kafka", got.Layers["other"][0].Technology)
}

func TestRecommender_EmptyRepository(t *testing.T) {
	r, err := NewRecommender(lessons.NewMemoryRepository())
	require.NoError(t, err)

	got, err := r.SuggestStack(context.Background(), "saas")
	require.NoError(t, err)
	assert.Zero(t, got.SampleSize)
	assert.Empty(t, got.Layers)
}
