package lessons

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLesson() *Lesson {
	now := time.Now().UTC()
	return &Lesson{
		ID:             "l1",
		Title:          "Use connection pooling",
		Category:       CategoryArchitecture,
		Description:    "Connection churn killed throughput under load.",
		Recommendation: "Pool database connections from day one.",
		Confidence:     0.7,
		Frequency:      1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestLesson_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Lesson)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Lesson) {}},
		{name: "empty title", mutate: func(l *Lesson) { l.Title = "  " }, wantErr: true},
		{name: "unknown category", mutate: func(l *Lesson) { l.Category = "vibes" }, wantErr: true},
		{name: "confidence too high", mutate: func(l *Lesson) { l.Confidence = 1.2 }, wantErr: true},
		{name: "confidence negative", mutate: func(l *Lesson) { l.Confidence = -0.1 }, wantErr: true},
		{name: "negative frequency", mutate: func(l *Lesson) { l.Frequency = -1 }, wantErr: true},
		{name: "negative upvotes", mutate: func(l *Lesson) { l.Upvotes = -1 }, wantErr: true},
		{name: "negative downvotes", mutate: func(l *Lesson) { l.Downvotes = -2 }, wantErr: true},
		{name: "workflow category", mutate: func(l *Lesson) { l.Category = CategoryWorkflow }},
		{name: "tooling category", mutate: func(l *Lesson) { l.Category = CategoryTooling }},
		{name: "testing category", mutate: func(l *Lesson) { l.Category = CategoryTesting }},
		{name: "deployment category", mutate: func(l *Lesson) { l.Category = CategoryDeployment }},
		{name: "boundary confidence", mutate: func(l *Lesson) { l.Confidence = 1.0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validLesson()
			tt.mutate(l)
			err := l.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLesson)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "use connection pooling", NormalizeTitle("  Use   Connection\tPooling "))
	assert.Equal(t, NormalizeTitle("USE CONNECTION POOLING"), NormalizeTitle("use connection pooling"))
	assert.Equal(t, "", NormalizeTitle("   "))
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.3))
	assert.Equal(t, 1.0, ClampConfidence(1.7))
	assert.Equal(t, 0.5, ClampConfidence(0.5))
}

func TestLesson_CloneIsDeep(t *testing.T) {
	l := validLesson()
	l.TechStacks = []string{"postgresql"}

	c := l.Clone()
	c.TechStacks[0] = "mongodb"
	c.Title = "changed"

	assert.Equal(t, "postgresql", l.TechStacks[0])
	assert.Equal(t, "Use connection pooling", l.Title)
}

func TestMemoryRepository_OptimisticConcurrency(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := t.Context()

	l := validLesson()
	require.NoError(t, repo.Insert(ctx, l))
	assert.Equal(t, 1, l.Version)

	first, err := repo.Get(ctx, l.ID)
	require.NoError(t, err)
	second, err := repo.Get(ctx, l.ID)
	require.NoError(t, err)

	first.Confidence = 0.8
	require.NoError(t, repo.Update(ctx, first))

	// The second copy now carries a stale version.
	second.Confidence = 0.6
	assert.ErrorIs(t, repo.Update(ctx, second), ErrVersionConflict)
}

func TestMemoryRepository_FindByNormalizedTitle(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := t.Context()

	l := validLesson()
	require.NoError(t, repo.Insert(ctx, l))

	found, err := repo.FindByNormalizedTitle(ctx, "use   connection pooling", CategoryArchitecture)
	require.Error(t, err) // the lookup key must itself be normalized

	found, err = repo.FindByNormalizedTitle(ctx, NormalizeTitle("USE Connection Pooling"), CategoryArchitecture)
	require.NoError(t, err)
	assert.Equal(t, l.ID, found.ID)

	_, err = repo.FindByNormalizedTitle(ctx, NormalizeTitle(l.Title), CategoryPitfall)
	assert.ErrorIs(t, err, ErrLessonNotFound)
}

func TestMemoryRepository_GetByTitle(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := t.Context()

	l := validLesson()
	require.NoError(t, repo.Insert(ctx, l))

	// Raw titles are normalized before matching, so casing and extra
	// whitespace are irrelevant.
	found, err := repo.GetByTitle(ctx, "  use   CONNECTION pooling ")
	require.NoError(t, err)
	assert.Equal(t, l.ID, found.ID)

	_, err = repo.GetByTitle(ctx, "Typo Title")
	assert.ErrorIs(t, err, ErrLessonNotFound)
}

func TestMemoryRepository_GetByTitlePrefersNewest(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := t.Context()

	older := validLesson()
	older.ID = "older"
	older.Category = CategoryPitfall
	older.UpdatedAt = older.UpdatedAt.Add(-time.Hour)
	require.NoError(t, repo.Insert(ctx, older))

	newer := validLesson()
	newer.ID = "newer"
	require.NoError(t, repo.Insert(ctx, newer))

	found, err := repo.GetByTitle(ctx, older.Title)
	require.NoError(t, err)
	assert.Equal(t, "newer", found.ID)
}
