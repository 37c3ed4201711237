package metalearn

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/playbookd/internal/lessons"
	"github.com/fyrsmithlabs/playbookd/internal/session"
)

// memoryLedger is an in-memory OutcomeLedger for tests.
type memoryLedger struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{seen: make(map[string]bool)}
}

func (m *memoryLedger) Record(_ context.Context, o *session.OutcomeRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[o.ProjectID] {
		return false, nil
	}
	m.seen[o.ProjectID] = true
	return true, nil
}

func testSession(id string) *session.Session {
	return &session.Session{
		ID:          id,
		Objective:   "Build a SaaS dashboard",
		ProjectType: session.ProjectTypeSaaS,
		TechStack: session.TechStack{
			Frontend: "react",
			Backend:  "fastapi",
			Database: "postgresql",
		},
		CurrentPhase: session.PhaseCompleted,
	}
}

func testOutcome(projectID string, score float64) *session.OutcomeRecord {
	return &session.OutcomeRecord{
		ProjectID:    projectID,
		SuccessScore: score,
		WhatWorked:   []string{"Writing tests before features paid off"},
		WhatDidntWork: []string{
			"Splitting into microservices too early",
		},
	}
}

func TestExtractor_CreatesLessons(t *testing.T) {
	repo := lessons.NewMemoryRepository()
	ex, err := NewExtractor(repo, newMemoryLedger(), nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ex.CaptureOutcome(ctx, testSession("p1"), testOutcome("p1", 0.9)))

	all, err := repo.List(ctx, lessons.ListFilter{})
	require.NoError(t, err)
	// One per note plus the stack lesson for the successful project.
	require.Len(t, all, 3)

	byCategory := make(map[lessons.Category]*lessons.Lesson)
	for _, l := range all {
		byCategory[l.Category] = l
	}
	require.Contains(t, byCategory, lessons.CategoryTesting)
	require.Contains(t, byCategory, lessons.CategoryPitfall)
	require.Contains(t, byCategory, lessons.CategoryTechStack)

	pitfall := byCategory[lessons.CategoryPitfall]
	assert.Contains(t, pitfall.Recommendation, "Avoid:")
	assert.Equal(t, "Building saas applications", pitfall.Context)
	assert.Equal(t, []string{"p1"}, pitfall.SourceProjects)
	assert.InDelta(t, 0.9, pitfall.Confidence, 1e-9)

	stack := byCategory[lessons.CategoryTechStack]
	assert.ElementsMatch(t, []string{"react", "fastapi", "postgresql"}, stack.TechStacks)
	assert.Equal(t, []string{"saas"}, stack.ProjectTypes)
}

func TestExtractor_ExactlyOncePerProject(t *testing.T) {
	repo := lessons.NewMemoryRepository()
	ex, err := NewExtractor(repo, newMemoryLedger(), nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	sess := testSession("p1")
	outcome := testOutcome("p1", 0.9)
	require.NoError(t, ex.CaptureOutcome(ctx, sess, outcome))
	// A retried delivery of the same outcome changes nothing.
	require.NoError(t, ex.CaptureOutcome(ctx, sess, outcome))

	all, err := repo.List(ctx, lessons.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, l := range all {
		assert.Equal(t, 1, l.Frequency, l.Title)
	}
}

func TestExtractor_ReinforcesNearDuplicates(t *testing.T) {
	repo := lessons.NewMemoryRepository()
	ex, err := NewExtractor(repo, newMemoryLedger(), nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	// Distinct projects reporting the same note reinforce one lesson.
	require.NoError(t, ex.CaptureOutcome(ctx, testSession("p1"), testOutcome("p1", 0.9)))
	require.NoError(t, ex.CaptureOutcome(ctx, testSession("p2"), testOutcome("p2", 0.9)))

	found, err := repo.FindByNormalizedTitle(ctx,
		lessons.NormalizeTitle("Writing tests before features paid off"), lessons.CategoryTesting)
	require.NoError(t, err)
	assert.Equal(t, 2, found.Frequency)
	assert.InDelta(t, 0.95, found.Confidence, 1e-9)
	assert.ElementsMatch(t, []string{"p1", "p2"}, found.SourceProjects)
}

func TestExtractor_ReinforcementClampsAtOne(t *testing.T) {
	repo := lessons.NewMemoryRepository()
	ex, err := NewExtractor(repo, newMemoryLedger(), nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	outcome := func(id string) *session.OutcomeRecord {
		return &session.OutcomeRecord{
			ProjectID:    id,
			SuccessScore: 0.78,
			WhatWorked:   []string{"Writing tests before features paid off"},
		}
	}

	require.NoError(t, ex.CaptureOutcome(ctx, testSession("p0"), outcome("p0")))
	// Five reinforcements: 0.78 + 5*0.05 clamps to 1.0.
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		require.NoError(t, ex.CaptureOutcome(ctx, testSession(id), outcome(id)))
	}

	found, err := repo.FindByNormalizedTitle(ctx,
		lessons.NormalizeTitle("Writing tests before features paid off"), lessons.CategoryTesting)
	require.NoError(t, err)
	assert.Equal(t, 1.0, found.Confidence)
	assert.Equal(t, 6, found.Frequency)
}

func TestExtractor_LowScoreSkipsStackLesson(t *testing.T) {
	repo := lessons.NewMemoryRepository()
	ex, err := NewExtractor(repo, newMemoryLedger(), nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ex.CaptureOutcome(ctx, testSession("p1"), testOutcome("p1", 0.4)))

	stacks, err := repo.List(ctx, lessons.ListFilter{
		Categories: []lessons.Category{lessons.CategoryTechStack},
	})
	require.NoError(t, err)
	assert.Empty(t, stacks)
}

func TestExtractor_ConfidenceFloorForFailedProjects(t *testing.T) {
	repo := lessons.NewMemoryRepository()
	ex, err := NewExtractor(repo, newMemoryLedger(), nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ex.CaptureOutcome(ctx, testSession("p1"), testOutcome("p1", 0.1)))

	all, err := repo.List(ctx, lessons.ListFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, all)
	for _, l := range all {
		assert.GreaterOrEqual(t, l.Confidence, 0.3, l.Title)
	}
}
