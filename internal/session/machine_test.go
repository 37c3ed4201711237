package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := NewMachine(NewMemoryStore(), Config{}, nil)
	require.NoError(t, err)
	return m
}

// answerDiscovery walks a session through the full discovery script.
func answerDiscovery(t *testing.T, m *Machine, id string) *Session {
	t.Helper()
	ctx := context.Background()
	answers := []string{"1", "1", "1", "1", "1"}
	var (
		s   *Session
		err error
	)
	for _, a := range answers {
		s, err = m.Answer(ctx, id, a)
		require.NoError(t, err)
	}
	return s
}

func TestMachine_Start(t *testing.T) {
	m := newTestMachine(t)

	s, err := m.Start(context.Background(), "Build a todo app", "")
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, PhaseDiscovery, s.CurrentPhase)
	assert.Equal(t, ModeSupervised, s.Mode)
	require.NotNil(t, s.PendingQuestion)
	assert.Equal(t, 0, s.PendingQuestion.Index)
}

func TestMachine_Start_EmptyObjective(t *testing.T) {
	m := newTestMachine(t)

	_, err := m.Start(context.Background(), "   ", "")
	assert.ErrorIs(t, err, ErrEmptyObjective)
}

func TestMachine_Start_InvalidMode(t *testing.T) {
	m := newTestMachine(t)

	_, err := m.Start(context.Background(), "Build something", "yolo")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestMachine_DiscoveryScript(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	s, err := m.Start(ctx, "Build a SaaS dashboard", "supervised")
	require.NoError(t, err)

	// Numbered options resolve to canonical values.
	s, err = m.Answer(ctx, s.ID, "1")
	require.NoError(t, err)
	assert.Equal(t, ProjectTypeSaaS, s.ProjectType)
	require.NotNil(t, s.PendingQuestion)
	assert.Equal(t, 1, s.PendingQuestion.Index)

	s, err = m.Answer(ctx, s.ID, "2")
	require.NoError(t, err)
	assert.Equal(t, ScaleGrowth, s.Scale)

	// Free-text answers are accepted verbatim.
	s, err = m.Answer(ctx, s.ID, "Svelte")
	require.NoError(t, err)
	assert.Equal(t, "svelte", s.TechStack.Frontend)

	s, err = m.Answer(ctx, s.ID, "1")
	require.NoError(t, err)
	assert.Equal(t, "fastapi", s.TechStack.Backend)

	// The final answer advances into planning automatically.
	s, err = m.Answer(ctx, s.ID, "1")
	require.NoError(t, err)
	assert.Equal(t, PhasePlanning, s.CurrentPhase)
	assert.True(t, s.TechStack.Resolved())
	assert.Len(t, s.Answers, 5)
}

func TestMachine_AnswerWithoutPendingQuestion(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	s, err := m.Start(ctx, "Build an API", "")
	require.NoError(t, err)
	answerDiscovery(t, m, s.ID)

	// Advance planning -> roadmap -> implementation, finish all features,
	// land in deployment where no question is pending.
	s, err = m.Answer(ctx, s.ID, "continue")
	require.NoError(t, err)
	assert.Equal(t, PhaseRoadmap, s.CurrentPhase)
	s, err = m.Answer(ctx, s.ID, "continue")
	require.NoError(t, err)
	assert.Equal(t, PhaseImplementation, s.CurrentPhase)
	s, err = m.Answer(ctx, s.ID, "done")
	require.NoError(t, err)
	assert.Equal(t, PhaseDeployment, s.CurrentPhase)

	_, err = m.Answer(ctx, s.ID, "anything")
	assert.ErrorIs(t, err, ErrNoPendingQuestion)
}

func TestMachine_AdvanceRequiresPreconditions(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	s, err := m.Start(ctx, "Build an agent", "")
	require.NoError(t, err)

	_, err = m.AdvancePhase(ctx, s.ID)
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseDiscovery, pe.Phase)
	assert.NotEmpty(t, pe.Missing)

	// The failed advance must not have moved the session.
	s, err = m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseDiscovery, s.CurrentPhase)
}

func TestMachine_PhasesAreMonotonic(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	s, err := m.Start(ctx, "Build a platform", "")
	require.NoError(t, err)
	answerDiscovery(t, m, s.ID)

	visited := []Phase{PhaseDiscovery, PhasePlanning}
	for {
		s, err = m.Get(ctx, s.ID)
		require.NoError(t, err)
		if s.CurrentPhase == PhaseDeployment {
			break
		}
		next, err := m.Answer(ctx, s.ID, gateAnswer(s.CurrentPhase))
		require.NoError(t, err)
		if next.CurrentPhase != s.CurrentPhase {
			visited = append(visited, next.CurrentPhase)
		}
	}
	// Every visited phase index is strictly greater than the previous.
	for i := 1; i < len(visited); i++ {
		assert.Greater(t, visited[i].Index(), visited[i-1].Index())
	}

	// Advancing out of deployment is not allowed; only completion ends it.
	_, err = m.AdvancePhase(ctx, s.ID)
	assert.ErrorIs(t, err, ErrInvalidPhaseTransition)
}

func gateAnswer(p Phase) string {
	if p == PhaseImplementation {
		return "done"
	}
	return "continue"
}

func TestMachine_ImplementationFeatureCursor(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	s, err := m.Start(ctx, "Build a SaaS", "")
	require.NoError(t, err)
	answerDiscovery(t, m, s.ID)

	s, err = m.Answer(ctx, s.ID, "continue") // planning -> roadmap
	require.NoError(t, err)
	require.NotEmpty(t, s.Features)
	total := len(s.Features)

	s, err = m.Answer(ctx, s.ID, "continue") // roadmap -> implementation
	require.NoError(t, err)
	assert.Equal(t, FeatureInProgress, s.Features[0].Status)

	s, err = m.Answer(ctx, s.ID, "next")
	require.NoError(t, err)
	assert.Equal(t, FeatureCompleted, s.Features[0].Status)
	assert.Equal(t, 1, s.CurrentFeature)

	s, err = m.Answer(ctx, s.ID, "skip")
	require.NoError(t, err)
	assert.Equal(t, FeatureSkipped, s.Features[1].Status)

	for i := 2; i < total; i++ {
		s, err = m.Answer(ctx, s.ID, "next")
		require.NoError(t, err)
	}
	assert.Equal(t, PhaseDeployment, s.CurrentPhase)
}

func TestMachine_Reopen(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	s, err := m.Start(ctx, "Build an API", "")
	require.NoError(t, err)

	// Reopening discovery is invalid.
	_, err = m.ReopenPhase(ctx, s.ID)
	assert.ErrorIs(t, err, ErrAtFirstPhase)

	answerDiscovery(t, m, s.ID)

	s, err = m.ReopenPhase(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseDiscovery, s.CurrentPhase)

	// Advancing again works since discovery answers survived the reopen.
	s, err = m.AdvancePhase(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, PhasePlanning, s.CurrentPhase)
}

// countingSource records checkpoint queries so tests can observe
// retrieval behavior.
type countingSource struct {
	mu     sync.Mutex
	phases []string
	refs   []LessonRef
	err    error
}

func (c *countingSource) LessonsForPhase(_ context.Context, _ string, _ []string, phase string, _ int) ([]LessonRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phases = append(c.phases, phase)
	return c.refs, c.err
}

func TestMachine_ReopenReRunsRetrieval(t *testing.T) {
	m := newTestMachine(t)
	src := &countingSource{refs: []LessonRef{{LessonID: "l1", Title: "Use migrations", Relevance: 0.9}}}
	m.SetKnowledgeSource(src)
	ctx := context.Background()

	s, err := m.Start(ctx, "Build a SaaS", "")
	require.NoError(t, err)
	s = answerDiscovery(t, m, s.ID)
	require.Equal(t, []string{"planning"}, src.phases)
	assert.Len(t, s.PhaseLessons[PhasePlanning], 1)

	_, err = m.ReopenPhase(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"planning", "discovery"}, src.phases)
}

func TestMachine_RetrievalFailureDoesNotBlockAdvance(t *testing.T) {
	m := newTestMachine(t)
	m.SetKnowledgeSource(&countingSource{err: errors.New("backend down")})
	ctx := context.Background()

	s, err := m.Start(ctx, "Build a SaaS", "")
	require.NoError(t, err)
	s = answerDiscovery(t, m, s.ID)

	assert.Equal(t, PhasePlanning, s.CurrentPhase)
	assert.Empty(t, s.PhaseLessons[PhasePlanning])
}

// recordingSink captures outcome deliveries.
type recordingSink struct {
	mu       sync.Mutex
	outcomes []*OutcomeRecord
	done     chan struct{}
}

func (r *recordingSink) CaptureOutcome(_ context.Context, _ *Session, o *OutcomeRecord) error {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
	select {
	case r.done <- struct{}{}:
	default:
	}
	return nil
}

func TestMachine_CompleteIsIdempotent(t *testing.T) {
	m := newTestMachine(t)
	sink := &recordingSink{done: make(chan struct{}, 2)}
	m.SetCompletionSink(sink)
	ctx := context.Background()

	s, err := m.Start(ctx, "Build a SaaS", "")
	require.NoError(t, err)
	answerDiscovery(t, m, s.ID)

	s, err = m.Complete(ctx, s.ID, &OutcomeRecord{Rating: 4, WhatWorked: []string{"good tests"}})
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, s.CurrentPhase)
	require.NotNil(t, s.Outcome)
	assert.InDelta(t, 0.8, s.Outcome.SuccessScore, 0.001)
	<-sink.done

	// A second completion is a no-op that returns the existing state and
	// does not re-deliver the outcome.
	again, err := m.Complete(ctx, s.ID, &OutcomeRecord{Rating: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, again.Outcome.Rating)
	m.Close()
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.outcomes, 1)
}

func TestMachine_CompleteReleasesSessionLock(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	s, err := m.Start(ctx, "Build a SaaS", "")
	require.NoError(t, err)
	answerDiscovery(t, m, s.ID)

	m.mu.Lock()
	_, held := m.locks[s.ID]
	m.mu.Unlock()
	assert.True(t, held)

	_, err = m.Complete(ctx, s.ID, nil)
	require.NoError(t, err)

	// Terminal sessions no longer occupy the lock table.
	m.mu.Lock()
	_, held = m.locks[s.ID]
	m.mu.Unlock()
	assert.False(t, held)
}

func TestMachine_CompletedSessionRejectsTransitions(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	s, err := m.Start(ctx, "Build a SaaS", "")
	require.NoError(t, err)
	answerDiscovery(t, m, s.ID)
	_, err = m.Complete(ctx, s.ID, nil)
	require.NoError(t, err)

	_, err = m.AdvancePhase(ctx, s.ID)
	assert.ErrorIs(t, err, ErrInvalidPhaseTransition)
	_, err = m.ReopenPhase(ctx, s.ID)
	assert.ErrorIs(t, err, ErrInvalidPhaseTransition)
	_, err = m.Answer(ctx, s.ID, "1")
	assert.ErrorIs(t, err, ErrInvalidPhaseTransition)
}

func TestMachine_Complete_InvalidOutcome(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	s, err := m.Start(ctx, "Build a SaaS", "")
	require.NoError(t, err)

	_, err = m.Complete(ctx, s.ID, &OutcomeRecord{Rating: 9})
	assert.ErrorIs(t, err, ErrInvalidOutcome)
	_, err = m.Complete(ctx, s.ID, &OutcomeRecord{SuccessScore: 1.5})
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}

func TestMachine_GetUnknownSession(t *testing.T) {
	m := newTestMachine(t)

	_, err := m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMachine_List(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "First", "")
	require.NoError(t, err)
	_, err = m.Start(ctx, "Second", "")
	require.NoError(t, err)

	all, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
