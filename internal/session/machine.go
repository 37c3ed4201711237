package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KnowledgeSource supplies lessons for a phase-entry retrieval checkpoint.
// Implementations must be fail-soft: a degraded backend returns an error
// (or empty results), never blocks the workflow.
type KnowledgeSource interface {
	LessonsForPhase(ctx context.Context, projectType string, technologies []string, phase string, limit int) ([]LessonRef, error)
}

// CompletionSink consumes the outcome of a completed session, typically to
// extract reusable lessons from it.
type CompletionSink interface {
	CaptureOutcome(ctx context.Context, sess *Session, outcome *OutcomeRecord) error
}

// Config tunes the machine's retrieval checkpoints.
type Config struct {
	// RetrievalLimit caps lessons attached per checkpoint.
	RetrievalLimit int

	// RetrievalTimeout bounds how long a phase advance waits on the
	// knowledge source before proceeding without lessons.
	RetrievalTimeout time.Duration

	// CompletionTimeout bounds the asynchronous outcome capture.
	CompletionTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.RetrievalLimit <= 0 {
		c.RetrievalLimit = 10
	}
	if c.RetrievalTimeout <= 0 {
		c.RetrievalTimeout = 5 * time.Second
	}
	if c.CompletionTimeout <= 0 {
		c.CompletionTimeout = 30 * time.Second
	}
}

// Machine drives sessions through the phase lifecycle. Operations on the
// same session are serialized; different sessions proceed concurrently.
type Machine struct {
	store       Store
	knowledge   KnowledgeSource
	completions CompletionSink
	logger      *zap.Logger
	cfg         Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// wg tracks in-flight outcome captures so Close can drain them.
	wg sync.WaitGroup
}

// NewMachine creates a machine over the given store.
func NewMachine(store Store, cfg Config, logger *zap.Logger) (*Machine, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	return &Machine{
		store:  store,
		logger: logger,
		cfg:    cfg,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// SetKnowledgeSource wires the retrieval checkpoint. Optional; without it
// phase advances attach no lessons.
func (m *Machine) SetKnowledgeSource(ks KnowledgeSource) { m.knowledge = ks }

// SetCompletionSink wires outcome capture. Optional.
func (m *Machine) SetCompletionSink(cs CompletionSink) { m.completions = cs }

// Close waits for in-flight outcome captures to finish.
func (m *Machine) Close() { m.wg.Wait() }

// sessionLock returns the mutex serializing one session's operations.
func (m *Machine) sessionLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// releaseLock drops a completed session's mutex so the lock table does
// not grow with the lifetime history of the daemon. A straggler holding
// the old mutex still serializes against us; any later caller gets a
// fresh mutex and is rejected by the terminal-phase checks.
func (m *Machine) releaseLock(id string) {
	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()
}

// Start creates a session in the discovery phase with the first discovery
// question pending.
func (m *Machine) Start(ctx context.Context, objective, mode string) (*Session, error) {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return nil, ErrEmptyObjective
	}
	parsedMode, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s := &Session{
		ID:           uuid.New().String(),
		Objective:    objective,
		Mode:         parsedMode,
		CurrentPhase: PhaseDiscovery,
		PendingQuestion: &Question{
			Index: 0,
			Text:  discoveryScript[0].text,
		},
		PhaseLessons: make(map[Phase][]LessonRef),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	m.logger.Info("session started",
		zap.String("session_id", s.ID),
		zap.String("mode", string(parsedMode)))
	return s, nil
}

// Get returns the session by id.
func (m *Machine) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// List returns all sessions, newest first.
func (m *Machine) List(ctx context.Context) ([]*Session, error) {
	return m.store.List(ctx)
}

// Continue reports where the session stands: the pending question if one
// is open, otherwise the current phase. It never mutates the session.
func (m *Machine) Continue(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// Answer records an answer to the pending question and applies its effect.
// The final discovery answer and completed phase gates advance the phase
// automatically.
func (m *Machine) Answer(ctx context.Context, id, answer string) (*Session, error) {
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Completed() {
		return nil, fmt.Errorf("%w: session is completed", ErrInvalidPhaseTransition)
	}
	if s.PendingQuestion == nil {
		return nil, ErrNoPendingQuestion
	}

	s.Answers = append(s.Answers, QA{
		Question:   s.PendingQuestion.Text,
		Answer:     answer,
		AnsweredAt: time.Now().UTC(),
	})

	switch s.CurrentPhase {
	case PhaseDiscovery:
		return m.answerDiscovery(ctx, s, answer)
	case PhasePlanning, PhaseRoadmap:
		return m.answerGate(ctx, s, answer)
	case PhaseImplementation:
		return m.answerImplementation(ctx, s, answer)
	default:
		return nil, fmt.Errorf("%w: phase %s takes no answers", ErrInvalidPhaseTransition, s.CurrentPhase)
	}
}

func (m *Machine) answerDiscovery(ctx context.Context, s *Session, answer string) (*Session, error) {
	idx := s.PendingQuestion.Index
	if idx < 0 || idx >= len(discoveryScript) {
		return nil, ErrNoPendingQuestion
	}
	q := discoveryScript[idx]
	q.apply(s, q.resolve(answer))

	if idx+1 < len(discoveryScript) {
		s.PendingQuestion = &Question{Index: idx + 1, Text: discoveryScript[idx+1].text}
		s.UpdatedAt = time.Now().UTC()
		if err := m.store.Update(ctx, s); err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}
		return s, nil
	}
	// Discovery script exhausted: advance into planning.
	return m.advanceLocked(ctx, s)
}

// answerGate handles the planning and roadmap confirmation prompts.
func (m *Machine) answerGate(ctx context.Context, s *Session, answer string) (*Session, error) {
	if !strings.EqualFold(strings.TrimSpace(answer), "continue") {
		// Recorded in the answer log; the gate stays open.
		s.UpdatedAt = time.Now().UTC()
		if err := m.store.Update(ctx, s); err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}
		return s, nil
	}
	return m.advanceLocked(ctx, s)
}

func (m *Machine) answerImplementation(ctx context.Context, s *Session, answer string) (*Session, error) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "next":
		if s.CurrentFeature < len(s.Features) {
			s.Features[s.CurrentFeature].Status = FeatureCompleted
			s.CurrentFeature++
		}
		if s.CurrentFeature < len(s.Features) {
			s.Features[s.CurrentFeature].Status = FeatureInProgress
		}
	case "skip":
		if s.CurrentFeature < len(s.Features) {
			s.Features[s.CurrentFeature].Status = FeatureSkipped
			s.CurrentFeature++
		}
		if s.CurrentFeature < len(s.Features) {
			s.Features[s.CurrentFeature].Status = FeatureInProgress
		}
	case "done":
		for i := range s.Features {
			if !s.Features[i].terminal() {
				s.Features[i].Status = FeatureCompleted
			}
		}
		s.CurrentFeature = len(s.Features)
	default:
		// Free-text notes are kept in the answer log only.
	}

	if s.CurrentFeature >= len(s.Features) {
		return m.advanceLocked(ctx, s)
	}
	s.PendingQuestion = featureQuestion(s)
	s.UpdatedAt = time.Now().UTC()
	if err := m.store.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return s, nil
}

// AdvancePhase moves the session one phase forward after checking
// preconditions and running the retrieval checkpoint.
func (m *Machine) AdvancePhase(ctx context.Context, id string) (*Session, error) {
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.advanceLocked(ctx, s)
}

// advanceLocked performs the transition. The retrieval query is computed
// and awaited before any session state changes, so a failed persist never
// leaves a half-advanced session.
func (m *Machine) advanceLocked(ctx context.Context, s *Session) (*Session, error) {
	if s.Completed() {
		return nil, fmt.Errorf("%w: session is completed", ErrInvalidPhaseTransition)
	}
	if s.CurrentPhase == PhaseDeployment {
		return nil, fmt.Errorf("%w: deployment ends via completion, not advance", ErrInvalidPhaseTransition)
	}
	next, ok := s.CurrentPhase.Next()
	if !ok {
		return nil, fmt.Errorf("%w: no phase after %s", ErrInvalidPhaseTransition, s.CurrentPhase)
	}
	if missing := missingPreconditions(s); len(missing) > 0 {
		return nil, &PreconditionError{Phase: s.CurrentPhase, Missing: missing}
	}

	refs := m.retrieveLessons(ctx, s, next)

	s.CurrentPhase = next
	if s.PhaseLessons == nil {
		s.PhaseLessons = make(map[Phase][]LessonRef)
	}
	s.PhaseLessons[next] = refs
	m.enterPhase(s, next)
	s.UpdatedAt = time.Now().UTC()
	if err := m.store.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	m.logger.Info("phase advanced",
		zap.String("session_id", s.ID),
		zap.String("phase", string(next)),
		zap.Int("lessons", len(refs)))
	return s, nil
}

// ReopenPhase moves the session exactly one phase back and re-runs the
// retrieval checkpoint for the reopened phase, since the knowledge base
// may have changed since the first visit.
func (m *Machine) ReopenPhase(ctx context.Context, id string) (*Session, error) {
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Completed() {
		return nil, fmt.Errorf("%w: session is completed", ErrInvalidPhaseTransition)
	}
	prev, ok := s.CurrentPhase.Prev()
	if !ok {
		return nil, ErrAtFirstPhase
	}

	refs := m.retrieveLessons(ctx, s, prev)

	s.CurrentPhase = prev
	if s.PhaseLessons == nil {
		s.PhaseLessons = make(map[Phase][]LessonRef)
	}
	s.PhaseLessons[prev] = refs
	m.enterPhase(s, prev)
	s.UpdatedAt = time.Now().UTC()
	if err := m.store.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	m.logger.Info("phase reopened",
		zap.String("session_id", s.ID),
		zap.String("phase", string(prev)))
	return s, nil
}

// Complete finalizes the session. Completing an already-completed session
// is a no-op returning the existing state; the outcome is captured
// asynchronously and at most once.
func (m *Machine) Complete(ctx context.Context, id string, outcome *OutcomeRecord) (*Session, error) {
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Completed() {
		m.releaseLock(id)
		return s, nil
	}
	if outcome == nil {
		outcome = &OutcomeRecord{}
	}
	if err := outcome.Validate(); err != nil {
		return nil, err
	}
	outcome.ProjectID = s.ID
	outcome.CompletedAt = time.Now().UTC()
	if len(outcome.PhasesCompleted) == 0 {
		for _, p := range phaseOrder {
			if p.Terminal() {
				break
			}
			outcome.PhasesCompleted = append(outcome.PhasesCompleted, p)
			if p == s.CurrentPhase {
				break
			}
		}
	}
	if outcome.SuccessScore == 0 && outcome.Rating > 0 {
		outcome.SuccessScore = float64(outcome.Rating) / 5
	}

	s.CurrentPhase = PhaseCompleted
	s.PendingQuestion = nil
	s.Outcome = outcome
	s.UpdatedAt = time.Now().UTC()
	if err := m.store.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	m.logger.Info("session completed",
		zap.String("session_id", s.ID),
		zap.Float64("success_score", outcome.SuccessScore))

	if m.completions != nil {
		snapshot := s.Clone()
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			cctx, cancel := context.WithTimeout(context.Background(), m.cfg.CompletionTimeout)
			defer cancel()
			if err := m.completions.CaptureOutcome(cctx, snapshot, snapshot.Outcome); err != nil {
				m.logger.Warn("outcome capture failed",
					zap.String("session_id", snapshot.ID),
					zap.Error(err))
			}
		}()
	}
	m.releaseLock(id)
	return s, nil
}

// retrieveLessons runs the checkpoint query with a bounded timeout.
// Retrieval failures degrade to an empty attachment, never block the
// transition.
func (m *Machine) retrieveLessons(ctx context.Context, s *Session, phase Phase) []LessonRef {
	if m.knowledge == nil {
		return nil
	}
	rctx, cancel := context.WithTimeout(ctx, m.cfg.RetrievalTimeout)
	defer cancel()
	refs, err := m.knowledge.LessonsForPhase(rctx, string(s.ProjectType), s.TechStack.Technologies(), string(phase), m.cfg.RetrievalLimit)
	if err != nil {
		m.logger.Warn("lesson retrieval degraded",
			zap.String("session_id", s.ID),
			zap.String("phase", string(phase)),
			zap.Error(err))
		return nil
	}
	return refs
}

// missingPreconditions lists what blocks leaving the current phase.
func missingPreconditions(s *Session) []string {
	var missing []string
	switch s.CurrentPhase {
	case PhaseDiscovery:
		if s.ProjectType == "" {
			missing = append(missing, "project type not chosen")
		}
		if !s.TechStack.Resolved() {
			missing = append(missing, "tech stack not resolved")
		}
	case PhasePlanning:
		if !s.TechStack.Resolved() {
			missing = append(missing, "tech stack not resolved")
		}
	case PhaseRoadmap:
		// Features are seeded on roadmap entry; nothing further required.
	case PhaseImplementation:
		for _, f := range s.Features {
			if !f.terminal() {
				missing = append(missing, fmt.Sprintf("feature %q not finished", f.Name))
			}
		}
	}
	return missing
}

// enterPhase applies phase-entry effects: seeding the roadmap breakdown
// and setting the pending prompt for the new phase.
func (m *Machine) enterPhase(s *Session, phase Phase) {
	switch phase {
	case PhaseDiscovery:
		// Reopened discovery: the script is already answered, so no
		// question is re-asked unless one was never reached.
		if n := appliedDiscoveryAnswers(s); n < len(discoveryScript) {
			s.PendingQuestion = &Question{Index: n, Text: discoveryScript[n].text}
		} else {
			s.PendingQuestion = nil
		}
	case PhasePlanning:
		s.PendingQuestion = &Question{Text: "Review the architecture plan, then reply continue to build the roadmap"}
	case PhaseRoadmap:
		if len(s.Features) == 0 {
			s.Features = defaultFeatures()
			s.CurrentFeature = 0
		}
		s.PendingQuestion = &Question{Text: "Review the feature roadmap, then reply continue to start implementation"}
	case PhaseImplementation:
		if s.CurrentFeature < len(s.Features) && s.Features[s.CurrentFeature].Status == FeaturePending {
			s.Features[s.CurrentFeature].Status = FeatureInProgress
		}
		s.PendingQuestion = featureQuestion(s)
	case PhaseDeployment:
		s.PendingQuestion = nil
	}
}

func featureQuestion(s *Session) *Question {
	if s.CurrentFeature >= len(s.Features) {
		return nil
	}
	f := s.Features[s.CurrentFeature]
	return &Question{
		Index: s.CurrentFeature,
		Text:  fmt.Sprintf("Working on %q (%d of %d). Reply next when done, skip to defer, or done to finish all", f.Name, s.CurrentFeature+1, len(s.Features)),
	}
}

// appliedDiscoveryAnswers counts how many discovery fields are populated,
// which is the script cursor after a reopen.
func appliedDiscoveryAnswers(s *Session) int {
	n := 0
	if s.ProjectType != "" {
		n++
	} else {
		return n
	}
	if s.Scale != "" {
		n++
	} else {
		return n
	}
	for _, v := range []string{s.TechStack.Frontend, s.TechStack.Backend, s.TechStack.Database} {
		if v == "" {
			return n
		}
		n++
	}
	return n
}
