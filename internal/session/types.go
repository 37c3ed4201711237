// Package session implements the project-definition workflow: the
// ProjectSession model and the phase state machine that drives it.
//
// A session moves through a fixed phase order (discovery, planning, roadmap,
// implementation, deployment, completed). Each phase advance is a checkpoint
// where relevant lessons are retrieved and attached to the session for the
// external artifact generator to consume.
package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Common errors for session operations.
var (
	ErrSessionNotFound        = errors.New("session not found")
	ErrInvalidPhaseTransition = errors.New("invalid phase transition")
	ErrNoPendingQuestion      = errors.New("no pending question")
	ErrEmptyObjective         = errors.New("objective cannot be empty")
	ErrAtFirstPhase           = errors.New("cannot reopen before discovery")
	ErrInvalidMode            = errors.New("invalid autonomy mode")
	ErrInvalidOutcome         = errors.New("invalid outcome record")
)

// PreconditionError reports which requirements block a phase advance.
// It is recoverable: the caller can prompt the user for the missing pieces
// and retry.
type PreconditionError struct {
	// Phase is the phase the session tried to leave.
	Phase Phase

	// Missing lists the unmet requirements, one per entry.
	Missing []string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("preconditions not met for leaving %s: %s", e.Phase, strings.Join(e.Missing, "; "))
}

// Phase is one stage of the fixed project lifecycle.
type Phase string

const (
	PhaseDiscovery      Phase = "discovery"
	PhasePlanning       Phase = "planning"
	PhaseRoadmap        Phase = "roadmap"
	PhaseImplementation Phase = "implementation"
	PhaseDeployment     Phase = "deployment"
	PhaseCompleted      Phase = "completed"
)

// phaseOrder is the canonical progression. Transitions only ever move one
// step forward, or one step backward via ReopenPhase.
var phaseOrder = []Phase{
	PhaseDiscovery,
	PhasePlanning,
	PhaseRoadmap,
	PhaseImplementation,
	PhaseDeployment,
	PhaseCompleted,
}

// Index returns the position of the phase in the canonical order, or -1.
func (p Phase) Index() int {
	for i, ph := range phaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}

// Valid reports whether the phase is one of the defined phases.
func (p Phase) Valid() bool { return p.Index() >= 0 }

// Terminal reports whether the phase ends the lifecycle.
func (p Phase) Terminal() bool { return p == PhaseCompleted }

// Next returns the following phase in order, and false at the end.
func (p Phase) Next() (Phase, bool) {
	i := p.Index()
	if i < 0 || i >= len(phaseOrder)-1 {
		return "", false
	}
	return phaseOrder[i+1], true
}

// Prev returns the preceding phase in order, and false at the beginning.
func (p Phase) Prev() (Phase, bool) {
	i := p.Index()
	if i <= 0 {
		return "", false
	}
	return phaseOrder[i-1], true
}

// ProjectType classifies what kind of system a session is defining.
type ProjectType string

const (
	ProjectTypeSaaS       ProjectType = "saas"
	ProjectTypeAPI        ProjectType = "api"
	ProjectTypeAgent      ProjectType = "agent"
	ProjectTypeMultiAgent ProjectType = "multi_agent"
	ProjectTypePlatform   ProjectType = "platform"
)

// Scale is the initial scale target captured during discovery.
type Scale string

const (
	ScaleMVP        Scale = "mvp"
	ScaleGrowth     Scale = "growth"
	ScaleScale      Scale = "scale"
	ScaleEnterprise Scale = "enterprise"
)

// AutonomyMode controls how much confirmation the workflow requires.
type AutonomyMode string

const (
	ModeSupervised AutonomyMode = "supervised"
	ModeAutonomous AutonomyMode = "autonomous"
	ModePlanOnly   AutonomyMode = "plan_only"
)

// ParseMode parses an autonomy mode, defaulting to supervised when empty.
func ParseMode(s string) (AutonomyMode, error) {
	switch AutonomyMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSupervised:
		return ModeSupervised, nil
	case ModeAutonomous:
		return ModeAutonomous, nil
	case ModePlanOnly:
		return ModePlanOnly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Stack layer names used by the tech stack and the recommender.
const (
	LayerFrontend = "frontend"
	LayerBackend  = "backend"
	LayerDatabase = "database"
)

// TechStack holds the technology choice per layer. Any layer may be unset.
type TechStack struct {
	Frontend string            `json:"frontend,omitempty"`
	Backend  string            `json:"backend,omitempty"`
	Database string            `json:"database,omitempty"`
	Extras   map[string]string `json:"extras,omitempty"`
}

// Resolved reports whether every core layer has a choice.
func (t TechStack) Resolved() bool {
	return t.Frontend != "" && t.Backend != "" && t.Database != ""
}

// Technologies returns the chosen technologies in a stable order.
func (t TechStack) Technologies() []string {
	var techs []string
	for _, v := range []string{t.Frontend, t.Backend, t.Database} {
		if v != "" && v != "none" {
			techs = append(techs, v)
		}
	}
	extras := make([]string, 0, len(t.Extras))
	for _, v := range t.Extras {
		if v != "" {
			extras = append(extras, v)
		}
	}
	sort.Strings(extras)
	return append(techs, extras...)
}

// Question is a prompt the session is waiting on.
type Question struct {
	// Index orders questions within a phase (discovery question cursor).
	Index int `json:"index"`

	Text string `json:"text"`
}

// QA is one entry in the append-only answer log.
type QA struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	AnsweredAt time.Time `json:"answered_at"`
}

// FeatureStatus tracks progress of one roadmap feature.
type FeatureStatus string

const (
	FeaturePending    FeatureStatus = "pending"
	FeatureInProgress FeatureStatus = "in_progress"
	FeatureCompleted  FeatureStatus = "completed"
	FeatureSkipped    FeatureStatus = "skipped"
)

// Feature is a unit of the roadmap breakdown.
type Feature struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      FeatureStatus `json:"status"`
}

func (f Feature) terminal() bool {
	return f.Status == FeatureCompleted || f.Status == FeatureSkipped
}

// LessonRef is a lesson attached to a phase at a retrieval checkpoint.
// It carries just enough for the artifact generator; the full record stays
// in the lesson repository.
type LessonRef struct {
	LessonID       string  `json:"lesson_id"`
	Title          string  `json:"title"`
	Category       string  `json:"category"`
	Recommendation string  `json:"recommendation"`
	Relevance      float64 `json:"relevance"`
}

// OutcomeRecord captures how a completed project went. Created once at
// completion, immutable thereafter, and consumed exactly once by the
// pattern extractor.
type OutcomeRecord struct {
	ProjectID       string    `json:"project_id"`
	Rating          int       `json:"rating"`
	SuccessScore    float64   `json:"success_score"`
	WhatWorked      []string  `json:"what_worked"`
	WhatDidntWork   []string  `json:"what_didnt_work"`
	PhasesCompleted []Phase   `json:"phases_completed"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Validate checks outcome bounds.
func (o *OutcomeRecord) Validate() error {
	if o == nil {
		return ErrInvalidOutcome
	}
	if o.Rating != 0 && (o.Rating < 1 || o.Rating > 5) {
		return fmt.Errorf("%w: rating must be 1-5, got %d", ErrInvalidOutcome, o.Rating)
	}
	if o.SuccessScore < 0 || o.SuccessScore > 1 {
		return fmt.Errorf("%w: success score must be in [0,1], got %g", ErrInvalidOutcome, o.SuccessScore)
	}
	return nil
}

// Session is the full state of one project-definition workflow.
type Session struct {
	ID           string       `json:"id"`
	Objective    string       `json:"objective"`
	ProjectType  ProjectType  `json:"project_type,omitempty"`
	Scale        Scale        `json:"scale,omitempty"`
	Mode         AutonomyMode `json:"autonomy_mode"`
	CurrentPhase Phase        `json:"current_phase"`
	TechStack    TechStack    `json:"tech_stack"`

	PendingQuestion *Question `json:"pending_question,omitempty"`

	// Answers is strictly append-ordered.
	Answers []QA `json:"answers"`

	Features       []Feature `json:"features,omitempty"`
	CurrentFeature int       `json:"current_feature"`

	// ArtifactRefs are opaque references produced by the external
	// artifact generator.
	ArtifactRefs []string `json:"artifact_refs,omitempty"`

	// PhaseLessons holds the lessons attached at each phase-entry
	// retrieval checkpoint.
	PhaseLessons map[Phase][]LessonRef `json:"phase_lessons,omitempty"`

	Outcome *OutcomeRecord `json:"outcome,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Completed reports whether the session reached its terminal phase.
func (s *Session) Completed() bool { return s.CurrentPhase.Terminal() }

// Clone returns a deep copy so stores can hand out sessions without
// sharing mutable state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.PendingQuestion != nil {
		q := *s.PendingQuestion
		out.PendingQuestion = &q
	}
	out.Answers = append([]QA(nil), s.Answers...)
	out.Features = append([]Feature(nil), s.Features...)
	out.ArtifactRefs = append([]string(nil), s.ArtifactRefs...)
	if s.TechStack.Extras != nil {
		out.TechStack.Extras = make(map[string]string, len(s.TechStack.Extras))
		for k, v := range s.TechStack.Extras {
			out.TechStack.Extras[k] = v
		}
	}
	if s.PhaseLessons != nil {
		out.PhaseLessons = make(map[Phase][]LessonRef, len(s.PhaseLessons))
		for p, refs := range s.PhaseLessons {
			out.PhaseLessons[p] = append([]LessonRef(nil), refs...)
		}
	}
	if s.Outcome != nil {
		o := *s.Outcome
		o.WhatWorked = append([]string(nil), s.Outcome.WhatWorked...)
		o.WhatDidntWork = append([]string(nil), s.Outcome.WhatDidntWork...)
		o.PhasesCompleted = append([]Phase(nil), s.Outcome.PhasesCompleted...)
		out.Outcome = &o
	}
	return &out
}
