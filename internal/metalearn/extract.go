package metalearn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/lessons"
	"github.com/fyrsmithlabs/playbookd/internal/session"
)

// reinforceDelta is the confidence boost when an outcome confirms an
// existing lesson.
const reinforceDelta = 0.05

// newLessonFloor keeps freshly extracted lessons from starting at zero
// confidence even after a failed project.
const newLessonFloor = 0.3

// OutcomeLedger gates extraction to once per project. Record reports
// whether this call claimed the outcome first.
type OutcomeLedger interface {
	Record(ctx context.Context, outcome *session.OutcomeRecord) (bool, error)
}

// Extractor consumes completed-project outcomes and upserts lessons:
// near-duplicates reinforce the existing record, new observations insert.
type Extractor struct {
	repo     lessons.Repository
	ledger   OutcomeLedger
	semantic lessons.SemanticIndex
	logger   *zap.Logger
}

// NewExtractor creates an extractor. semantic may be nil.
func NewExtractor(repo lessons.Repository, ledger OutcomeLedger, semantic lessons.SemanticIndex, logger *zap.Logger) (*Extractor, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if ledger == nil {
		return nil, errors.New("outcome ledger is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{repo: repo, ledger: ledger, semantic: semantic, logger: logger}, nil
}

var _ session.CompletionSink = (*Extractor)(nil)

// CaptureOutcome extracts lessons from the outcome. The ledger makes this
// exactly-once per project: a retried or duplicated completion is a no-op.
func (e *Extractor) CaptureOutcome(ctx context.Context, sess *session.Session, outcome *session.OutcomeRecord) error {
	first, err := e.ledger.Record(ctx, outcome)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if !first {
		e.logger.Debug("outcome already extracted",
			zap.String("project_id", outcome.ProjectID))
		return nil
	}

	confidence := lessons.ClampConfidence(outcome.SuccessScore)
	if confidence < newLessonFloor {
		confidence = newLessonFloor
	}

	var errs []error
	for _, note := range outcome.WhatWorked {
		if strings.TrimSpace(note) == "" {
			continue
		}
		l := e.lessonFromNote(sess, note, false, confidence)
		if err := e.upsert(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}
	for _, note := range outcome.WhatDidntWork {
		if strings.TrimSpace(note) == "" {
			continue
		}
		l := e.lessonFromNote(sess, note, true, confidence)
		if err := e.upsert(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}

	// A well-rated project also vouches for its stack as a whole.
	if outcome.SuccessScore >= 0.7 {
		if l := e.stackLesson(sess, confidence); l != nil {
			if err := e.upsert(ctx, l); err != nil {
				errs = append(errs, err)
			}
		}
	}

	e.logger.Info("outcome extracted",
		zap.String("project_id", outcome.ProjectID),
		zap.Int("worked", len(outcome.WhatWorked)),
		zap.Int("didnt_work", len(outcome.WhatDidntWork)),
		zap.Int("failures", len(errs)))
	return errors.Join(errs...)
}

func (e *Extractor) lessonFromNote(sess *session.Session, note string, failure bool, confidence float64) *lessons.Lesson {
	category := classifyNote(note, failure)
	recommendation := note
	if failure {
		recommendation = "Avoid: " + note
	}
	now := time.Now().UTC()
	return &lessons.Lesson{
		ID:             uuid.New().String(),
		Title:          noteTitle(note),
		Category:       category,
		Description:    note,
		Recommendation: recommendation,
		Context:        fmt.Sprintf("Building %s applications", sess.ProjectType),
		Confidence:     confidence,
		Frequency:      1,
		ProjectTypes:   []string{string(sess.ProjectType)},
		TechStacks:     sess.TechStack.Technologies(),
		SourceProjects: []string{sess.ID},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// stackLesson records the whole technology combination as a tech_stack
// lesson, which feeds the stack recommender.
func (e *Extractor) stackLesson(sess *session.Session, confidence float64) *lessons.Lesson {
	techs := sess.TechStack.Technologies()
	if len(techs) == 0 || sess.ProjectType == "" {
		return nil
	}
	now := time.Now().UTC()
	return &lessons.Lesson{
		ID:             uuid.New().String(),
		Title:          fmt.Sprintf("%s stack for %s projects", strings.Join(techs, " + "), sess.ProjectType),
		Category:       lessons.CategoryTechStack,
		Description:    fmt.Sprintf("The combination %s delivered a successful %s project.", strings.Join(techs, ", "), sess.ProjectType),
		Recommendation: fmt.Sprintf("Consider %s for %s projects.", strings.Join(techs, " + "), sess.ProjectType),
		Context:        fmt.Sprintf("Choosing a stack for %s projects", sess.ProjectType),
		Confidence:     confidence,
		Frequency:      1,
		ProjectTypes:   []string{string(sess.ProjectType)},
		TechStacks:     techs,
		SourceProjects: []string{sess.ID},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// upsert reinforces a near-duplicate (same normalized title and category)
// or inserts a new lesson, then mirrors it into the semantic index.
func (e *Extractor) upsert(ctx context.Context, l *lessons.Lesson) error {
	existing, err := e.repo.FindByNormalizedTitle(ctx, l.NormalizedTitle(), l.Category)
	switch {
	case err == nil:
		if err := e.reinforce(ctx, existing, l); err != nil {
			return err
		}
		e.index(ctx, existing)
		return nil
	case errors.Is(err, lessons.ErrLessonNotFound):
		if err := e.repo.Insert(ctx, l); err != nil {
			return fmt.Errorf("insert lesson: %w", err)
		}
		e.index(ctx, l)
		return nil
	default:
		return fmt.Errorf("find lesson: %w", err)
	}
}

// reinforce bumps frequency and confidence on the stored lesson and
// merges scope lists. A concurrent writer costs one retry.
func (e *Extractor) reinforce(ctx context.Context, existing, incoming *lessons.Lesson) error {
	for attempt := 0; ; attempt++ {
		existing.Frequency++
		existing.Confidence = lessons.ClampConfidence(existing.Confidence + reinforceDelta)
		existing.ProjectTypes = mergeStrings(existing.ProjectTypes, incoming.ProjectTypes)
		existing.TechStacks = mergeStrings(existing.TechStacks, incoming.TechStacks)
		existing.Tags = mergeStrings(existing.Tags, incoming.Tags)
		existing.SourceProjects = mergeStrings(existing.SourceProjects, incoming.SourceProjects)
		existing.UpdatedAt = time.Now().UTC()

		err := e.repo.Update(ctx, existing)
		if err == nil {
			return nil
		}
		if !errors.Is(err, lessons.ErrVersionConflict) || attempt >= 1 {
			return fmt.Errorf("reinforce lesson: %w", err)
		}
		fresh, gerr := e.repo.Get(ctx, existing.ID)
		if gerr != nil {
			return fmt.Errorf("reinforce lesson: %w", gerr)
		}
		existing = fresh
	}
}

func (e *Extractor) index(ctx context.Context, l *lessons.Lesson) {
	if e.semantic == nil {
		return
	}
	if err := e.semantic.Index(ctx, l); err != nil {
		e.logger.Warn("semantic indexing failed",
			zap.String("lesson_id", l.ID),
			zap.Error(err))
	}
}

func mergeStrings(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[strings.ToLower(s)] = struct{}{}
	}
	for _, s := range extra {
		if s == "" {
			continue
		}
		if _, ok := seen[strings.ToLower(s)]; !ok {
			seen[strings.ToLower(s)] = struct{}{}
			base = append(base, s)
		}
	}
	return base
}
