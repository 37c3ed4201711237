package retrieval

import (
	"context"

	"github.com/fyrsmithlabs/playbookd/internal/session"
)

// SessionAdapter lets the phase machine use the engine as its knowledge
// source without the session package depending on retrieval.
type SessionAdapter struct {
	engine *Engine
}

// NewSessionAdapter wraps an engine.
func NewSessionAdapter(engine *Engine) *SessionAdapter {
	return &SessionAdapter{engine: engine}
}

var _ session.KnowledgeSource = (*SessionAdapter)(nil)

func (a *SessionAdapter) LessonsForPhase(ctx context.Context, projectType string, technologies []string, phase string, limit int) ([]session.LessonRef, error) {
	scored := a.engine.Retrieve(ctx, Query{
		ProjectType:  projectType,
		Technologies: technologies,
		Phase:        phase,
		Limit:        limit,
	})
	refs := make([]session.LessonRef, len(scored))
	for i, sl := range scored {
		refs[i] = session.LessonRef{
			LessonID:       sl.Lesson.ID,
			Title:          sl.Lesson.Title,
			Category:       string(sl.Lesson.Category),
			Recommendation: sl.Lesson.Recommendation,
			Relevance:      sl.Score,
		}
	}
	return refs, nil
}
