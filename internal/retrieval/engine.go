// Package retrieval ranks stored lessons against a project context using
// category, keyword, and optional semantic signals.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/lessons"
)

// Query describes what the caller is working on.
type Query struct {
	ProjectType  string
	Technologies []string
	Phase        string

	// Text is free-form context (objective, notes). Optional; the
	// structured fields alone already form a usable query.
	Text string

	// Limit caps the result count. Zero selects the engine default.
	Limit int
}

// ScoreBreakdown exposes the per-signal components behind a final score.
// Semantic is nil when the vector backend did not contribute.
type ScoreBreakdown struct {
	Category float64  `json:"category_score"`
	Keyword  float64  `json:"keyword_score"`
	Semantic *float64 `json:"semantic_score,omitempty"`
}

// ScoredLesson is one ranked result.
type ScoredLesson struct {
	Lesson    *lessons.Lesson
	Score     float64
	Breakdown ScoreBreakdown
}

// Engine ranks lessons for a query. Retrieval is read-only and fail-soft:
// a broken repository or semantic backend yields empty results, never an
// error that would block the workflow.
type Engine struct {
	repo     lessons.Repository
	semantic *SemanticIndex
	logger   *zap.Logger
	limit    int
}

// NewEngine creates an engine. semantic may be nil; ranking then runs on
// the lexical signals alone.
func NewEngine(repo lessons.Repository, semantic *SemanticIndex, limit int, logger *zap.Logger) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if limit <= 0 {
		limit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{repo: repo, semantic: semantic, logger: logger, limit: limit}, nil
}

// Retrieve returns the top lessons for the query, best first.
func (e *Engine) Retrieve(ctx context.Context, q Query) []ScoredLesson {
	limit := q.Limit
	if limit <= 0 {
		limit = e.limit
	}

	all, err := e.repo.List(ctx, lessons.ListFilter{})
	if err != nil {
		e.logger.Warn("lesson listing failed, returning no lessons", zap.Error(err))
		return nil
	}
	if len(all) == 0 {
		return nil
	}

	queryText := e.queryText(q)
	queryTechs := stringSet(q.Technologies)

	// The semantic signal is optional twice over: no backend configured,
	// or the backend errored mid-query.
	var similarities map[string]float64
	if e.semantic != nil {
		similarities, err = e.semantic.Similarities(ctx, queryText, len(all))
		if err != nil {
			e.logger.Warn("semantic signal unavailable", zap.Error(err))
			similarities = nil
		}
	}

	scored := make([]ScoredLesson, 0, len(all))
	for _, l := range all {
		if !eligible(l, q.ProjectType, q.Technologies) {
			continue
		}
		sem := -1.0
		if similarities != nil {
			sem = similarities[l.ID]
		}
		cat := categoryScore(l, q.Phase)
		kw := keywordScore(queryTechs, l)
		score := combine(cat, kw, sem, l.Confidence)
		if score <= 0 {
			continue
		}
		breakdown := ScoreBreakdown{Category: cat, Keyword: kw}
		if sem >= 0 {
			breakdown.Semantic = &sem
		}
		scored = append(scored, ScoredLesson{Lesson: l, Score: score, Breakdown: breakdown})
	}

	scored = dedupe(scored)
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Lesson.Frequency != scored[j].Lesson.Frequency {
			return scored[i].Lesson.Frequency > scored[j].Lesson.Frequency
		}
		return scored[i].Lesson.UpdatedAt.After(scored[j].Lesson.UpdatedAt)
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func (e *Engine) queryText(q Query) string {
	parts := make([]string, 0, 4)
	if q.Text != "" {
		parts = append(parts, q.Text)
	}
	if q.ProjectType != "" {
		parts = append(parts, q.ProjectType)
	}
	if len(q.Technologies) > 0 {
		parts = append(parts, strings.Join(q.Technologies, " "))
	}
	if q.Phase != "" {
		parts = append(parts, q.Phase)
	}
	return strings.Join(parts, " ")
}

// dedupe keeps the best-scoring lesson per normalized title. Titles
// repeated across categories still collapse to one result.
func dedupe(scored []ScoredLesson) []ScoredLesson {
	best := make(map[string]int, len(scored))
	out := scored[:0]
	for _, sl := range scored {
		k := sl.Lesson.NormalizedTitle()
		if i, ok := best[k]; ok {
			if sl.Score > out[i].Score {
				out[i] = sl
			}
			continue
		}
		best[k] = len(out)
		out = append(out, sl)
	}
	return out
}
