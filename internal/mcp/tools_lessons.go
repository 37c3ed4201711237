package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/playbookd/internal/lessons"
	"github.com/fyrsmithlabs/playbookd/internal/retrieval"
)

type scoreBreakdownView struct {
	CategoryScore float64  `json:"category_score" jsonschema:"Phase-category match component"`
	KeywordScore  float64  `json:"keyword_score" jsonschema:"Tech-stack and tag overlap component"`
	SemanticScore *float64 `json:"semantic_score,omitempty" jsonschema:"Vector similarity component when the backend is available"`
}

type lessonView struct {
	ID             string              `json:"id" jsonschema:"Lesson ID"`
	Title          string              `json:"title" jsonschema:"Lesson title"`
	Category       string              `json:"category" jsonschema:"Lesson category"`
	Description    string              `json:"description,omitempty" jsonschema:"What was observed"`
	Recommendation string              `json:"recommendation,omitempty" jsonschema:"What to do about it"`
	Context        string              `json:"context,omitempty" jsonschema:"When the lesson applies"`
	Confidence     float64             `json:"confidence" jsonschema:"Confidence in [0 1]"`
	Frequency      int                 `json:"frequency" jsonschema:"How many projects contributed it"`
	Upvotes        int                 `json:"upvotes" jsonschema:"Explicit upvote count"`
	Downvotes      int                 `json:"downvotes" jsonschema:"Explicit downvote count"`
	TechStacks     []string            `json:"tech_stacks,omitempty" jsonschema:"Technologies the lesson applies to"`
	Score          float64             `json:"score,omitempty" jsonschema:"Retrieval score when ranked"`
	ScoreBreakdown *scoreBreakdownView `json:"score_breakdown,omitempty" jsonschema:"Per-signal components of the score"`
}

func viewLesson(l *lessons.Lesson, score float64) lessonView {
	return lessonView{
		ID:             l.ID,
		Title:          l.Title,
		Category:       string(l.Category),
		Description:    l.Description,
		Recommendation: l.Recommendation,
		Context:        l.Context,
		Confidence:     l.Confidence,
		Frequency:      l.Frequency,
		Upvotes:        l.Upvotes,
		Downvotes:      l.Downvotes,
		TechStacks:     l.TechStacks,
		Score:          score,
	}
}

func viewScoredLesson(sl retrieval.ScoredLesson) lessonView {
	v := viewLesson(sl.Lesson, sl.Score)
	v.ScoreBreakdown = &scoreBreakdownView{
		CategoryScore: sl.Breakdown.Category,
		KeywordScore:  sl.Breakdown.Keyword,
		SemanticScore: sl.Breakdown.Semantic,
	}
	return v
}

type lessonsRetrieveInput struct {
	ProjectType  string   `json:"project_type,omitempty" jsonschema:"Project type to match"`
	Technologies []string `json:"technologies,omitempty" jsonschema:"Technologies in play"`
	Phase        string   `json:"phase,omitempty" jsonschema:"Workflow phase the lessons are for"`
	Text         string   `json:"text,omitempty" jsonschema:"Free-form context such as the objective"`
	Limit        int      `json:"limit,omitempty" jsonschema:"Maximum results (default from configuration)"`
}

type lessonsRetrieveOutput struct {
	Lessons []lessonView `json:"lessons" jsonschema:"Ranked lessons best first"`
	Count   int          `json:"count" jsonschema:"Number of lessons returned"`
}

type lessonVoteInput struct {
	Title string `json:"title" jsonschema:"required,Lesson title (case-insensitive)"`
	Vote  string `json:"vote" jsonschema:"required,up or down"`
}

type lessonRemoveInput struct {
	Title string `json:"title" jsonschema:"required,Lesson title (case-insensitive)"`
}

type lessonRemoveOutput struct {
	Removed bool `json:"removed" jsonschema:"Whether the lesson was removed"`
}

type topLessonView struct {
	Title     string `json:"title" jsonschema:"Lesson title"`
	Frequency int    `json:"frequency" jsonschema:"Times reinforced"`
}

type lessonStatsOutput struct {
	Total               int             `json:"total" jsonschema:"Total lesson count"`
	ByCategory          map[string]int  `json:"by_category" jsonschema:"Lesson count per category"`
	AvgConfidence       float64         `json:"avg_confidence" jsonschema:"Mean confidence"`
	HighFrequency       int             `json:"high_frequency" jsonschema:"Lessons reinforced across several projects"`
	LowConfidenceTitles []string        `json:"low_confidence_titles,omitempty" jsonschema:"Titles below the confidence threshold"`
	DuplicateTitles     []string        `json:"duplicate_titles,omitempty" jsonschema:"Normalized titles stored more than once"`
	TopByFrequency      []topLessonView `json:"top_by_frequency,omitempty" jsonschema:"Most-reinforced lessons"`
}

type stackSuggestInput struct {
	ProjectType string `json:"project_type" jsonschema:"required,Project type to suggest a stack for"`
}

func (s *Server) registerLessonTools() {
	// lessons_retrieve
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "lessons_retrieve",
		Description: "Retrieve lessons relevant to a project context, ranked by relevance",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args lessonsRetrieveInput) (*mcp.CallToolResult, lessonsRetrieveOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "lessons_retrieve")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "lessons_retrieve")
			s.metrics.RecordInvocation(ctx, "lessons_retrieve", time.Since(start), toolErr)
		}()

		scored := s.engine.Retrieve(ctx, retrieval.Query{
			ProjectType:  args.ProjectType,
			Technologies: args.Technologies,
			Phase:        args.Phase,
			Text:         args.Text,
			Limit:        args.Limit,
		})
		out := lessonsRetrieveOutput{Count: len(scored)}
		for _, sl := range scored {
			out.Lessons = append(out.Lessons, viewScoredLesson(sl))
		}
		return textResult("%d lessons.", out.Count), out, nil
	})

	// lesson_vote
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "lesson_vote",
		Description: "Vote a lesson up or down to adjust its confidence",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args lessonVoteInput) (*mcp.CallToolResult, lessonView, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "lesson_vote")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "lesson_vote")
			s.metrics.RecordInvocation(ctx, "lesson_vote", time.Since(start), toolErr)
		}()

		var (
			l   *lessons.Lesson
			err error
		)
		switch args.Vote {
		case "up":
			l, err = s.votes.Upvote(ctx, args.Title)
		case "down":
			l, err = s.votes.Downvote(ctx, args.Title)
		default:
			toolErr = lessons.ErrInvalidLesson
			return nil, lessonView{}, toolErr
		}
		if err != nil {
			toolErr = err
			return nil, lessonView{}, err
		}
		return textResult("Confidence now %.2f.", l.Confidence), viewLesson(l, 0), nil
	})

	// lesson_remove
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "lesson_remove",
		Description: "Remove a lesson permanently",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args lessonRemoveInput) (*mcp.CallToolResult, lessonRemoveOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "lesson_remove")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "lesson_remove")
			s.metrics.RecordInvocation(ctx, "lesson_remove", time.Since(start), toolErr)
		}()

		if err := s.votes.Remove(ctx, args.Title); err != nil {
			toolErr = err
			return nil, lessonRemoveOutput{}, err
		}
		return textResult("Lesson %q removed.", args.Title), lessonRemoveOutput{Removed: true}, nil
	})

	// lesson_stats
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "lesson_stats",
		Description: "Summarize the knowledge base",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, lessonStatsOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "lesson_stats")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "lesson_stats")
			s.metrics.RecordInvocation(ctx, "lesson_stats", time.Since(start), toolErr)
		}()

		stats, err := lessons.ComputeStats(ctx, s.repo)
		if err != nil {
			toolErr = err
			return nil, lessonStatsOutput{}, err
		}
		out := lessonStatsOutput{
			Total:               stats.Total,
			ByCategory:          make(map[string]int, len(stats.ByCategory)),
			AvgConfidence:       stats.AvgConfidence,
			HighFrequency:       stats.HighFrequency,
			LowConfidenceTitles: stats.LowConfidenceTitles,
			DuplicateTitles:     stats.DuplicateTitles,
		}
		for c, n := range stats.ByCategory {
			out.ByCategory[string(c)] = n
		}
		for _, t := range stats.TopByFrequency {
			out.TopByFrequency = append(out.TopByFrequency, topLessonView{Title: t.Title, Frequency: t.Frequency})
		}
		return textResult("%d lessons, mean confidence %.2f.", out.Total, out.AvgConfidence), out, nil
	})

	// stack_suggest
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "stack_suggest",
		Description: "Suggest technology stacks for a project type based on accumulated lessons",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args stackSuggestInput) (*mcp.CallToolResult, metalearnSuggestionView, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "stack_suggest")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "stack_suggest")
			s.metrics.RecordInvocation(ctx, "stack_suggest", time.Since(start), toolErr)
		}()

		suggestion, err := s.recommender.SuggestStack(ctx, args.ProjectType)
		if err != nil {
			toolErr = err
			return nil, metalearnSuggestionView{}, err
		}
		view := metalearnSuggestionView{
			ProjectType: suggestion.ProjectType,
			Layers:      make(map[string][]rankedTechView, len(suggestion.Layers)),
			SampleSize:  suggestion.SampleSize,
		}
		for layer, ranked := range suggestion.Layers {
			for _, rt := range ranked {
				view.Layers[layer] = append(view.Layers[layer], rankedTechView{
					Technology: rt.Technology,
					Weight:     rt.Weight,
				})
			}
		}
		return textResult("Suggestion from %d stack lessons.", view.SampleSize), view, nil
	})
}

type rankedTechView struct {
	Technology string  `json:"technology" jsonschema:"Technology name"`
	Weight     float64 `json:"weight" jsonschema:"Accumulated evidence weight"`
}

type metalearnSuggestionView struct {
	ProjectType string                      `json:"project_type" jsonschema:"Project type the suggestion is for"`
	Layers      map[string][]rankedTechView `json:"layers" jsonschema:"Ranked technologies per stack layer"`
	SampleSize  int                         `json:"sample_size" jsonschema:"Number of contributing stack lessons"`
}
