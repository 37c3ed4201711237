package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/playbookd/internal/session"
)

// sessionView is the session shape returned by the project tools.
type sessionView struct {
	ID              string              `json:"id" jsonschema:"Session ID"`
	Objective       string              `json:"objective" jsonschema:"Project objective"`
	ProjectType     string              `json:"project_type,omitempty" jsonschema:"Project type"`
	Scale           string              `json:"scale,omitempty" jsonschema:"Target scale"`
	Mode            string              `json:"autonomy_mode" jsonschema:"Autonomy mode"`
	CurrentPhase    string              `json:"current_phase" jsonschema:"Current workflow phase"`
	PendingQuestion string              `json:"pending_question,omitempty" jsonschema:"Question the session is waiting on"`
	TechStack       techStackView       `json:"tech_stack" jsonschema:"Chosen technology stack"`
	Features        []featureView       `json:"features,omitempty" jsonschema:"Roadmap features"`
	PhaseLessons    []phaseLessonView   `json:"phase_lessons,omitempty" jsonschema:"Lessons attached at phase entry"`
	CreatedAt       string              `json:"created_at" jsonschema:"Creation time (RFC 3339)"`
	UpdatedAt       string              `json:"updated_at" jsonschema:"Last update time (RFC 3339)"`
}

type techStackView struct {
	Frontend string `json:"frontend,omitempty" jsonschema:"Frontend technology"`
	Backend  string `json:"backend,omitempty" jsonschema:"Backend technology"`
	Database string `json:"database,omitempty" jsonschema:"Database technology"`
}

type featureView struct {
	Name   string `json:"name" jsonschema:"Feature name"`
	Status string `json:"status" jsonschema:"Feature status"`
}

type phaseLessonView struct {
	Phase          string  `json:"phase" jsonschema:"Phase the lesson was attached to"`
	LessonID       string  `json:"lesson_id" jsonschema:"Lesson ID"`
	Title          string  `json:"title" jsonschema:"Lesson title"`
	Category       string  `json:"category" jsonschema:"Lesson category"`
	Recommendation string  `json:"recommendation" jsonschema:"What to do about it"`
	Relevance      float64 `json:"relevance" jsonschema:"Retrieval relevance score"`
}

func viewSession(s *session.Session) sessionView {
	v := sessionView{
		ID:           s.ID,
		Objective:    s.Objective,
		ProjectType:  string(s.ProjectType),
		Scale:        string(s.Scale),
		Mode:         string(s.Mode),
		CurrentPhase: string(s.CurrentPhase),
		TechStack: techStackView{
			Frontend: s.TechStack.Frontend,
			Backend:  s.TechStack.Backend,
			Database: s.TechStack.Database,
		},
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
	if s.PendingQuestion != nil {
		v.PendingQuestion = s.PendingQuestion.Text
	}
	for _, f := range s.Features {
		v.Features = append(v.Features, featureView{Name: f.Name, Status: string(f.Status)})
	}
	for _, phase := range []session.Phase{
		session.PhaseDiscovery, session.PhasePlanning, session.PhaseRoadmap,
		session.PhaseImplementation, session.PhaseDeployment,
	} {
		for _, ref := range s.PhaseLessons[phase] {
			v.PhaseLessons = append(v.PhaseLessons, phaseLessonView{
				Phase:          string(phase),
				LessonID:       ref.LessonID,
				Title:          ref.Title,
				Category:       ref.Category,
				Recommendation: ref.Recommendation,
				Relevance:      ref.Relevance,
			})
		}
	}
	return v
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

type projectStartInput struct {
	Objective string `json:"objective" jsonschema:"required,What the project should achieve"`
	Mode      string `json:"mode,omitempty" jsonschema:"Autonomy mode: supervised (default) autonomous or plan_only"`
}

type projectAnswerInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session ID"`
	Answer    string `json:"answer" jsonschema:"required,Answer to the pending question"`
}

type projectIDInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session ID"`
}

type projectCompleteInput struct {
	SessionID     string   `json:"session_id" jsonschema:"required,Session ID"`
	Rating        int      `json:"rating,omitempty" jsonschema:"Overall rating 1-5"`
	SuccessScore  float64  `json:"success_score,omitempty" jsonschema:"Success score in [0 1]; derived from rating when omitted"`
	WhatWorked    []string `json:"what_worked,omitempty" jsonschema:"Things that went well"`
	WhatDidntWork []string `json:"what_didnt_work,omitempty" jsonschema:"Things that went badly"`
}

type projectListOutput struct {
	Sessions []sessionView `json:"sessions" jsonschema:"All known sessions newest first"`
	Count    int           `json:"count" jsonschema:"Number of sessions"`
}

func (s *Server) registerProjectTools() {
	// project_start
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_start",
		Description: "Start a project-definition session; begins the discovery questions",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args projectStartInput) (*mcp.CallToolResult, sessionView, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "project_start")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "project_start")
			s.metrics.RecordInvocation(ctx, "project_start", time.Since(start), toolErr)
		}()

		sess, err := s.machine.Start(ctx, args.Objective, args.Mode)
		if err != nil {
			toolErr = err
			return nil, sessionView{}, err
		}
		view := viewSession(sess)
		return textResult("Session %s started. %s", sess.ID, view.PendingQuestion), view, nil
	})

	// project_answer
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_answer",
		Description: "Answer the session's pending question",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args projectAnswerInput) (*mcp.CallToolResult, sessionView, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "project_answer")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "project_answer")
			s.metrics.RecordInvocation(ctx, "project_answer", time.Since(start), toolErr)
		}()

		sess, err := s.machine.Answer(ctx, args.SessionID, args.Answer)
		if err != nil {
			toolErr = err
			return nil, sessionView{}, err
		}
		view := viewSession(sess)
		msg := fmt.Sprintf("Phase: %s.", view.CurrentPhase)
		if view.PendingQuestion != "" {
			msg += " " + view.PendingQuestion
		}
		return textResult("%s", msg), view, nil
	})

	// project_continue
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_continue",
		Description: "Show where a session stands: the pending question or current phase",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args projectIDInput) (*mcp.CallToolResult, sessionView, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "project_continue")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "project_continue")
			s.metrics.RecordInvocation(ctx, "project_continue", time.Since(start), toolErr)
		}()

		sess, err := s.machine.Continue(ctx, args.SessionID)
		if err != nil {
			toolErr = err
			return nil, sessionView{}, err
		}
		view := viewSession(sess)
		msg := fmt.Sprintf("Session %s is in %s.", sess.ID, view.CurrentPhase)
		if view.PendingQuestion != "" {
			msg += " Waiting on: " + view.PendingQuestion
		}
		return textResult("%s", msg), view, nil
	})

	// project_advance
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_advance",
		Description: "Advance the session one phase forward after its preconditions are met",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args projectIDInput) (*mcp.CallToolResult, sessionView, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "project_advance")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "project_advance")
			s.metrics.RecordInvocation(ctx, "project_advance", time.Since(start), toolErr)
		}()

		sess, err := s.machine.AdvancePhase(ctx, args.SessionID)
		if err != nil {
			toolErr = err
			return nil, sessionView{}, err
		}
		view := viewSession(sess)
		return textResult("Advanced to %s with %d lessons attached.", view.CurrentPhase, len(sess.PhaseLessons[sess.CurrentPhase])), view, nil
	})

	// project_reopen
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_reopen",
		Description: "Reopen the previous phase to revisit its decisions",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args projectIDInput) (*mcp.CallToolResult, sessionView, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "project_reopen")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "project_reopen")
			s.metrics.RecordInvocation(ctx, "project_reopen", time.Since(start), toolErr)
		}()

		sess, err := s.machine.ReopenPhase(ctx, args.SessionID)
		if err != nil {
			toolErr = err
			return nil, sessionView{}, err
		}
		view := viewSession(sess)
		return textResult("Reopened %s.", view.CurrentPhase), view, nil
	})

	// project_complete
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_complete",
		Description: "Complete the project and record its outcome; lessons are extracted from it",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args projectCompleteInput) (*mcp.CallToolResult, sessionView, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "project_complete")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "project_complete")
			s.metrics.RecordInvocation(ctx, "project_complete", time.Since(start), toolErr)
		}()

		sess, err := s.machine.Complete(ctx, args.SessionID, &session.OutcomeRecord{
			Rating:        args.Rating,
			SuccessScore:  args.SuccessScore,
			WhatWorked:    args.WhatWorked,
			WhatDidntWork: args.WhatDidntWork,
		})
		if err != nil {
			toolErr = err
			return nil, sessionView{}, err
		}
		return textResult("Session %s completed.", sess.ID), viewSession(sess), nil
	})

	// project_status
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_status",
		Description: "Show the full state of a session",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args projectIDInput) (*mcp.CallToolResult, sessionView, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "project_status")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "project_status")
			s.metrics.RecordInvocation(ctx, "project_status", time.Since(start), toolErr)
		}()

		sess, err := s.machine.Get(ctx, args.SessionID)
		if err != nil {
			toolErr = err
			return nil, sessionView{}, err
		}
		view := viewSession(sess)
		return textResult("Session %s: phase %s.", sess.ID, view.CurrentPhase), view, nil
	})

	// project_list
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_list",
		Description: "List all sessions, newest first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, projectListOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "project_list")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "project_list")
			s.metrics.RecordInvocation(ctx, "project_list", time.Since(start), toolErr)
		}()

		sessions, err := s.machine.List(ctx)
		if err != nil {
			toolErr = err
			return nil, projectListOutput{}, err
		}
		out := projectListOutput{Count: len(sessions)}
		for _, sess := range sessions {
			out.Sessions = append(out.Sessions, viewSession(sess))
		}
		return textResult("%d sessions.", out.Count), out, nil
	})
}
