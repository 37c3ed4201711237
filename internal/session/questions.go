package session

import "strings"

// discoveryQuestion is one step of the fixed discovery script. Numbered
// options map to canonical values; any other answer is taken verbatim
// (lowercased, trimmed) as a free-text choice.
type discoveryQuestion struct {
	text    string
	options map[string]string
	apply   func(s *Session, value string)
}

var discoveryScript = []discoveryQuestion{
	{
		text: "What are you building? (1) SaaS product (2) API service (3) AI agent (4) multi-agent system (5) platform",
		options: map[string]string{
			"1": string(ProjectTypeSaaS),
			"2": string(ProjectTypeAPI),
			"3": string(ProjectTypeAgent),
			"4": string(ProjectTypeMultiAgent),
			"5": string(ProjectTypePlatform),
		},
		apply: func(s *Session, value string) { s.ProjectType = ProjectType(value) },
	},
	{
		text: "What scale are you targeting initially? (1) MVP (2) growth (3) scale (4) enterprise",
		options: map[string]string{
			"1": string(ScaleMVP),
			"2": string(ScaleGrowth),
			"3": string(ScaleScale),
			"4": string(ScaleEnterprise),
		},
		apply: func(s *Session, value string) { s.Scale = Scale(value) },
	},
	{
		text: "Frontend? (1) React + Vite (2) Next.js (3) Vue/Nuxt (4) none",
		options: map[string]string{
			"1": "react",
			"2": "nextjs",
			"3": "vue",
			"4": "none",
		},
		apply: func(s *Session, value string) { s.TechStack.Frontend = value },
	},
	{
		text: "Backend? (1) FastAPI (2) Express (3) Django (4) serverless",
		options: map[string]string{
			"1": "fastapi",
			"2": "express",
			"3": "django",
			"4": "serverless",
		},
		apply: func(s *Session, value string) { s.TechStack.Backend = value },
	},
	{
		text: "Database? (1) PostgreSQL (2) MongoDB (3) SQLite (4) Firebase",
		options: map[string]string{
			"1": "postgresql",
			"2": "mongodb",
			"3": "sqlite",
			"4": "firebase",
		},
		apply: func(s *Session, value string) { s.TechStack.Database = value },
	},
}

// resolve maps a raw answer to its canonical value.
func (q discoveryQuestion) resolve(answer string) string {
	key := strings.ToLower(strings.TrimSpace(answer))
	if v, ok := q.options[key]; ok {
		return v
	}
	// Also accept the canonical values themselves ("saas", "react", ...).
	for _, v := range q.options {
		if key == v {
			return v
		}
	}
	return key
}

// defaultFeatures is the initial roadmap breakdown seeded when a session
// enters the roadmap phase. The caller refines it through the artifact
// generator; the machine only tracks progression.
func defaultFeatures() []Feature {
	return []Feature{
		{Name: "foundation", Description: "Project scaffolding, configuration, and CI wiring", Status: FeaturePending},
		{Name: "data-model", Description: "Core schema and persistence layer", Status: FeaturePending},
		{Name: "core-logic", Description: "Primary domain functionality", Status: FeaturePending},
		{Name: "interface", Description: "API surface or user interface", Status: FeaturePending},
		{Name: "hardening", Description: "Auth, validation, error handling, and tests", Status: FeaturePending},
	}
}
