// Package metalearn turns completed-project outcomes into reusable
// lessons and aggregates them into stack recommendations.
package metalearn

import (
	"strings"

	"github.com/fyrsmithlabs/playbookd/internal/lessons"
)

// categoryKeywords drive the note classifier. First match wins, in the
// order below; notes that match nothing fall back per note polarity.
var categoryKeywords = []struct {
	category lessons.Category
	words    []string
}{
	{lessons.CategoryArchitecture, []string{
		"architecture", "microservice", "monolith", "event-driven",
		"queue", "cache", "scaling", "schema", "api design", "modular",
	}},
	{lessons.CategoryTechStack, []string{
		"react", "nextjs", "next.js", "vue", "svelte",
		"fastapi", "express", "django", "flask", "serverless",
		"postgresql", "postgres", "mongodb", "sqlite", "firebase",
		"redis", "framework", "library", "sdk",
	}},
	{lessons.CategoryTesting, []string{
		"test", "testing", "coverage", "tdd", "mock", "regression",
	}},
	{lessons.CategoryDeployment, []string{
		"deploy", "release", "rollout", "kubernetes", "docker", "terraform",
	}},
	{lessons.CategoryTooling, []string{
		"ci", "cd", "linter", "formatter", "build tool", "debugger", "tooling",
	}},
	{lessons.CategoryWorkflow, []string{
		"review", "standup", "planning", "estimate", "scope",
		"iteration", "documentation", "process",
	}},
}

// classifyNote assigns a category to an outcome note. Failure notes
// become pitfalls unless they are about testing, which stays actionable
// as a testing lesson; unmatched success notes read as workflow lessons.
func classifyNote(note string, failure bool) lessons.Category {
	lower := strings.ToLower(note)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(lower, w) {
				if failure && ck.category != lessons.CategoryTesting {
					return lessons.CategoryPitfall
				}
				return ck.category
			}
		}
	}
	if failure {
		return lessons.CategoryPitfall
	}
	return lessons.CategoryWorkflow
}

// noteTitle derives the dedup-friendly short title from a note: its first
// sentence, capped in length.
func noteTitle(note string) string {
	note = strings.TrimSpace(note)
	for _, sep := range []string{". ", "; ", "\n"} {
		if i := strings.Index(note, sep); i > 0 {
			note = note[:i]
			break
		}
	}
	const maxTitle = 120
	if len(note) > maxTitle {
		cut := note[:maxTitle]
		if i := strings.LastIndex(cut, " "); i > 0 {
			cut = cut[:i]
		}
		note = cut
	}
	return note
}
