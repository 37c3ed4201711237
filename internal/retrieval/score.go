package retrieval

import (
	"strings"

	"github.com/fyrsmithlabs/playbookd/internal/lessons"
)

// Ranking weights. With the semantic signal available the three signals
// weigh 0.4/0.3/0.3; without it the remaining two renormalize to 0.6/0.4.
const (
	weightCategory = 0.4
	weightKeyword  = 0.3
	weightSemantic = 0.3

	weightCategoryNoSem = 0.6
	weightKeywordNoSem  = 0.4
)

// phaseCategories maps each workflow phase to the lesson categories that
// are on-topic for it. Pitfalls are on-topic everywhere.
var phaseCategories = map[string][]lessons.Category{
	"discovery":      {lessons.CategoryWorkflow, lessons.CategoryTechStack, lessons.CategoryPitfall},
	"planning":       {lessons.CategoryWorkflow, lessons.CategoryArchitecture, lessons.CategoryTechStack, lessons.CategoryPitfall},
	"roadmap":        {lessons.CategoryWorkflow, lessons.CategoryPitfall},
	"implementation": {lessons.CategoryArchitecture, lessons.CategoryTesting, lessons.CategoryTooling, lessons.CategoryTechStack, lessons.CategoryPitfall},
	"deployment":     {lessons.CategoryDeployment, lessons.CategoryPitfall},
}

// categoryScore is 1 when the lesson's category is on-topic for the phase.
func categoryScore(l *lessons.Lesson, phase string) float64 {
	for _, c := range phaseCategories[phase] {
		if l.Category == c {
			return 1
		}
	}
	return 0
}

// eligible filters lessons by scope. A lesson is kept when its project
// types match (empty means universal) or it has an actual tech-stack
// overlap with the query; pitfalls are always kept since cross-cutting
// mistakes transfer between stacks. A lesson with no stacks listed
// carries no overlap evidence and is kept only on a type match.
func eligible(l *lessons.Lesson, projectType string, technologies []string) bool {
	if l.Category == lessons.CategoryPitfall {
		return true
	}
	typeMatch := len(l.ProjectTypes) == 0
	for _, t := range l.ProjectTypes {
		if strings.EqualFold(t, projectType) {
			typeMatch = true
			break
		}
	}
	if typeMatch {
		return true
	}
	for _, ls := range l.TechStacks {
		for _, t := range technologies {
			if strings.EqualFold(ls, t) {
				return true
			}
		}
	}
	return false
}

// stringSet lowercases and trims a list into a set, dropping blanks.
func stringSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out[v] = struct{}{}
	}
	return out
}

// jaccard is |a∩b| / |a∪b|, 0 when either set is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// keywordScore is the Jaccard overlap between the query's technology set
// and the lesson's tech stacks and tags.
func keywordScore(queryTechs map[string]struct{}, l *lessons.Lesson) float64 {
	return jaccard(queryTechs, stringSet(append(append([]string(nil), l.TechStacks...), l.Tags...)))
}

// combine folds the signals into a final score. semantic < 0 marks the
// signal unavailable; the lexical weights then renormalize so a strong
// category plus keyword match can still reach the top of the ranking.
func combine(category, keyword, semantic, confidence float64) float64 {
	var base float64
	if semantic >= 0 {
		base = weightCategory*category + weightKeyword*keyword + weightSemantic*semantic
	} else {
		base = weightCategoryNoSem*category + weightKeywordNoSem*keyword
	}
	return base * confidence
}
