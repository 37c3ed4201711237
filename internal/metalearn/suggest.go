package metalearn

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/playbookd/internal/lessons"
	"github.com/fyrsmithlabs/playbookd/internal/session"
)

// techLayers maps known technologies to their stack layer. Technologies
// outside the table are reported under "other".
var techLayers = map[string]string{
	"react":   session.LayerFrontend,
	"nextjs":  session.LayerFrontend,
	"next.js": session.LayerFrontend,
	"vue":     session.LayerFrontend,
	"svelte":  session.LayerFrontend,

	"fastapi":    session.LayerBackend,
	"express":    session.LayerBackend,
	"django":     session.LayerBackend,
	"flask":      session.LayerBackend,
	"serverless": session.LayerBackend,
	"rails":      session.LayerBackend,

	"postgresql": session.LayerDatabase,
	"postgres":   session.LayerDatabase,
	"mongodb":    session.LayerDatabase,
	"sqlite":     session.LayerDatabase,
	"firebase":   session.LayerDatabase,
	"mysql":      session.LayerDatabase,
	"redis":      session.LayerDatabase,
}

// RankedTech is one technology with its accumulated evidence weight.
type RankedTech struct {
	Technology string  `json:"technology"`
	Weight     float64 `json:"weight"`
}

// StackSuggestion groups ranked technologies by layer.
type StackSuggestion struct {
	ProjectType string                  `json:"project_type"`
	Layers      map[string][]RankedTech `json:"layers"`

	// SampleSize is how many tech_stack lessons contributed evidence.
	SampleSize int `json:"sample_size"`
}

// Recommender aggregates tech_stack lessons into stack suggestions.
// It is a pure read over the repository: no scoring engine, no semantic
// backend.
type Recommender struct {
	repo lessons.Repository
}

// NewRecommender creates a recommender.
func NewRecommender(repo lessons.Repository) (*Recommender, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	return &Recommender{repo: repo}, nil
}

// SuggestStack weighs each technology by the summed confidence×frequency
// of the tech_stack lessons that mention it for the given project type.
func (r *Recommender) SuggestStack(ctx context.Context, projectType string) (*StackSuggestion, error) {
	all, err := r.repo.List(ctx, lessons.ListFilter{
		Categories: []lessons.Category{lessons.CategoryTechStack},
	})
	if err != nil {
		return nil, err
	}

	weights := make(map[string]float64)
	sample := 0
	for _, l := range all {
		if !appliesToType(l, projectType) {
			continue
		}
		sample++
		evidence := l.Confidence * float64(l.Frequency)
		for _, tech := range l.TechStacks {
			weights[strings.ToLower(tech)] += evidence
		}
	}

	layers := make(map[string][]RankedTech)
	for tech, w := range weights {
		layer, ok := techLayers[tech]
		if !ok {
			layer = "other"
		}
		layers[layer] = append(layers[layer], RankedTech{Technology: tech, Weight: w})
	}
	for layer := range layers {
		ranked := layers[layer]
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Weight != ranked[j].Weight {
				return ranked[i].Weight > ranked[j].Weight
			}
			return ranked[i].Technology < ranked[j].Technology
		})
		layers[layer] = ranked
	}

	return &StackSuggestion{
		ProjectType: projectType,
		Layers:      layers,
		SampleSize:  sample,
	}, nil
}

func appliesToType(l *lessons.Lesson, projectType string) bool {
	if len(l.ProjectTypes) == 0 {
		return true
	}
	for _, t := range l.ProjectTypes {
		if strings.EqualFold(t, projectType) {
			return true
		}
	}
	return false
}
