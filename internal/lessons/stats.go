package lessons

import (
	"context"
	"sort"
)

// TopLesson is one entry of the frequency leaderboard.
type TopLesson struct {
	Title     string `json:"title"`
	Frequency int    `json:"frequency"`
}

// Stats summarizes the knowledge base, including the quality signals an
// operator acts on: low-confidence titles worth pruning and normalized
// titles stored more than once.
type Stats struct {
	Total               int              `json:"total"`
	ByCategory          map[Category]int `json:"by_category"`
	AvgConfidence       float64          `json:"avg_confidence"`
	HighFrequency       int              `json:"high_frequency"`
	LowConfidenceTitles []string         `json:"low_confidence_titles,omitempty"`
	DuplicateTitles     []string         `json:"duplicate_titles,omitempty"`
	TopByFrequency      []TopLesson      `json:"top_by_frequency,omitempty"`
}

const (
	// highFrequencyThreshold marks lessons reinforced across several projects.
	highFrequencyThreshold = 3

	// lowConfidenceThreshold flags lessons below neutral usefulness.
	lowConfidenceThreshold = 0.5

	maxLowConfidenceTitles = 10
	maxTopLessons          = 5
)

// ComputeStats aggregates the repository contents.
func ComputeStats(ctx context.Context, repo Repository) (*Stats, error) {
	all, err := repo.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	stats := &Stats{ByCategory: make(map[Category]int)}
	var sum float64
	titleCounts := make(map[string]int, len(all))
	for _, l := range all {
		stats.Total++
		stats.ByCategory[l.Category]++
		sum += l.Confidence
		titleCounts[l.NormalizedTitle()]++
		if l.Frequency >= highFrequencyThreshold {
			stats.HighFrequency++
		}
		if l.Confidence < lowConfidenceThreshold && len(stats.LowConfidenceTitles) < maxLowConfidenceTitles {
			stats.LowConfidenceTitles = append(stats.LowConfidenceTitles, l.Title)
		}
	}
	if stats.Total > 0 {
		stats.AvgConfidence = sum / float64(stats.Total)
	}
	for title, n := range titleCounts {
		if n > 1 {
			stats.DuplicateTitles = append(stats.DuplicateTitles, title)
		}
	}
	sort.Strings(stats.DuplicateTitles)

	byFrequency := append([]*Lesson(nil), all...)
	sort.SliceStable(byFrequency, func(i, j int) bool {
		return byFrequency[i].Frequency > byFrequency[j].Frequency
	})
	for i, l := range byFrequency {
		if i == maxTopLessons {
			break
		}
		stats.TopByFrequency = append(stats.TopByFrequency, TopLesson{Title: l.Title, Frequency: l.Frequency})
	}
	return stats, nil
}
