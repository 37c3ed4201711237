// Package lessons defines the reusable knowledge records accumulated
// across projects and the repository interface that stores them.
package lessons

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors for lesson operations.
var (
	ErrLessonNotFound  = errors.New("lesson not found")
	ErrInvalidLesson   = errors.New("invalid lesson")
	ErrVersionConflict = errors.New("lesson version conflict")
)

// Category classifies what a lesson is about.
type Category string

const (
	CategoryTechStack    Category = "tech_stack"
	CategoryArchitecture Category = "architecture"
	CategoryWorkflow     Category = "workflow"
	CategoryTooling      Category = "tooling"
	CategoryTesting      Category = "testing"
	CategoryDeployment   Category = "deployment"
	CategoryPitfall      Category = "pitfall"
)

// Valid reports whether the category is one of the defined categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryTechStack, CategoryArchitecture, CategoryWorkflow,
		CategoryTooling, CategoryTesting, CategoryDeployment, CategoryPitfall:
		return true
	}
	return false
}

// Lesson is one reusable piece of knowledge. Confidence moves with votes
// and reinforcement; frequency counts how many projects contributed it.
type Lesson struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Category       Category `json:"category"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`

	// Context describes when the lesson applies.
	Context string `json:"context,omitempty"`

	// Confidence is clamped to [0,1] on every mutation.
	Confidence float64 `json:"confidence"`

	// Frequency is how many times this lesson has been observed.
	Frequency int `json:"frequency"`

	// Upvotes and Downvotes count explicit feedback; votes also move
	// Confidence by the configured delta.
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`

	// ProjectTypes scopes the lesson; empty means applicable to all.
	ProjectTypes []string `json:"project_types,omitempty"`

	// TechStacks lists the technologies the lesson applies to.
	TechStacks []string `json:"tech_stacks,omitempty"`

	Tags []string `json:"tags,omitempty"`

	// SourceProjects records which projects contributed the lesson.
	SourceProjects []string `json:"source_projects,omitempty"`

	// Version supports optimistic concurrency on updates.
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required fields and bounds.
func (l *Lesson) Validate() error {
	if l == nil {
		return ErrInvalidLesson
	}
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidLesson)
	}
	if !l.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidLesson, l.Category)
	}
	if l.Confidence < 0 || l.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be in [0,1], got %g", ErrInvalidLesson, l.Confidence)
	}
	if l.Frequency < 0 {
		return fmt.Errorf("%w: frequency must be non-negative", ErrInvalidLesson)
	}
	if l.Upvotes < 0 || l.Downvotes < 0 {
		return fmt.Errorf("%w: vote counters must be non-negative", ErrInvalidLesson)
	}
	return nil
}

// NormalizedTitle is the dedup key: lowercased, whitespace-collapsed.
func (l *Lesson) NormalizedTitle() string {
	return NormalizeTitle(l.Title)
}

// NormalizeTitle lowercases and collapses internal whitespace.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// ClampConfidence bounds a confidence value to [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Clone returns a deep copy.
func (l *Lesson) Clone() *Lesson {
	if l == nil {
		return nil
	}
	out := *l
	out.ProjectTypes = append([]string(nil), l.ProjectTypes...)
	out.TechStacks = append([]string(nil), l.TechStacks...)
	out.Tags = append([]string(nil), l.Tags...)
	out.SourceProjects = append([]string(nil), l.SourceProjects...)
	return &out
}

// Document renders the lesson as text for semantic indexing.
func (l *Lesson) Document() string {
	parts := []string{l.Title}
	if l.Description != "" {
		parts = append(parts, l.Description)
	}
	if l.Recommendation != "" {
		parts = append(parts, l.Recommendation)
	}
	if l.Context != "" {
		parts = append(parts, l.Context)
	}
	if len(l.TechStacks) > 0 {
		parts = append(parts, strings.Join(l.TechStacks, " "))
	}
	return strings.Join(parts, "\n")
}
