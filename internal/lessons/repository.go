package lessons

import (
	"context"
	"sort"
	"sync"
)

// ListFilter narrows repository listings. Zero value matches everything.
type ListFilter struct {
	// Categories restricts to the given categories when non-empty.
	Categories []Category

	// MinConfidence drops lessons below the threshold.
	MinConfidence float64
}

func (f ListFilter) matches(l *Lesson) bool {
	if l.Confidence < f.MinConfidence {
		return false
	}
	if len(f.Categories) == 0 {
		return true
	}
	for _, c := range f.Categories {
		if l.Category == c {
			return true
		}
	}
	return false
}

// Repository stores lessons. Update enforces optimistic concurrency: it
// fails with ErrVersionConflict when the stored version no longer matches
// the caller's copy.
type Repository interface {
	Insert(ctx context.Context, l *Lesson) error
	Get(ctx context.Context, id string) (*Lesson, error)
	Update(ctx context.Context, l *Lesson) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]*Lesson, error)

	// FindByNormalizedTitle locates the dedup candidate for a
	// title/category pair, or ErrLessonNotFound.
	FindByNormalizedTitle(ctx context.Context, normalizedTitle string, category Category) (*Lesson, error)

	// GetByTitle matches a lesson by case-insensitive trimmed title,
	// regardless of category. With several matches the most recently
	// updated one wins. ErrLessonNotFound when no title matches.
	GetByTitle(ctx context.Context, title string) (*Lesson, error)
}

// MemoryRepository is an in-memory Repository for tests and ephemeral runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	lessons map[string]*Lesson
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{lessons: make(map[string]*Lesson)}
}

func (m *MemoryRepository) Insert(_ context.Context, l *Lesson) error {
	if err := l.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := l.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	m.lessons[stored.ID] = stored
	l.Version = stored.Version
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lessons[id]
	if !ok {
		return nil, ErrLessonNotFound
	}
	return l.Clone(), nil
}

func (m *MemoryRepository) Update(_ context.Context, l *Lesson) error {
	if err := l.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.lessons[l.ID]
	if !ok {
		return ErrLessonNotFound
	}
	if current.Version != l.Version {
		return ErrVersionConflict
	}
	stored := l.Clone()
	stored.Version++
	m.lessons[l.ID] = stored
	l.Version = stored.Version
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lessons[id]; !ok {
		return ErrLessonNotFound
	}
	delete(m.lessons, id)
	return nil
}

func (m *MemoryRepository) List(_ context.Context, filter ListFilter) ([]*Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Lesson, 0, len(m.lessons))
	for _, l := range m.lessons {
		if filter.matches(l) {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *MemoryRepository) FindByNormalizedTitle(_ context.Context, normalizedTitle string, category Category) (*Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.lessons {
		if l.Category == category && l.NormalizedTitle() == normalizedTitle {
			return l.Clone(), nil
		}
	}
	return nil, ErrLessonNotFound
}

func (m *MemoryRepository) GetByTitle(_ context.Context, title string) (*Lesson, error) {
	normalized := NormalizeTitle(title)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var match *Lesson
	for _, l := range m.lessons {
		if l.NormalizedTitle() != normalized {
			continue
		}
		if match == nil || l.UpdatedAt.After(match.UpdatedAt) {
			match = l
		}
	}
	if match == nil {
		return nil, ErrLessonNotFound
	}
	return match.Clone(), nil
}
