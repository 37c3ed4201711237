package retrieval

import (
	"context"

	"github.com/fyrsmithlabs/playbookd/internal/lessons"
	"github.com/fyrsmithlabs/playbookd/internal/vectorstore"
)

// SemanticIndex exposes the vector backend to retrieval and to lesson
// writers. The repository stays the source of truth; the index is a
// best-effort mirror.
type SemanticIndex struct {
	store vectorstore.Store
}

// NewSemanticIndex wraps a vector store.
func NewSemanticIndex(store vectorstore.Store) *SemanticIndex {
	return &SemanticIndex{store: store}
}

var _ lessons.SemanticIndex = (*SemanticIndex)(nil)

// Index mirrors a lesson into the vector store, replacing any previous
// version of the document.
func (s *SemanticIndex) Index(ctx context.Context, l *lessons.Lesson) error {
	return s.store.Add(ctx, []vectorstore.Document{{
		ID:      l.ID,
		Content: l.Document(),
		Metadata: map[string]string{
			"category": string(l.Category),
			"title":    l.Title,
		},
	}})
}

// Remove drops a lesson from the index.
func (s *SemanticIndex) Remove(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Similarities returns cosine similarity per lesson id for the query text.
func (s *SemanticIndex) Similarities(ctx context.Context, text string, limit int) (map[string]float64, error) {
	results, err := s.store.Query(ctx, text, limit)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(results))
	for _, r := range results {
		out[r.ID] = float64(r.Similarity)
	}
	return out, nil
}
