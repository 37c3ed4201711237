// Package vectorstore provides the embedded vector database used for the
// semantic retrieval signal.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/fyrsmithlabs/playbookd/internal/embeddings"
)

// ErrNotFound is returned when a document id is absent.
var ErrNotFound = errors.New("vectorstore: document not found")

// Document is a unit of indexed text with string metadata.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Result is one similarity match.
type Result struct {
	ID         string
	Content    string
	Metadata   map[string]string
	Similarity float32
}

// Store is the vector index over lesson documents.
type Store interface {
	Add(ctx context.Context, docs []Document) error
	Query(ctx context.Context, text string, limit int) ([]Result, error)
	Delete(ctx context.Context, id string) error
	Count() int
	Close() error
}

// lessonCollection is the single collection holding lesson documents.
const lessonCollection = "lessons"

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty selects in-memory.
	Path string

	// Compress gzips persisted segments.
	Compress bool
}

// ChromemStore implements Store on chromem-go with locally generated
// embeddings. Documents are embedded at insert time with the passage
// prefix; the collection's embedding func serves queries.
type ChromemStore struct {
	db       *chromem.DB
	provider embeddings.Provider

	mu         sync.Mutex
	collection *chromem.Collection
}

var _ Store = (*ChromemStore)(nil)

// NewChromemStore opens (or creates) the store.
func NewChromemStore(cfg ChromemConfig, provider embeddings.Provider) (*ChromemStore, error) {
	if provider == nil {
		return nil, errors.New("vectorstore: embedding provider is required")
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
	}

	s := &ChromemStore{db: db, provider: provider}
	s.collection, err = db.GetOrCreateCollection(lessonCollection, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	return s, nil
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.provider.EmbedQuery(ctx, text)
	}
}

// Add indexes documents, replacing any existing ones with the same ids.
func (s *ChromemStore) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := s.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embed documents: got %d embeddings for %d documents", len(vecs), len(docs))
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  d.Metadata,
			Embedding: vecs[i],
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

// Query returns up to limit matches by cosine similarity.
func (s *ChromemStore) Query(ctx context.Context, text string, limit int) ([]Result, error) {
	if text == "" || limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	count := s.collection.Count()
	s.mu.Unlock()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	matches, err := s.collection.Query(ctx, text, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}
	out := make([]Result, len(matches))
	for i, m := range matches {
		out[i] = Result{
			ID:         m.ID,
			Content:    m.Content,
			Metadata:   m.Metadata,
			Similarity: m.Similarity,
		}
	}
	return out, nil
}

// Delete removes a document by id.
func (s *ChromemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (s *ChromemStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Count()
}

// Close releases the embedding provider. chromem persists on write, so
// there is nothing else to flush.
func (s *ChromemStore) Close() error {
	return s.provider.Close()
}
