package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/playbookd/internal/lessons"
)

// LessonStore persists lessons in SQLite with optimistic versioning:
// updates are conditional on the version the caller read.
type LessonStore struct {
	db *DB
}

// NewLessonStore creates a store over the shared database.
func NewLessonStore(db *DB) *LessonStore {
	return &LessonStore{db: db}
}

var _ lessons.Repository = (*LessonStore)(nil)

const lessonColumns = `id, title, category, description, recommendation, context,
	confidence, frequency, upvotes, downvotes, project_types, tech_stacks, tags,
	source_projects, version, created_at, updated_at`

func (s *LessonStore) Insert(ctx context.Context, l *lessons.Lesson) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if l.Version == 0 {
		l.Version = 1
	}
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO lessons (id, title, normalized_title, category, description, recommendation,
			context, confidence, frequency, upvotes, downvotes, project_types, tech_stacks,
			tags, source_projects, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID,
		l.Title,
		l.NormalizedTitle(),
		string(l.Category),
		l.Description,
		l.Recommendation,
		l.Context,
		l.Confidence,
		l.Frequency,
		l.Upvotes,
		l.Downvotes,
		encodeStrings(l.ProjectTypes),
		encodeStrings(l.TechStacks),
		encodeStrings(l.Tags),
		encodeStrings(l.SourceProjects),
		l.Version,
		l.CreatedAt.Format(time.RFC3339Nano),
		l.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert lesson: %w", err)
	}
	return nil
}

func (s *LessonStore) Get(ctx context.Context, id string) (*lessons.Lesson, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE id = ?`, id)
	return scanLesson(row)
}

// Update writes the lesson only if the stored version still matches the
// caller's copy, then bumps the version.
func (s *LessonStore) Update(ctx context.Context, l *lessons.Lesson) error {
	if err := l.Validate(); err != nil {
		return err
	}
	res, err := s.db.db.ExecContext(ctx, `
		UPDATE lessons
		SET title = ?, normalized_title = ?, category = ?, description = ?, recommendation = ?,
			context = ?, confidence = ?, frequency = ?, upvotes = ?, downvotes = ?,
			project_types = ?, tech_stacks = ?, tags = ?, source_projects = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		l.Title,
		l.NormalizedTitle(),
		string(l.Category),
		l.Description,
		l.Recommendation,
		l.Context,
		l.Confidence,
		l.Frequency,
		l.Upvotes,
		l.Downvotes,
		encodeStrings(l.ProjectTypes),
		encodeStrings(l.TechStacks),
		encodeStrings(l.Tags),
		encodeStrings(l.SourceProjects),
		l.UpdatedAt.Format(time.RFC3339Nano),
		l.ID,
		l.Version,
	)
	if err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	if n == 0 {
		// Distinguish a missing row from a stale version.
		var exists int
		if err := s.db.db.QueryRowContext(ctx,
			`SELECT 1 FROM lessons WHERE id = ?`, l.ID).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return lessons.ErrLessonNotFound
		}
		return lessons.ErrVersionConflict
	}
	l.Version++
	return nil
}

func (s *LessonStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.db.ExecContext(ctx, `DELETE FROM lessons WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	if n == 0 {
		return lessons.ErrLessonNotFound
	}
	return nil
}

func (s *LessonStore) List(ctx context.Context, filter lessons.ListFilter) ([]*lessons.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE confidence >= ?`
	args := []any{filter.MinConfidence}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, c := range filter.Categories {
			placeholders[i] = "?"
			args = append(args, string(c))
		}
		query += ` AND category IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY updated_at DESC, id`

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	defer rows.Close()

	var out []*lessons.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *LessonStore) FindByNormalizedTitle(ctx context.Context, normalizedTitle string, category lessons.Category) (*lessons.Lesson, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE normalized_title = ? AND category = ?`,
		normalizedTitle, string(category))
	return scanLesson(row)
}

// GetByTitle matches by case-insensitive trimmed title across categories,
// preferring the most recently updated row.
func (s *LessonStore) GetByTitle(ctx context.Context, title string) (*lessons.Lesson, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE normalized_title = ?
		ORDER BY updated_at DESC, id LIMIT 1`,
		lessons.NormalizeTitle(title))
	return scanLesson(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLesson(row rowScanner) (*lessons.Lesson, error) {
	var (
		l                            lessons.Lesson
		category                     string
		types, stacks, tags, sources string
		createdAt, updatedAt         string
	)
	err := row.Scan(&l.ID, &l.Title, &category, &l.Description, &l.Recommendation,
		&l.Context, &l.Confidence, &l.Frequency, &l.Upvotes, &l.Downvotes,
		&types, &stacks, &tags, &sources, &l.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lessons.ErrLessonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lesson: %w", err)
	}
	l.Category = lessons.Category(category)
	if l.ProjectTypes, err = decodeStrings(types); err != nil {
		return nil, err
	}
	if l.TechStacks, err = decodeStrings(stacks); err != nil {
		return nil, err
	}
	if l.Tags, err = decodeStrings(tags); err != nil {
		return nil, err
	}
	if l.SourceProjects, err = decodeStrings(sources); err != nil {
		return nil, err
	}
	if l.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if l.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &l, nil
}

func encodeStrings(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeStrings(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	return out, nil
}
