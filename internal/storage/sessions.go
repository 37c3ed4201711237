package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/playbookd/internal/session"
)

// SessionStore persists sessions in SQLite. Frequently-queried fields are
// top-level columns; the rest of the session rides in a JSON payload.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a store over the shared database.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

var _ session.Store = (*SessionStore)(nil)

func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO sessions (id, objective, project_type, current_phase, autonomy_mode, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.Objective,
		string(sess.ProjectType),
		string(sess.CurrentPhase),
		string(sess.Mode),
		string(payload),
		sess.CreatedAt.Format(time.RFC3339Nano),
		sess.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	var payload string
	err := s.db.db.QueryRowContext(ctx,
		`SELECT payload FROM sessions WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return decodeSession(payload)
}

func (s *SessionStore) Update(ctx context.Context, sess *session.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	res, err := s.db.db.ExecContext(ctx, `
		UPDATE sessions
		SET objective = ?, project_type = ?, current_phase = ?, autonomy_mode = ?, payload = ?, updated_at = ?
		WHERE id = ?`,
		sess.Objective,
		string(sess.ProjectType),
		string(sess.CurrentPhase),
		string(sess.Mode),
		string(payload),
		sess.UpdatedAt.Format(time.RFC3339Nano),
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) List(ctx context.Context) ([]*session.Session, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT payload FROM sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess, err := decodeSession(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func decodeSession(payload string) (*session.Session, error) {
	var sess session.Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}
