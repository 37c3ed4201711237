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

// OutcomeLedger records which project outcomes have been consumed by the
// pattern extractor. The project_id primary key plus INSERT OR IGNORE
// gives exactly-once extraction even across retries.
type OutcomeLedger struct {
	db *DB
}

// NewOutcomeLedger creates a ledger over the shared database.
func NewOutcomeLedger(db *DB) *OutcomeLedger {
	return &OutcomeLedger{db: db}
}

// Record stores the outcome and reports whether this call claimed it
// first. A false return means the outcome was already extracted.
func (l *OutcomeLedger) Record(ctx context.Context, outcome *session.OutcomeRecord) (bool, error) {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return false, fmt.Errorf("encode outcome: %w", err)
	}
	res, err := l.db.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO outcomes (project_id, payload, extracted_at)
		VALUES (?, ?, ?)`,
		outcome.ProjectID,
		string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("record outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record outcome: %w", err)
	}
	return n > 0, nil
}

// Seen reports whether the project's outcome was already recorded.
func (l *OutcomeLedger) Seen(ctx context.Context, projectID string) (bool, error) {
	var one int
	err := l.db.db.QueryRowContext(ctx,
		`SELECT 1 FROM outcomes WHERE project_id = ?`, projectID).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("query outcome: %w", err)
}
