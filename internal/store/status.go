package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// TaskStatus is the lightweight status projection served to the CLI and
// the read API without deserializing the full state snapshot.
type TaskStatus struct {
	TaskID        string   `json:"task_id"`
	Status        string   `json:"status"`
	CurrentPhase  int      `json:"current_phase"`
	Iteration     int      `json:"iteration"`
	LastSignal    string   `json:"last_signal,omitempty"`
	BlockedReason string   `json:"blocked_reason,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	UpdatedAt     string   `json:"updated_at"`
}

// GetTaskStatus reads the status projection for one task.
func (s *Store) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, status, current_phase, iteration, last_signal,
		       blocked_reason, warnings, updated_at
		FROM execution_states WHERE task_id = ?
	`, taskID)

	ts, err := scanTaskStatus(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("status for task %s: %w", taskID, ErrNotFound)
		}
		return nil, fmt.Errorf("load status for %s: %w", taskID, err)
	}
	return ts, nil
}

// ListTaskStatuses reads status projections for every task with state,
// newest first.
func (s *Store) ListTaskStatuses(ctx context.Context) ([]*TaskStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, status, current_phase, iteration, last_signal,
		       blocked_reason, warnings, updated_at
		FROM execution_states ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()

	var out []*TaskStatus
	for rows.Next() {
		ts, err := scanTaskStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func scanTaskStatus(row rowScanner) (*TaskStatus, error) {
	var ts TaskStatus
	var warnings string
	if err := row.Scan(&ts.TaskID, &ts.Status, &ts.CurrentPhase, &ts.Iteration,
		&ts.LastSignal, &ts.BlockedReason, &warnings, &ts.UpdatedAt); err != nil {
		return nil, err
	}
	if warnings != "" {
		ts.Warnings = strings.Split(warnings, ",")
	}
	return &ts, nil
}
