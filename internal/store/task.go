package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/droverdev/drover/internal/task"
)

// ErrNotFound is returned when a task, state or plan does not exist.
var ErrNotFound = errors.New("not found")

const timeFormat = time.RFC3339Nano

// SaveTask inserts or updates a task.
func (s *Store) SaveTask(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("save task: %w", err)
	}

	var completedAt any
	if t.CompletedAt != nil {
		completedAt = t.CompletedAt.Format(timeFormat)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, weight, category, status,
			is_automation, non_recoverable, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			weight = excluded.weight,
			category = excluded.category,
			status = excluded.status,
			is_automation = excluded.is_automation,
			non_recoverable = excluded.non_recoverable,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at
	`,
		t.ID, t.Title, t.Description, string(t.Weight), string(t.Category), string(t.Status),
		boolToInt(t.IsAutomation), boolToInt(t.NonRecoverable),
		t.CreatedAt.Format(timeFormat), t.UpdatedAt.Format(timeFormat), completedAt,
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// LoadTask loads a task by ID.
func (s *Store) LoadTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, weight, category, status,
			is_automation, non_recoverable, created_at, updated_at, completed_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns all tasks ordered by creation time.
func (s *Store) ListTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, weight, category, status,
			is_automation, non_recoverable, created_at, updated_at, completed_at
		FROM tasks ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ListTaskIDs returns all task IDs; used for ID generation.
func (s *Store) ListTaskIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("list task ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecentCompletedTasks returns completed tasks, most recent first.
func (s *Store) RecentCompletedTasks(ctx context.Context, limit int) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, weight, category, status,
			is_automation, non_recoverable, created_at, updated_at, completed_at
		FROM tasks
		WHERE status = ? AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT ?
	`, string(task.StatusCompleted), limit)
	if err != nil {
		return nil, fmt.Errorf("recent completed tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// SaveChangedFiles records files touched by a completed phase.
func (s *Store) SaveChangedFiles(ctx context.Context, taskID, phaseID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.runInTx(ctx, func(tx *sql.Tx) error {
		for _, p := range paths {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO task_files (task_id, phase_id, path) VALUES (?, ?, ?)
			`, taskID, phaseID, p); err != nil {
				return fmt.Errorf("save changed file %s: %w", p, err)
			}
		}
		return nil
	})
}

// ChangedFilesForTask lists files recorded for a task across phases.
func (s *Store) ChangedFilesForTask(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT path FROM task_files WHERE task_id = ? ORDER BY path
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("changed files for %s: %w", taskID, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t                        task.Task
		weight, category, status string
		isAuto, nonRec           int
		createdAt, updatedAt     string
		completedAt              sql.NullString
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &weight, &category, &status,
		&isAuto, &nonRec, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Weight = task.Weight(weight)
	t.Category = task.Category(category)
	t.Status = task.Status(status)
	t.IsAutomation = isAuto != 0
	t.NonRecoverable = nonRec != 0

	if t.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if completedAt.Valid {
		ts, err := time.Parse(timeFormat, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		t.CompletedAt = &ts
	}

	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
