package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/droverdev/drover/internal/plan"
	"github.com/droverdev/drover/internal/state"
)

// CommitPair atomically persists an execution state and its plan: both
// rows succeed or neither does. On failure the previously committed pair
// remains the visible truth, and the caller may retry the same commit
// idempotently — a replay of an identical pair changes nothing and
// appends no duplicate history entry.
func (s *Store) CommitPair(ctx context.Context, st *state.State, pl *plan.Plan) error {
	if st.TaskID != pl.TaskID {
		return fmt.Errorf("commit pair: state is for %s but plan is for %s", st.TaskID, pl.TaskID)
	}
	if st.CurrentPhase < 0 || st.CurrentPhase >= len(pl.Phases) {
		return fmt.Errorf("commit pair: state phase index %d out of range for %d-phase plan",
			st.CurrentPhase, len(pl.Phases))
	}

	stateData, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	planData, err := json.Marshal(pl)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	fingerprint := pairFingerprint(stateData, planData)
	now := time.Now().Format(timeFormat)
	warnings := encodeWarnings(st.Warnings)

	return s.runInTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO execution_states (task_id, current_phase, iteration, status,
				last_signal, blocked_reason, warnings, data, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(task_id) DO UPDATE SET
				current_phase = excluded.current_phase,
				iteration = excluded.iteration,
				status = excluded.status,
				last_signal = excluded.last_signal,
				blocked_reason = excluded.blocked_reason,
				warnings = excluded.warnings,
				data = excluded.data,
				updated_at = excluded.updated_at
		`, st.TaskID, st.CurrentPhase, st.Iteration, string(st.Status),
			st.LastSignal, st.BlockedReason, warnings, string(stateData), now,
		); err != nil {
			return fmt.Errorf("write execution state: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO plans (task_id, data, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(task_id) DO UPDATE SET
				data = excluded.data,
				updated_at = excluded.updated_at
		`, pl.TaskID, string(planData), now); err != nil {
			return fmt.Errorf("write plan: %w", err)
		}

		// INSERT OR IGNORE: a replayed commit must not duplicate history.
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO transitions
				(task_id, fingerprint, phase_index, iteration, status, signal, committed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, st.TaskID, fingerprint, st.CurrentPhase, st.Iteration,
			string(st.Status), st.LastSignal, now,
		); err != nil {
			return fmt.Errorf("append transition: %w", err)
		}

		return nil
	})
}

// LoadState loads the committed execution state for a task.
func (s *Store) LoadState(ctx context.Context, taskID string) (*state.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM execution_states WHERE task_id = ?`, taskID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("state for task %s: %w", taskID, ErrNotFound)
		}
		return nil, fmt.Errorf("load state for %s: %w", taskID, err)
	}

	var st state.State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("parse state for %s: %w", taskID, err)
	}
	return &st, nil
}

// LoadPlan loads the committed plan for a task.
func (s *Store) LoadPlan(ctx context.Context, taskID string) (*plan.Plan, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM plans WHERE task_id = ?`, taskID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("plan for task %s: %w", taskID, ErrNotFound)
		}
		return nil, fmt.Errorf("load plan for %s: %w", taskID, err)
	}

	var pl plan.Plan
	if err := json.Unmarshal([]byte(data), &pl); err != nil {
		return nil, fmt.Errorf("parse plan for %s: %w", taskID, err)
	}
	return &pl, nil
}

// TransitionCount returns how many history entries a task has.
func (s *Store) TransitionCount(ctx context.Context, taskID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transitions WHERE task_id = ?`, taskID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transitions for %s: %w", taskID, err)
	}
	return n, nil
}

func pairFingerprint(stateData, planData []byte) string {
	h := sha256.New()
	h.Write(stateData)
	h.Write(planData)
	return hex.EncodeToString(h.Sum(nil))
}

func encodeWarnings(ws []state.Warning) string {
	if len(ws) == 0 {
		return ""
	}
	out := ""
	for i, w := range ws {
		if i > 0 {
			out += ","
		}
		out += string(w)
	}
	return out
}
