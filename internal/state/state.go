// Package state provides execution state tracking for drover tasks.
//
// State is the single source of truth for what is currently true about a
// task's execution. It is mutated by exactly one orchestrator instance and
// persisted together with the task's plan in one atomic commit.
package state

import (
	"time"

	"github.com/droverdev/drover/internal/task"
)

// Mode selects how phases are executed for the task.
type Mode string

const (
	// ModeFull runs every phase in the plan.
	ModeFull Mode = "full"
	// ModeVerificationOnly skips generative phases and runs only
	// verification phases. Entered when the dedup guard finds the task's
	// expected output already satisfied.
	ModeVerificationOnly Mode = "verification_only"
)

// Warning flags non-fatal conditions an operator should see.
type Warning string

const (
	// WarningZeroDiff marks a phase whose commit touched no files. A
	// zero-diff completion is evidence the phase did no real work.
	WarningZeroDiff Warning = "zero_diff_commit"
)

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `yaml:"input_tokens" json:"input_tokens"`
	OutputTokens int `yaml:"output_tokens" json:"output_tokens"`
	TotalTokens  int `yaml:"total_tokens" json:"total_tokens"`
}

// Add accumulates usage.
func (t *TokenUsage) Add(input, output int) {
	t.InputTokens += input
	t.OutputTokens += output
	t.TotalTokens += input + output
}

// PhaseRecord is the per-phase execution record.
type PhaseRecord struct {
	Status      task.Status `yaml:"status" json:"status"`
	StartedAt   time.Time   `yaml:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time  `yaml:"completed_at,omitempty" json:"completed_at,omitempty"`
	Iterations  int         `yaml:"iterations" json:"iterations"`
	CommitSHA   string      `yaml:"commit_sha,omitempty" json:"commit_sha,omitempty"`
	Output      string      `yaml:"output,omitempty" json:"output,omitempty"`
	Error       string      `yaml:"error,omitempty" json:"error,omitempty"`
	Tokens      TokenUsage  `yaml:"tokens" json:"tokens"`
}

// RetrySnapshot captures why the current phase is being retried.
type RetrySnapshot struct {
	Reason        string    `yaml:"reason" json:"reason"`
	OutputExcerpt string    `yaml:"output_excerpt,omitempty" json:"output_excerpt,omitempty"`
	Attempt       int       `yaml:"attempt" json:"attempt"`
	Timestamp     time.Time `yaml:"timestamp" json:"timestamp"`
}

// State is the per-task mutable execution record.
type State struct {
	TaskID string `yaml:"task_id" json:"task_id"`

	// CurrentPhase is an index into the task's plan. Invariant: always a
	// valid index while the task is non-terminal.
	CurrentPhase int `yaml:"current_phase" json:"current_phase"`

	// Iteration counts attempts within the current phase, 1-based once
	// the phase has started.
	Iteration int `yaml:"iteration" json:"iteration"`

	// NoSignalCount counts consecutive attempts in the current phase that
	// produced no completion marker.
	NoSignalCount int `yaml:"no_signal_count,omitempty" json:"no_signal_count,omitempty"`

	Status task.Status `yaml:"status" json:"status"`
	Mode   Mode        `yaml:"mode" json:"mode"`

	// LastResponse is an audit snapshot of the most recent agent output.
	LastResponse string `yaml:"last_response,omitempty" json:"last_response,omitempty"`

	// LastSignal records the most recent parsed completion signal.
	LastSignal string `yaml:"last_signal,omitempty" json:"last_signal,omitempty"`

	// BlockedReason is set when Status is blocked or failed.
	BlockedReason string `yaml:"blocked_reason,omitempty" json:"blocked_reason,omitempty"`

	Retry    *RetrySnapshot          `yaml:"retry,omitempty" json:"retry,omitempty"`
	Phases   map[string]*PhaseRecord `yaml:"phases" json:"phases"`
	Warnings []Warning               `yaml:"warnings,omitempty" json:"warnings,omitempty"`
	Tokens   TokenUsage              `yaml:"tokens" json:"tokens"`

	StartedAt   time.Time  `yaml:"started_at" json:"started_at"`
	UpdatedAt   time.Time  `yaml:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// New creates a fresh state for a task.
func New(taskID string) *State {
	now := time.Now()
	return &State{
		TaskID:    taskID,
		Status:    task.StatusCreated,
		Mode:      ModeFull,
		Phases:    make(map[string]*PhaseRecord),
		StartedAt: now,
		UpdatedAt: now,
	}
}

// phase returns the record for a phase ID, creating it if needed.
func (s *State) phase(phaseID string) *PhaseRecord {
	if s.Phases == nil {
		s.Phases = make(map[string]*PhaseRecord)
	}
	if s.Phases[phaseID] == nil {
		s.Phases[phaseID] = &PhaseRecord{}
	}
	return s.Phases[phaseID]
}

// StartPhase marks the phase at index running and resets per-phase counters.
func (s *State) StartPhase(index int, phaseID string) {
	now := time.Now()
	s.CurrentPhase = index
	s.Iteration = 1
	s.NoSignalCount = 0
	s.Status = task.StatusRunning
	s.UpdatedAt = now

	rec := s.phase(phaseID)
	rec.Status = task.StatusRunning
	rec.StartedAt = now
	rec.Iterations = 1
}

// BeginAttempt increments the iteration counter for a retry of the
// current phase.
func (s *State) BeginAttempt(phaseID string) {
	s.Iteration++
	s.UpdatedAt = time.Now()
	s.phase(phaseID).Iterations++
}

// CompletePhase marks a phase completed, recording its commit SHA and
// the output carried forward to later phases.
func (s *State) CompletePhase(phaseID, commitSHA, output string) {
	now := time.Now()
	s.UpdatedAt = now
	s.Retry = nil
	s.NoSignalCount = 0

	rec := s.phase(phaseID)
	rec.Status = task.StatusCompleted
	rec.CompletedAt = &now
	rec.CommitSHA = commitSHA
	rec.Output = output
}

// SkipPhase marks a phase skipped (verification-only mode).
func (s *State) SkipPhase(phaseID, reason string) {
	now := time.Now()
	s.UpdatedAt = now

	rec := s.phase(phaseID)
	rec.Status = task.StatusCompleted
	rec.CompletedAt = &now
	if reason != "" {
		rec.Error = "skipped: " + reason
	}
}

// Block marks the task blocked at the current phase with a reason.
// Blocked is human-resolvable, not terminal.
func (s *State) Block(phaseID, reason string) {
	s.Status = task.StatusBlocked
	s.BlockedReason = reason
	s.UpdatedAt = time.Now()

	rec := s.phase(phaseID)
	rec.Status = task.StatusBlocked
	rec.Error = reason
}

// Fail marks the task failed. Terminal.
func (s *State) Fail(phaseID, reason string) {
	now := time.Now()
	s.Status = task.StatusFailed
	s.BlockedReason = reason
	s.UpdatedAt = now
	s.CompletedAt = &now

	rec := s.phase(phaseID)
	rec.Status = task.StatusFailed
	rec.Error = reason
}

// Complete marks the whole task completed. Terminal.
func (s *State) Complete() {
	now := time.Now()
	s.Status = task.StatusCompleted
	s.BlockedReason = ""
	s.UpdatedAt = now
	s.CompletedAt = &now
}

// Pause marks the task paused between phase attempts.
func (s *State) Pause() {
	s.Status = task.StatusPaused
	s.UpdatedAt = time.Now()
}

// Resume returns a paused or blocked task to running.
func (s *State) Resume() {
	s.Status = task.StatusRunning
	s.BlockedReason = ""
	s.UpdatedAt = time.Now()
}

// SetRetry records why the current phase is being retried.
func (s *State) SetRetry(reason, excerpt string, attempt int) {
	s.Retry = &RetrySnapshot{
		Reason:        reason,
		OutputExcerpt: excerpt,
		Attempt:       attempt,
		Timestamp:     time.Now(),
	}
	s.UpdatedAt = time.Now()
}

// RecordResponse folds an agent response snapshot into the state.
func (s *State) RecordResponse(phaseID, content, signal string, input, output int) {
	s.LastResponse = content
	s.LastSignal = signal
	s.Tokens.Add(input, output)
	s.UpdatedAt = time.Now()
	s.phase(phaseID).Tokens.Add(input, output)
}

// AddWarning appends a warning if not already present.
func (s *State) AddWarning(w Warning) {
	for _, existing := range s.Warnings {
		if existing == w {
			return
		}
	}
	s.Warnings = append(s.Warnings, w)
	s.UpdatedAt = time.Now()
}

// PhaseOutput returns the stored output of a phase, empty if none.
func (s *State) PhaseOutput(phaseID string) string {
	if rec, ok := s.Phases[phaseID]; ok {
		return rec.Output
	}
	return ""
}

// IsPhaseCompleted reports whether a phase finished.
func (s *State) IsPhaseCompleted(phaseID string) bool {
	rec, ok := s.Phases[phaseID]
	return ok && rec.Status == task.StatusCompleted
}
