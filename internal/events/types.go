// Package events provides event types and publishing infrastructure for drover.
package events

import (
	"time"
)

// Type defines the type of event.
type Type string

const (
	// TypeState indicates a full state update.
	TypeState Type = "state"
	// TypePhase indicates a phase status change.
	TypePhase Type = "phase"
	// TypeError indicates an error occurred.
	TypeError Type = "error"
	// TypeComplete indicates task completion.
	TypeComplete Type = "complete"
	// TypeTokens indicates token usage update.
	TypeTokens Type = "tokens"
	// TypeWarning indicates a non-fatal warning.
	TypeWarning Type = "warning"
)

// Event represents a published event.
type Event struct {
	Type   Type      `json:"type"`
	TaskID string    `json:"task_id"`
	Data   any       `json:"data"`
	Time   time.Time `json:"time"`
}

// New creates an event with the current timestamp.
func New(eventType Type, taskID string, data any) Event {
	return Event{
		Type:   eventType,
		TaskID: taskID,
		Data:   data,
		Time:   time.Now(),
	}
}

// PhaseUpdate represents a phase status change.
type PhaseUpdate struct {
	Phase     string `json:"phase"`
	Index     int    `json:"index"`
	Status    string `json:"status"` // started, completed, retried, blocked, failed, skipped
	Iteration int    `json:"iteration,omitempty"`
	CommitSHA string `json:"commit_sha,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// TokenUpdate represents token usage information.
type TokenUpdate struct {
	Phase        string `json:"phase"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	TotalTokens  int    `json:"total_tokens"`
}

// ErrorData represents error information.
type ErrorData struct {
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message"`
}

// WarningData represents a non-fatal warning.
type WarningData struct {
	Phase   string `json:"phase,omitempty"`
	Warning string `json:"warning"`
}
