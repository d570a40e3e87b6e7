// Package task provides the task model for drover.
package task

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle status of a task.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusBlocked   Status = "blocked"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status is absorbing. No transition is
// defined out of a terminal status except external task recreation.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Weight classifies how much rigor a task needs.
type Weight string

const (
	WeightTrivial Weight = "trivial"
	WeightSmall   Weight = "small"
	WeightMedium  Weight = "medium"
	WeightLarge   Weight = "large"
)

// Category classifies the kind of work.
type Category string

const (
	CategoryFeature  Category = "feature"
	CategoryBug      Category = "bug"
	CategoryRefactor Category = "refactor"
	CategoryDocs     Category = "docs"
	CategoryChore    Category = "chore"
)

// Task is a unit of work driven through an ordered plan of phases.
// Created externally, mutated only through phase transitions, never
// deleted while referenced by history.
type Task struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Weight      Weight   `yaml:"weight" json:"weight"`
	Category    Category `yaml:"category,omitempty" json:"category,omitempty"`
	Status      Status   `yaml:"status" json:"status"`

	// IsAutomation marks fully unattended tasks. Automation tasks always
	// receive automation context in their prompts.
	IsAutomation bool `yaml:"is_automation,omitempty" json:"is_automation,omitempty"`

	// NonRecoverable makes budget exhaustion in any phase fail the task
	// outright instead of leaving it blocked for operator resume. Plans
	// can mark individual phases instead.
	NonRecoverable bool `yaml:"non_recoverable,omitempty" json:"non_recoverable,omitempty"`

	CreatedAt   time.Time  `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `yaml:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// New creates a task in the created status.
func New(id, title string, weight Weight) *Task {
	now := time.Now()
	return &Task{
		ID:        id,
		Title:     title,
		Weight:    weight,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks required fields.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if t.Title == "" {
		return fmt.Errorf("task title is required")
	}
	switch t.Weight {
	case WeightTrivial, WeightSmall, WeightMedium, WeightLarge:
	default:
		return fmt.Errorf("invalid weight %q", t.Weight)
	}
	return nil
}

// ParseWeight converts a string to a Weight, defaulting to medium.
func ParseWeight(s string) Weight {
	switch Weight(strings.ToLower(strings.TrimSpace(s))) {
	case WeightTrivial:
		return WeightTrivial
	case WeightSmall:
		return WeightSmall
	case WeightLarge:
		return WeightLarge
	default:
		return WeightMedium
	}
}
