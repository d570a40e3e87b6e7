// Package plan provides phase plan generation and management for drover.
package plan

import (
	"embed"
	"fmt"

	"github.com/droverdev/drover/internal/task"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// GateType represents the type of approval gate on a phase.
type GateType string

const (
	GateAuto  GateType = "auto"
	GateHuman GateType = "human"
)

// PhaseSpec describes a single phase in a plan.
type PhaseSpec struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Prompt is an inline prompt template. When empty the executor loads
	// the embedded prompt for the phase ID.
	Prompt string `yaml:"prompt,omitempty" json:"prompt,omitempty"`

	// Model overrides the configured agent model for this phase.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// MaxIterationsOverride bounds retries within this phase. Nil means
	// use the plan default, then the global default.
	MaxIterationsOverride *int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`

	// Gate determines whether advancing past this phase needs approval.
	Gate GateType `yaml:"gate,omitempty" json:"gate,omitempty"`

	// NonRecoverable makes budget exhaustion in this phase fail the task
	// outright instead of leaving it blocked for operator resume.
	NonRecoverable bool `yaml:"non_recoverable,omitempty" json:"non_recoverable,omitempty"`

	// Generative marks phases that produce new work product. Verification-only
	// runs skip generative phases and keep the rest.
	Generative bool `yaml:"generative,omitempty" json:"generative,omitempty"`
}

// Plan is the ordered sequence of phases for a task. Exactly one active
// plan per task; plan and execution state are committed together.
type Plan struct {
	Version       int         `yaml:"version" json:"version"`
	TaskID        string      `yaml:"task_id" json:"task_id"`
	Weight        task.Weight `yaml:"weight" json:"weight"`
	MaxIterations int         `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	Phases        []PhaseSpec `yaml:"phases" json:"phases"`
}

// PlanTemplate is the on-disk shape of a builtin weight template.
type PlanTemplate struct {
	Version       int         `yaml:"version"`
	Weight        task.Weight `yaml:"weight"`
	MaxIterations int         `yaml:"max_iterations"`
	Phases        []PhaseSpec `yaml:"phases"`
}

// Errors
var (
	ErrNoTemplate = planError("no template found for weight")
	ErrNotFound   = planError("plan not found")
)

type planError string

func (e planError) Error() string { return string(e) }

// LoadTemplate loads the builtin plan template for a weight class.
func LoadTemplate(weight task.Weight) (*PlanTemplate, error) {
	data, err := builtinFS.ReadFile("builtin/" + string(weight) + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("template for weight %s: %w", weight, ErrNoTemplate)
	}

	var tmpl PlanTemplate
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parse template for weight %s: %w", weight, err)
	}

	return &tmpl, nil
}

// CreateFromTemplate creates a plan for a task from its weight template.
func CreateFromTemplate(t *task.Task) (*Plan, error) {
	tmpl, err := LoadTemplate(t.Weight)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		Version:       tmpl.Version,
		TaskID:        t.ID,
		Weight:        t.Weight,
		MaxIterations: tmpl.MaxIterations,
		Phases:        make([]PhaseSpec, len(tmpl.Phases)),
	}
	copy(p.Phases, tmpl.Phases)

	return p, nil
}

// Phase returns the phase at the given index, or nil if out of range.
func (p *Plan) Phase(i int) *PhaseSpec {
	if i < 0 || i >= len(p.Phases) {
		return nil
	}
	return &p.Phases[i]
}

// IndexOf returns the index of the phase with the given ID, or -1.
func (p *Plan) IndexOf(phaseID string) int {
	for i := range p.Phases {
		if p.Phases[i].ID == phaseID {
			return i
		}
	}
	return -1
}

// LastIndex returns the index of the final phase.
func (p *Plan) LastIndex() int {
	return len(p.Phases) - 1
}

// Validate checks plan structural invariants.
func (p *Plan) Validate() error {
	if p.TaskID == "" {
		return fmt.Errorf("plan has no task ID")
	}
	if len(p.Phases) == 0 {
		return fmt.Errorf("plan for task %s has no phases", p.TaskID)
	}
	seen := make(map[string]bool, len(p.Phases))
	for i := range p.Phases {
		id := p.Phases[i].ID
		if id == "" {
			return fmt.Errorf("plan for task %s: phase %d has no ID", p.TaskID, i)
		}
		if seen[id] {
			return fmt.Errorf("plan for task %s: duplicate phase %q", p.TaskID, id)
		}
		seen[id] = true
	}
	return nil
}

// MaxIterationsFor resolves the iteration budget for a phase: the phase
// override, then the plan default, then the given global default.
func (p *Plan) MaxIterationsFor(phase *PhaseSpec, globalDefault int) int {
	if phase != nil && phase.MaxIterationsOverride != nil && *phase.MaxIterationsOverride > 0 {
		return *phase.MaxIterationsOverride
	}
	if p.MaxIterations > 0 {
		return p.MaxIterations
	}
	return globalDefault
}
