// Package agent defines the agent invocation port for drover.
//
// How a prompt reaches the coding agent is external to the engine; the
// executor only sees this interface.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Usage tracks token consumption for one invocation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the raw agent output plus metadata. It is ephemeral:
// consumed by the completion parser and folded into execution state,
// never re-parsed from its persisted form.
type Response struct {
	Content   string        `json:"content"`
	SessionID string        `json:"session_id,omitempty"`
	Usage     Usage         `json:"usage"`
	Duration  time.Duration `json:"duration"`
	CostUSD   float64       `json:"cost_usd,omitempty"`
}

// Invoker sends a rendered prompt to the coding agent.
type Invoker interface {
	// Invoke executes the prompt and returns the agent's response.
	// Transport failures and timeouts return a *TransportError.
	Invoke(ctx context.Context, prompt string, opts InvokeOptions) (*Response, error)
}

// InvokeOptions carries per-invocation settings.
type InvokeOptions struct {
	// Model overrides the default agent model. Empty means default.
	Model string

	// Timeout bounds the invocation. Zero means no per-call timeout
	// beyond the caller's context.
	Timeout time.Duration

	// SessionID resumes an existing agent session when supported.
	SessionID string
}

// TransportError marks an infrastructure failure (process spawn, network,
// timeout) as distinct from a semantic blocked outcome. Transport errors
// are eligible for automatic low-level retry inside the executor.
type TransportError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("agent %s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("agent %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether the error chain contains a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
