// Package executor runs a single phase attempt: assemble context, render
// the prompt, invoke the agent, parse the completion signal. There is
// exactly one of these paths; every phase of every task goes through it.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/droverdev/drover/internal/agent"
	"github.com/droverdev/drover/internal/assemble"
	"github.com/droverdev/drover/internal/completion"
	"github.com/droverdev/drover/internal/config"
	"github.com/droverdev/drover/internal/errors"
	"github.com/droverdev/drover/internal/plan"
	"github.com/droverdev/drover/internal/state"
	"github.com/droverdev/drover/internal/task"
	"github.com/droverdev/drover/internal/template"
)

// Executor drives one phase attempt end to end.
type Executor struct {
	assembler *assemble.Assembler
	engine    *template.Engine
	invoker   agent.Invoker
	cfg       config.AgentConfig
	logger    *slog.Logger
}

// New creates an executor.
func New(assembler *assemble.Assembler, engine *template.Engine, invoker agent.Invoker, cfg config.AgentConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		assembler: assembler,
		engine:    engine,
		invoker:   invoker,
		cfg:       cfg,
		logger:    logger,
	}
}

// Execute runs one attempt of a phase. Transport failures are retried
// immediately up to the configured budget; a semantic Blocked signal is
// never retried here, it is the retry coordinator's call.
func (e *Executor) Execute(ctx context.Context, t *task.Task, st *state.State, pl *plan.Plan, phase *plan.PhaseSpec) (completion.Signal, *agent.Response, error) {
	vars, err := e.assembler.Build(ctx, t, st, pl, phase)
	if err != nil {
		return completion.Incomplete(), nil, fmt.Errorf("assemble phase %s: %w", phase.ID, err)
	}

	tmpl, err := promptTemplate(phase)
	if err != nil {
		return completion.Incomplete(), nil, err
	}

	prompt, err := e.engine.Render(tmpl, vars)
	if err != nil {
		// A template error is a configuration defect, not a transient
		// agent issue. Surface it without invoking the agent.
		return completion.Incomplete(), nil,
			errors.Wrap(errors.CodeTemplateInvalid, fmt.Sprintf("render prompt for phase %s", phase.ID), err).
				WithFix("fix the phase prompt template and resume the task")
	}

	resp, err := e.invoke(ctx, prompt, phase, st)
	if err != nil {
		return completion.Incomplete(), nil, err
	}

	sig := completion.Parse(resp.Content)
	e.logger.Info("phase attempt finished",
		"task_id", t.ID,
		"phase", phase.ID,
		"iteration", st.Iteration,
		"signal", sig.String(),
		"duration", resp.Duration.Round(time.Millisecond))

	return sig, resp, nil
}

// invoke calls the agent, retrying immediate transport failures. The
// retry budget here is deliberately small; it covers flaky process
// spawns and timeouts, not semantic outcomes.
func (e *Executor) invoke(ctx context.Context, prompt string, phase *plan.PhaseSpec, st *state.State) (*agent.Response, error) {
	opts := agent.InvokeOptions{
		Model:   e.resolveModel(phase),
		Timeout: e.cfg.Timeout,
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.TransportRetries; attempt++ {
		if attempt > 0 {
			e.logger.Warn("agent transport failed, re-invoking",
				"task_id", st.TaskID,
				"phase", phase.ID,
				"attempt", attempt,
				"error", lastErr)
		}

		resp, err := e.invoker.Invoke(ctx, prompt, opts)
		if err == nil {
			return resp, nil
		}
		if !agent.IsTransport(err) || ctx.Err() != nil {
			return nil, fmt.Errorf("invoke agent for phase %s: %w", phase.ID, err)
		}
		lastErr = err
	}

	return nil, errors.Wrap(errors.CodeAgentTimeout,
		fmt.Sprintf("agent transport failed after %d attempts for phase %s", e.cfg.TransportRetries+1, phase.ID),
		lastErr).
		WithWhy("every invocation attempt ended in a transport failure").
		WithFix("check the agent binary and network, then resume the task")
}

// resolveModel picks the phase's model override, falling back to the
// configured default.
func (e *Executor) resolveModel(phase *plan.PhaseSpec) string {
	if phase.Model != "" {
		return phase.Model
	}
	return e.cfg.Model
}
