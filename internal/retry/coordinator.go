// Package retry decides what happens after a phase attempt. It is the
// single authority for iteration budgets: no other component decides to
// retry a phase.
package retry

import (
	"log/slog"

	"github.com/droverdev/drover/internal/completion"
	"github.com/droverdev/drover/internal/plan"
	"github.com/droverdev/drover/internal/state"
)

// Action is the coordinator's verdict for one phase attempt.
type Action int

const (
	// ActionAdvance moves to the next phase (or completes the task at
	// the last phase).
	ActionAdvance Action = iota
	// ActionRetrySamePhase re-runs the current phase with retry context.
	ActionRetrySamePhase
	// ActionFail gives up on the phase; the orchestrator maps this to
	// blocked or failed depending on the task's recoverability.
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionAdvance:
		return "advance"
	case ActionRetrySamePhase:
		return "retry"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Decision carries the action plus the reason folded into retry context
// or the failure report.
type Decision struct {
	Action Action
	Reason string
}

// Coordinator applies iteration budgets to completion signals.
type Coordinator struct {
	// globalMaxIterations is the budget when neither the phase nor the
	// plan overrides it.
	globalMaxIterations int
	// noSignalBudget bounds consecutive attempts that produced no
	// completion marker at all. Deliberately smaller than the blocked
	// budget: an agent that never emits a terminal marker is broken,
	// not struggling.
	noSignalBudget int
	logger         *slog.Logger
}

// NoSignalReason is the failure reason when the no-signal budget runs out.
const NoSignalReason = "phase produced no completion signal"

// New creates a coordinator with the given budgets.
func New(globalMaxIterations, noSignalBudget int, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		globalMaxIterations: globalMaxIterations,
		noSignalBudget:      noSignalBudget,
		logger:              logger,
	}
}

// Decide maps a completion signal onto an action given the task's
// current attempt counts. Budget resolution is phase override > plan
// default > global default.
func (c *Coordinator) Decide(sig completion.Signal, st *state.State, pl *plan.Plan, phase *plan.PhaseSpec) Decision {
	switch sig.Kind {
	case completion.KindComplete:
		return Decision{Action: ActionAdvance}

	case completion.KindBlocked:
		budget := pl.MaxIterationsFor(phase, c.globalMaxIterations)
		if st.Iteration < budget {
			c.logger.Info("phase blocked, retrying",
				"task_id", st.TaskID,
				"phase", phase.ID,
				"attempt", st.Iteration,
				"budget", budget,
				"reason", sig.Reason)
			return Decision{Action: ActionRetrySamePhase, Reason: sig.Reason}
		}
		c.logger.Warn("phase blocked, budget exhausted",
			"task_id", st.TaskID,
			"phase", phase.ID,
			"attempts", st.Iteration,
			"reason", sig.Reason)
		return Decision{Action: ActionFail, Reason: sig.Reason}

	default: // Incomplete
		if st.NoSignalCount < c.noSignalBudget {
			c.logger.Info("no completion signal, retrying",
				"task_id", st.TaskID,
				"phase", phase.ID,
				"no_signal_count", st.NoSignalCount)
			return Decision{Action: ActionRetrySamePhase, Reason: NoSignalReason}
		}
		return Decision{Action: ActionFail, Reason: NoSignalReason}
	}
}
