// Package orchestrator drives tasks through their phase plans. Each task
// is owned by exactly one orchestrator loop at a time; multiple tasks run
// concurrently on the runner's worker pool.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/droverdev/drover/internal/completion"
	"github.com/droverdev/drover/internal/config"
	"github.com/droverdev/drover/internal/errors"
	"github.com/droverdev/drover/internal/events"
	"github.com/droverdev/drover/internal/executor"
	"github.com/droverdev/drover/internal/plan"
	"github.com/droverdev/drover/internal/retry"
	"github.com/droverdev/drover/internal/state"
	"github.com/droverdev/drover/internal/store"
	"github.com/droverdev/drover/internal/task"
	"github.com/droverdev/drover/internal/vcs"
)

// commitRetries bounds re-attempts of a failed state commit before the
// task is reported stalled.
const commitRetries = 3

// responseExcerptLimit bounds the prior-output excerpt carried into
// retry context.
const responseExcerptLimit = 1500

// SatisfiedChecker is the optional dedup guard consulted before the
// first phase: does the expected output already exist and verify?
type SatisfiedChecker interface {
	AlreadySatisfied(ctx context.Context, t *task.Task, pl *plan.Plan) (bool, string, error)
}

// Orchestrator runs one task at a time through its plan.
type Orchestrator struct {
	store     *store.Store
	executor  *executor.Executor
	retry     *retry.Coordinator
	vcs       vcs.VersionControlPort
	publisher events.Publisher
	satisfied SatisfiedChecker
	cfg       *config.Config
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSatisfiedChecker installs the dedup guard.
func WithSatisfiedChecker(c SatisfiedChecker) Option {
	return func(o *Orchestrator) { o.satisfied = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator.
func New(st *store.Store, exec *executor.Executor, rc *retry.Coordinator, vc vcs.VersionControlPort, pub events.Publisher, cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		executor:  exec,
		retry:     rc,
		vcs:       vc,
		publisher: pub,
		cfg:       cfg,
		logger:    slog.Default(),
	}
	if o.publisher == nil {
		o.publisher = events.NopPublisher{}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives a task from its current committed state to a blocked,
// paused, or terminal outcome. Cancellation is honored only at the top
// of the loop: an in-flight agent invocation completes and its result is
// persisted before the pause takes effect.
func (o *Orchestrator) Run(ctx context.Context, taskID string) error {
	// Loading and the begin transition are bookkeeping, not agent work.
	// They run even when the caller has already cancelled, so a
	// pre-cancelled context still lands the task in a committed pause at
	// the loop top instead of erroring out of the store reads.
	setupCtx := context.WithoutCancel(ctx)

	t, st, pl, err := o.load(setupCtx, taskID)
	if err != nil {
		return err
	}

	if t.Status.IsTerminal() {
		return errors.New(errors.CodeTaskInvalidState,
			fmt.Sprintf("task %s is %s", taskID, t.Status)).
			WithWhy("completed and failed are absorbing states").
			WithFix("create a new task for further work")
	}

	if err := o.begin(setupCtx, t, st, pl); err != nil {
		return err
	}

	for {
		// The only cancellation point. Never mid-render or mid-invoke.
		if ctx.Err() != nil {
			st.Pause()
			if err := o.commit(ctx, st, pl); err != nil {
				return err
			}
			o.syncTaskStatus(ctx, t, st)
			o.logger.Info("task paused by cancellation", "task_id", taskID)
			return ctx.Err()
		}

		phase := pl.Phase(st.CurrentPhase)
		if phase == nil {
			return errors.New(errors.CodeTaskInvalidState,
				fmt.Sprintf("task %s phase index %d outside plan", taskID, st.CurrentPhase))
		}

		if o.shouldSkip(st, phase) {
			o.logger.Info("skipping generative phase",
				"task_id", taskID, "phase", phase.ID, "mode", st.Mode)
			st.SkipPhase(phase.ID, "task already satisfied")
			done, err := o.advance(ctx, t, st, pl)
			if err != nil || done {
				return err
			}
			continue
		}

		sig, resp, err := o.executor.Execute(ctx, t, st, pl, phase)
		if err != nil {
			return o.failAttempt(ctx, t, st, pl, phase, err)
		}

		st.RecordResponse(phase.ID, resp.Content, sig.String(),
			resp.Usage.InputTokens, resp.Usage.OutputTokens)
		o.publish(events.TypeTokens, taskID, events.TokenUpdate{
			Phase:        phase.ID,
			InputTokens:  st.Tokens.InputTokens,
			OutputTokens: st.Tokens.OutputTokens,
			TotalTokens:  st.Tokens.TotalTokens,
		})

		if sig.Kind == completion.KindIncomplete {
			st.NoSignalCount++
		} else {
			st.NoSignalCount = 0
		}

		decision := o.retry.Decide(sig, st, pl, phase)
		switch decision.Action {
		case retry.ActionAdvance:
			if err := o.checkpoint(ctx, t, st, phase); err != nil {
				return o.failAttempt(ctx, t, st, pl, phase, err)
			}
			st.CompletePhase(phase.ID, o.lastCommitSHA(st, phase), resp.Content)
			done, err := o.advance(ctx, t, st, pl)
			if err != nil || done {
				return err
			}

		case retry.ActionRetrySamePhase:
			st.SetRetry(decision.Reason, excerpt(resp.Content), st.Iteration)
			st.BeginAttempt(phase.ID)
			if err := o.commit(ctx, st, pl); err != nil {
				return err
			}
			o.publish(events.TypePhase, taskID, events.PhaseUpdate{
				Phase:     phase.ID,
				Index:     st.CurrentPhase,
				Status:    "retried",
				Iteration: st.Iteration,
				Reason:    decision.Reason,
			})

		case retry.ActionFail:
			return o.giveUp(ctx, t, st, pl, phase, decision.Reason)
		}
	}
}

// load reads the task trio, creating fresh state on first run.
func (o *Orchestrator) load(ctx context.Context, taskID string) (*task.Task, *state.State, *plan.Plan, error) {
	t, err := o.store.LoadTask(ctx, taskID)
	if err != nil {
		return nil, nil, nil, errors.Wrap(errors.CodeTaskNotFound,
			fmt.Sprintf("load task %s", taskID), err)
	}

	pl, err := o.store.LoadPlan(ctx, taskID)
	if err != nil {
		pl, err = plan.CreateFromTemplate(t)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create plan for %s: %w", taskID, err)
		}
	}
	if err := pl.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("validate plan for %s: %w", taskID, err)
	}

	st, err := o.store.LoadState(ctx, taskID)
	if err != nil {
		st = state.New(taskID)
	}

	return t, st, pl, nil
}

// begin prepares a created/paused/blocked task for the loop: the dedup
// guard runs once before the first phase, then the first phase starts
// or the task resumes where it stopped.
func (o *Orchestrator) begin(ctx context.Context, t *task.Task, st *state.State, pl *plan.Plan) error {
	switch st.Status {
	case task.StatusCreated:
		if o.satisfied != nil {
			ok, why, err := o.satisfied.AlreadySatisfied(ctx, t, pl)
			if err != nil {
				o.logger.Warn("satisfied check failed, running full plan",
					"task_id", t.ID, "error", err)
			} else if ok {
				st.Mode = state.ModeVerificationOnly
				o.logger.Info("task already satisfied, verification-only mode",
					"task_id", t.ID, "reason", why)
			}
		}
		st.StartPhase(0, pl.Phase(0).ID)

	case task.StatusPaused, task.StatusBlocked:
		st.Resume()
		o.logger.Info("task resumed",
			"task_id", t.ID, "phase", pl.Phase(st.CurrentPhase).ID, "iteration", st.Iteration)

	case task.StatusRunning:
		// Recovering from a crash mid-run; the committed state is the
		// last finished transition, continue from it.
		o.logger.Warn("task was left running, recovering", "task_id", t.ID)
	}

	if err := o.commit(ctx, st, pl); err != nil {
		return err
	}
	o.syncTaskStatus(ctx, t, st)
	o.publish(events.TypeState, t.ID, map[string]string{"status": string(st.Status)})
	return nil
}

// shouldSkip reports whether a phase is skipped in verification-only
// mode. The boundary is configurable: phases listed in
// verification_phases always run; with an empty list every
// non-generative phase runs.
func (o *Orchestrator) shouldSkip(st *state.State, phase *plan.PhaseSpec) bool {
	if st.Mode != state.ModeVerificationOnly {
		return false
	}
	if len(o.cfg.Execution.VerificationPhases) > 0 {
		for _, id := range o.cfg.Execution.VerificationPhases {
			if id == phase.ID {
				return false
			}
		}
		return true
	}
	return phase.Generative
}

// advance moves past a completed phase: completes the task at the last
// index, pauses at a human gate, otherwise starts the next phase. The
// new state is committed before any further invocation. Returns true
// when the loop should stop.
func (o *Orchestrator) advance(ctx context.Context, t *task.Task, st *state.State, pl *plan.Plan) (bool, error) {
	idx := st.CurrentPhase
	phase := pl.Phase(idx)

	if idx == pl.LastIndex() {
		st.Complete()
		if err := o.commit(ctx, st, pl); err != nil {
			return true, err
		}
		o.syncTaskStatus(ctx, t, st)
		o.publish(events.TypeComplete, t.ID, events.PhaseUpdate{
			Phase: phase.ID, Index: idx, Status: "completed",
		})
		o.logger.Info("task completed", "task_id", t.ID, "phases", len(pl.Phases))
		return true, nil
	}

	next := pl.Phase(idx + 1)
	st.StartPhase(idx+1, next.ID)

	if phase.Gate == plan.GateHuman {
		st.Pause()
		if err := o.commit(ctx, st, pl); err != nil {
			return true, err
		}
		o.syncTaskStatus(ctx, t, st)
		o.publish(events.TypeState, t.ID, map[string]string{
			"status": string(task.StatusPaused),
			"gate":   phase.ID,
		})
		o.logger.Info("human gate reached, task paused",
			"task_id", t.ID, "gate_phase", phase.ID, "next_phase", next.ID)
		return true, nil
	}

	if err := o.commit(ctx, st, pl); err != nil {
		return true, err
	}
	o.publish(events.TypePhase, t.ID, events.PhaseUpdate{
		Phase: next.ID, Index: idx + 1, Status: "started", Iteration: 1,
	})
	return false, nil
}

// checkpoint commits the working tree after a completed phase and
// records what changed. A zero-diff completion is flagged, not silently
// accepted: it is evidence the phase did no real work.
func (o *Orchestrator) checkpoint(ctx context.Context, t *task.Task, st *state.State, phase *plan.PhaseSpec) error {
	if o.vcs == nil {
		return nil
	}

	msg := fmt.Sprintf("%s: %s (%s)", t.ID, t.Title, phase.ID)
	res, err := o.vcs.CommitAll(ctx, msg)
	if err != nil {
		return errors.Wrap(errors.CodeCommitFailed,
			fmt.Sprintf("checkpoint phase %s", phase.ID), err)
	}

	if res.SHA == "" || res.FilesChanged == 0 {
		st.AddWarning(state.WarningZeroDiff)
		o.publish(events.TypeWarning, t.ID, events.WarningData{
			Phase:   phase.ID,
			Warning: string(state.WarningZeroDiff),
		})
		o.logger.Warn("phase completed with zero-diff commit",
			"task_id", t.ID, "phase", phase.ID)
		return nil
	}

	st.Phases[phase.ID].CommitSHA = res.SHA
	files, err := o.vcs.ChangedFiles(ctx, res.SHA)
	if err != nil {
		o.logger.Warn("changed files unavailable",
			"task_id", t.ID, "sha", res.SHA, "error", err)
		return nil
	}
	if err := o.store.SaveChangedFiles(ctx, t.ID, phase.ID, files); err != nil {
		o.logger.Warn("failed to record changed files",
			"task_id", t.ID, "error", err)
	}
	return nil
}

// lastCommitSHA reads back the SHA checkpoint recorded for a phase.
func (o *Orchestrator) lastCommitSHA(st *state.State, phase *plan.PhaseSpec) string {
	if rec, ok := st.Phases[phase.ID]; ok {
		return rec.CommitSHA
	}
	return ""
}

// failAttempt handles an infrastructure failure of a phase attempt:
// the task lands blocked (or failed when non-recoverable) with the
// error as its reason. The task never silently disappears.
func (o *Orchestrator) failAttempt(ctx context.Context, t *task.Task, st *state.State, pl *plan.Plan, phase *plan.PhaseSpec, cause error) error {
	return o.giveUp(ctx, t, st, pl, phase, cause.Error())
}

// giveUp lands the task in blocked (human-resolvable) or failed
// (terminal) with a readable reason. A phase marked non-recoverable
// fails the task; the task-level flag applies it to every phase.
func (o *Orchestrator) giveUp(ctx context.Context, t *task.Task, st *state.State, pl *plan.Plan, phase *plan.PhaseSpec, reason string) error {
	if phase.NonRecoverable || t.NonRecoverable {
		st.Fail(phase.ID, reason)
	} else {
		st.Block(phase.ID, reason)
	}
	if err := o.commit(ctx, st, pl); err != nil {
		return err
	}
	o.syncTaskStatus(ctx, t, st)
	o.publish(events.TypeError, t.ID, events.ErrorData{
		Phase:   phase.ID,
		Message: reason,
	})
	o.logger.Warn("task stopped",
		"task_id", t.ID, "phase", phase.ID, "status", st.Status, "reason", reason)
	return nil
}

// commit persists the state+plan pair, retrying a bounded number of
// times. A failed commit means the transition did not happen; on
// persistent failure the task stays at its last committed state and is
// reported stalled, never corrupted. Commits outlive cancellation: a
// transition already paid for is always persisted.
func (o *Orchestrator) commit(ctx context.Context, st *state.State, pl *plan.Plan) error {
	ctx = context.WithoutCancel(ctx)
	var lastErr error
	for attempt := 0; attempt <= commitRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
		if lastErr = o.store.CommitPair(ctx, st, pl); lastErr == nil {
			return nil
		}
		o.logger.Warn("state commit failed, retrying",
			"task_id", st.TaskID, "attempt", attempt, "error", lastErr)
	}
	return errors.Wrap(errors.CodeCommitFailed,
		fmt.Sprintf("task %s stalled at phase index %d", st.TaskID, st.CurrentPhase),
		lastErr).
		WithWhy("the state store rejected every commit attempt").
		WithFix("check the database, then resume the task")
}

// syncTaskStatus mirrors the execution status onto the task row.
func (o *Orchestrator) syncTaskStatus(ctx context.Context, t *task.Task, st *state.State) {
	ctx = context.WithoutCancel(ctx)
	t.Status = st.Status
	t.UpdatedAt = time.Now()
	if st.Status == task.StatusCompleted || st.Status == task.StatusFailed {
		t.CompletedAt = st.CompletedAt
	}
	if err := o.store.SaveTask(ctx, t); err != nil {
		o.logger.Warn("failed to sync task status",
			"task_id", t.ID, "error", err)
	}
}

func (o *Orchestrator) publish(eventType events.Type, taskID string, data any) {
	o.publisher.Publish(events.New(eventType, taskID, data))
}

func excerpt(s string) string {
	if len(s) <= responseExcerptLimit {
		return s
	}
	return s[len(s)-responseExcerptLimit:]
}
