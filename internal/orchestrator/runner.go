package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/droverdev/drover/internal/store"
	"github.com/droverdev/drover/internal/task"
)

// pollInterval is how often the runner re-checks the scheduler when no
// task is ready.
const pollInterval = 250 * time.Millisecond

// Runner executes many tasks concurrently, each on its own worker, with
// total concurrency capped to bound simultaneous agent invocations.
type Runner struct {
	orch          *Orchestrator
	store         *store.Store
	scheduler     *Scheduler
	maxConcurrent int
	logger        *slog.Logger
}

// NewRunner creates a runner around an orchestrator.
func NewRunner(orch *Orchestrator, st *store.Store, maxConcurrent int, logger *slog.Logger) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		orch:          orch,
		store:         st,
		scheduler:     NewScheduler(),
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// RunAll drives the given tasks to completion or stoppage. Each task
// gets one orchestrator loop; phase transitions within a task stay
// strictly sequential while tasks interleave freely with each other.
// Cancellation pauses in-flight tasks at their next loop top.
func (r *Runner) RunAll(ctx context.Context, taskIDs []string) error {
	for _, id := range taskIDs {
		t, err := r.store.LoadTask(ctx, id)
		if err != nil {
			return err
		}
		if t.Status.IsTerminal() {
			r.logger.Info("skipping terminal task", "task_id", id, "status", t.Status)
			continue
		}
		r.scheduler.Add(id, PriorityForTask(t), nil)
	}

	sem := semaphore.NewWeighted(int64(r.maxConcurrent))
	g, gctx := errgroup.WithContext(ctx)

	for r.scheduler.Pending() > 0 {
		if gctx.Err() != nil {
			break
		}
		if r.scheduler.Stalled() {
			r.logger.Warn("remaining tasks blocked on incomplete dependencies")
			break
		}

		id := r.scheduler.Next()
		if id == "" {
			select {
			case <-gctx.Done():
			case <-time.After(pollInterval):
			}
			continue
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			r.scheduler.MarkStopped(id)
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			r.runOne(gctx, id)
			return nil
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (r *Runner) runOne(ctx context.Context, taskID string) {
	err := r.orch.Run(ctx, taskID)
	switch {
	case err == nil:
		// Completed, blocked, or paused at a gate; only a completion
		// releases dependents.
		if t, loadErr := r.store.LoadTask(context.WithoutCancel(ctx), taskID); loadErr == nil && t.Status == task.StatusCompleted {
			r.scheduler.MarkCompleted(taskID)
			return
		}
		r.scheduler.MarkStopped(taskID)
	case errors.Is(err, context.Canceled):
		r.scheduler.MarkStopped(taskID)
	default:
		r.logger.Error("task run failed", "task_id", taskID, "error", err)
		r.scheduler.MarkStopped(taskID)
	}
}
