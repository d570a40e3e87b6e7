package cli

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/droverdev/drover/internal/api"
	"github.com/droverdev/drover/internal/events"
	"github.com/droverdev/drover/internal/orchestrator"
	"github.com/droverdev/drover/internal/store"
	"github.com/droverdev/drover/internal/task"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, root, s, err := setup()
			if err != nil {
				return err
			}
			defer s.Close()

			lock, err := orchestrator.AcquireProjectLock(root)
			if err != nil {
				return err
			}
			defer lock.Release()

			listen, _ := cmd.Flags().GetString("listen")
			if listen == "" {
				listen = cfg.API.Listen
			}

			pub := events.NewMemoryPublisher()
			defer pub.Close()

			runner := buildRunner(cfg, root, s, pub)
			ctrl := &serveController{store: s, runner: runner, cancels: make(map[string]context.CancelFunc)}

			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := api.NewServer(s, pub, api.WithController(ctrl))
			fmt.Printf("%s serving on %s\n", green("✓"), cyan(listen))
			return srv.ListenAndServe(ctx, listen)
		},
	}

	cmd.Flags().String("listen", "", "listen address (default from config)")
	return cmd
}

// serveController implements the dashboard's two write paths against
// the local runner.
type serveController struct {
	store  *store.Store
	runner *orchestrator.Runner

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// RequestRetry re-runs a paused or blocked task in the background.
func (c *serveController) RequestRetry(ctx context.Context, taskID string) error {
	t, err := c.store.LoadTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != task.StatusBlocked && t.Status != task.StatusPaused {
		return fmt.Errorf("task %s is %s; only paused or blocked tasks retry", taskID, t.Status)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if _, running := c.cancels[taskID]; running {
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("task %s is already running", taskID)
	}
	c.cancels[taskID] = cancel
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.cancels, taskID)
			c.mu.Unlock()
			cancel()
		}()
		_ = c.runner.RunAll(runCtx, []string{taskID})
	}()
	return nil
}

// RequestCancel pauses a running retry, or parks an idle task.
func (c *serveController) RequestCancel(ctx context.Context, taskID string) error {
	c.mu.Lock()
	cancel, running := c.cancels[taskID]
	c.mu.Unlock()
	if running {
		cancel()
		return nil
	}

	t, err := c.store.LoadTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return fmt.Errorf("task %s is already %s", taskID, t.Status)
	}

	st, err := c.store.LoadState(ctx, taskID)
	if err != nil {
		return err
	}
	pl, err := c.store.LoadPlan(ctx, taskID)
	if err != nil {
		return err
	}
	st.Pause()
	if err := c.store.CommitPair(ctx, st, pl); err != nil {
		return err
	}
	t.Status = task.StatusPaused
	return c.store.SaveTask(ctx, t)
}
