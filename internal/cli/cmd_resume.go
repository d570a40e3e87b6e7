package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/droverdev/drover/internal/events"
	"github.com/droverdev/drover/internal/orchestrator"
	"github.com/droverdev/drover/internal/task"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <task-id>",
		Short: "Resume a paused or blocked task",
		Long: `Resume a task from its last committed state: past a human gate,
after a pause, or retrying a blocked phase.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, root, s, err := setup()
			if err != nil {
				return err
			}
			defer s.Close()
			id := args[0]

			t, err := s.LoadTask(context.Background(), id)
			if err != nil {
				return err
			}
			if t.Status != task.StatusPaused && t.Status != task.StatusBlocked {
				return fmt.Errorf("task %s is %s; only paused or blocked tasks resume", id, t.Status)
			}

			lock, err := orchestrator.AcquireProjectLock(root)
			if err != nil {
				return err
			}
			defer lock.Release()

			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pub := events.NewMemoryPublisher()
			defer pub.Close()
			go streamEvents(pub.Subscribe(events.GlobalTaskID))

			runner := buildRunner(cfg, root, s, pub)
			if err := runner.RunAll(ctx, []string{id}); err != nil && ctx.Err() == nil {
				return err
			}

			ts, err := s.GetTaskStatus(context.Background(), id)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", cyan(id), ts.Status)
			return nil
		},
	}
}
