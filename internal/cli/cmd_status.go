package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droverdev/drover/internal/store"
	"github.com/droverdev/drover/internal/task"
)

// statusSource lets tests feed printOneStatus without a real database.
type statusSource interface {
	GetTaskStatus(ctx context.Context, taskID string) (*store.TaskStatus, error)
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [task-id]",
		Short: "Show task status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, s, err := setup()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := context.Background()

			if len(args) == 1 {
				return printOneStatus(ctx, s, args[0])
			}

			statuses, err := s.ListTaskStatuses(ctx)
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				fmt.Println(faint("no tasks have run"))
				return nil
			}
			for _, ts := range statuses {
				fmt.Printf("%s\t%s\tphase %d\titeration %d\n",
					cyan(ts.TaskID), colorStatus(task.Status(ts.Status)),
					ts.CurrentPhase, ts.Iteration)
			}
			return nil
		},
	}
}

func printOneStatus(ctx context.Context, s statusSource, id string) error {
	ts, err := s.GetTaskStatus(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s\n", cyan(ts.TaskID), colorStatus(task.Status(ts.Status)))
	fmt.Printf("  phase:      %d\n", ts.CurrentPhase)
	fmt.Printf("  iteration:  %d\n", ts.Iteration)
	if ts.LastSignal != "" {
		fmt.Printf("  signal:     %s\n", ts.LastSignal)
	}
	if ts.BlockedReason != "" {
		fmt.Printf("  reason:     %s\n", red(ts.BlockedReason))
	}
	for _, w := range ts.Warnings {
		fmt.Printf("  warning:    %s\n", yellow(w))
	}
	return nil
}
