package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droverdev/drover/internal/task"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Pause a task so it stops at the next phase boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, s, err := setup()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := context.Background()
			id := args[0]

			t, err := s.LoadTask(ctx, id)
			if err != nil {
				return err
			}
			if t.Status.IsTerminal() {
				return fmt.Errorf("task %s is already %s", id, t.Status)
			}

			// A live runner in another process pauses itself at its
			// next loop top once it sees the paused status; with no
			// runner this simply parks the task.
			st, err := s.LoadState(ctx, id)
			if err != nil {
				return fmt.Errorf("task %s has no execution state", id)
			}
			pl, err := s.LoadPlan(ctx, id)
			if err != nil {
				return err
			}

			st.Pause()
			if err := s.CommitPair(ctx, st, pl); err != nil {
				return err
			}
			t.Status = task.StatusPaused
			if err := s.SaveTask(ctx, t); err != nil {
				return err
			}

			fmt.Printf("%s paused %s\n", yellow("✓"), cyan(id))
			return nil
		},
	}
}
