package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droverdev/drover/internal/plan"
	"github.com/droverdev/drover/internal/state"
	"github.com/droverdev/drover/internal/task"
)

func newNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new <title>",
		Short: "Create a new task",
		Long: `Create a new task and its phase plan.

The weight (trivial, small, medium, large) picks the plan template.

Example:
  drover new "Fix authentication timeout"
  drover new "Implement dashboard" --weight large
  drover new "Nightly dependency bump" --automation`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, s, err := setup()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := context.Background()

			weightStr, _ := cmd.Flags().GetString("weight")
			category, _ := cmd.Flags().GetString("category")
			description, _ := cmd.Flags().GetString("description")
			isAutomation, _ := cmd.Flags().GetBool("automation")

			ids, err := s.ListTaskIDs(ctx)
			if err != nil {
				return fmt.Errorf("list task IDs: %w", err)
			}

			t := task.New(task.NextID(ids), args[0], task.ParseWeight(weightStr))
			t.Description = description
			t.Category = task.Category(category)
			t.IsAutomation = isAutomation
			if err := t.Validate(); err != nil {
				return err
			}

			pl, err := plan.CreateFromTemplate(t)
			if err != nil {
				return fmt.Errorf("create plan: %w", err)
			}

			if err := s.SaveTask(ctx, t); err != nil {
				return err
			}
			if err := s.CommitPair(ctx, state.New(t.ID), pl); err != nil {
				return err
			}

			fmt.Printf("%s created %s: %s (%s, %d phases)\n",
				green("✓"), cyan(t.ID), t.Title, t.Weight, len(pl.Phases))
			return nil
		},
	}

	cmd.Flags().StringP("weight", "w", "medium", "task weight (trivial, small, medium, large)")
	cmd.Flags().StringP("category", "c", "feature", "task category (feature, bug, refactor, docs, chore)")
	cmd.Flags().StringP("description", "d", "", "longer task description")
	cmd.Flags().Bool("automation", false, "mark as fully unattended automation task")
	return cmd
}
