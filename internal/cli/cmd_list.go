package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, s, err := setup()
			if err != nil {
				return err
			}
			defer s.Close()

			tasks, err := s.ListTasks(context.Background())
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Println(faint("no tasks"))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tWEIGHT\tTITLE")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					cyan(t.ID), colorStatus(t.Status), t.Weight, t.Title)
			}
			return w.Flush()
		},
	}
}
