package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDlqCmd(app *App) *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and retry dead-lettered jobs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all jobs in the dead letter queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := app.Service.ListDeadLetter()
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Dead letter queue is empty.")
				return nil
			}
			renderJobTable(cmd.OutOrStdout(), jobs, true)
			return nil
		},
	}

	retryCmd := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Move a dead-lettered job back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := app.Service.RetryFromDeadLetter(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s moved to pending, attempts reset\n", job.ID)
			return nil
		},
	}

	dlqCmd.AddCommand(listCmd, retryCmd)
	return dlqCmd
}
