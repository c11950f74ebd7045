package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEnqueueCmd(app *App) *cobra.Command {
	var maxRetries int

	cmd := &cobra.Command{
		Use:   "enqueue <command> [command...]",
		Short: "Add one or more shell commands to the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			retries := maxRetries
			if !cmd.Flags().Changed("max-retries") {
				retries = app.Config.MaxRetries
			}
			for _, command := range args {
				job, err := app.Service.Enqueue(command, retries)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s\n", job.ID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Retry budget before the job is dead-lettered (default from config)")
	return cmd
}
