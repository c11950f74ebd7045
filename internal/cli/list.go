package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"queuectl/internal/models"
	"queuectl/internal/service"
)

func newListCmd(app *App) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := app.Service.ListByState(models.JobState(state))
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No jobs in state %q.\n", state)
				return nil
			}
			renderJobTable(cmd.OutOrStdout(), jobs, false)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Job state to list (pending, processing, failed, completed, dead)")
	cmd.MarkFlagRequired("state")
	return cmd
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts and worker pool liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := app.Service.Stats()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"State", "Jobs"})
			for _, s := range models.ValidStates {
				table.Append([]string{string(s), strconv.Itoa(stats[s])})
			}
			table.Render()

			status, err := service.ReadPoolStatus(app.Config.DataDir)
			if err != nil {
				return err
			}
			switch {
			case status == nil:
				fmt.Fprintln(out, "Workers: stopped")
			case status.Alive():
				fmt.Fprintf(out, "Workers: %d running (pid %d, started %s)\n",
					status.Count, status.PID, status.StartedAt.Format(time.RFC3339))
			default:
				fmt.Fprintf(out, "Workers: stopped (stale marker from pid %d)\n", status.PID)
			}
			return nil
		},
	}
}

// renderJobTable prints jobs as a table; withError adds the last-error
// column used by dlq listings.
func renderJobTable(out io.Writer, jobs []*models.Job, withError bool) {
	table := tablewriter.NewWriter(out)
	headers := []string{"ID", "Command", "State", "Attempts", "Updated"}
	if withError {
		headers = append(headers, "Error")
	}
	table.SetHeader(headers)

	for _, j := range jobs {
		row := []string{
			j.ID,
			j.Command,
			string(j.State),
			fmt.Sprintf("%d/%d", j.Attempts, j.MaxRetries),
			j.UpdatedAt.Format(time.RFC3339),
		}
		if withError {
			row = append(row, j.LastError)
		}
		table.Append(row)
	}
	table.Render()
}
