package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"queuectl/internal/executor"
	"queuectl/internal/metrics"
	"queuectl/internal/service"
)

func newWorkerCmd(app *App) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage the worker pool",
	}

	var count int
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a pool of workers in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("worker count must be at least 1, got %d", count)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool := service.NewPool(
				app.Repo,
				executor.NewShellRunner(),
				app.Config.DataDir,
				app.Config.BackoffBase,
				count,
				metrics.NewMetrics(),
			)
			return pool.Start(ctx)
		},
	}
	startCmd.Flags().IntVar(&count, "count", 1, "Number of worker loops")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Signal the running worker pool to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := service.ReadPoolStatus(app.Config.DataDir)
			if err != nil {
				return err
			}
			if status == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No worker pool is running.")
				return nil
			}
			if !status.Alive() {
				fmt.Fprintf(cmd.OutOrStdout(), "No worker pool is running (stale marker from pid %d).\n", status.PID)
				return nil
			}

			proc, err := os.FindProcess(status.PID)
			if err != nil {
				return fmt.Errorf("find pool process %d: %w", status.PID, err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal pool process %d: %w", status.PID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stop signal sent to pool pid %d; in-flight jobs will drain.\n", status.PID)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show worker pool liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := service.ReadPoolStatus(app.Config.DataDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
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

	workerCmd.AddCommand(startCmd, stopCmd, statusCmd)
	return workerCmd
}
