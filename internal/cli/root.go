// Package cli wires the queue core to its cobra command surface. The
// commands only parse input, call the service layer, and render output;
// queue semantics live below.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"queuectl/internal/config"
	"queuectl/internal/repository"
	"queuectl/internal/service"
)

// App carries the per-process collaborators every command shares.
type App struct {
	Config  *config.Config
	Repo    repository.JobRepository
	Service *service.JobService
}

// NewRootCmd builds the queuectl command tree. The repository and config
// are constructed once per invocation in the persistent pre-run, so every
// subcommand sees the same store instance.
func NewRootCmd() *cobra.Command {
	app := &App{}
	var dataDir string

	root := &cobra.Command{
		Use:           "queuectl",
		Short:         "A persistent single-machine job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(dataDir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			repo, err := repository.NewFileRepository(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("open queue store: %w", err)
			}
			app.Config = cfg
			app.Repo = repo
			app.Service = service.NewJobService(repo, cfg.EnqueueRatePerMin)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override the data directory")

	root.AddCommand(
		newEnqueueCmd(app),
		newListCmd(app),
		newStatusCmd(app),
		newWorkerCmd(app),
		newDlqCmd(app),
		newConfigCmd(app),
	)
	return root
}
