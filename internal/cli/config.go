package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"queuectl/internal/config"
)

func newConfigCmd(app *App) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(app.Config, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value (max-retries, backoff-base, enqueue-rate-per-min)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			switch key {
			case "max-retries":
				n, err := strconv.Atoi(value)
				if err != nil || n < 0 {
					return fmt.Errorf("invalid value for max-retries: %s", value)
				}
				app.Config.MaxRetries = n
			case "backoff-base":
				f, err := strconv.ParseFloat(value, 64)
				if err != nil || f < 1 {
					return fmt.Errorf("invalid value for backoff-base: %s", value)
				}
				app.Config.BackoffBase = f
			case "enqueue-rate-per-min":
				n, err := strconv.Atoi(value)
				if err != nil || n < 0 {
					return fmt.Errorf("invalid value for enqueue-rate-per-min: %s", value)
				}
				app.Config.EnqueueRatePerMin = n
			default:
				return fmt.Errorf("unknown config key: %s", key)
			}

			if err := config.Save(app.Config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			return nil
		},
	}

	configCmd.AddCommand(showCmd, setCmd)
	return configCmd
}
