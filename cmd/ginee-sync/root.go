package main

import (
	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ginee-sync",
		Short: "Sync Ginee orders into the database",
		Long: `ginee-sync backfills Ginee orders day by day, fetching every day until
repeated fetches agree on its size, then merges the orders and pulls their
items and details. An optional incremental stage keeps recent updates flowing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (default ./configs/config.yaml, env CONFIG_PATH)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newUnitsCommand(opts))

	return cmd
}
