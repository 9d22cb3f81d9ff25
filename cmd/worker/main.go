// Package main runs the replication Temporal worker.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds global flags for all commands.
type rootOptions struct {
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "replication-worker",
		Short:        "Replication worker",
		Long:         "Hydrates replication inputs for the replication workflow and serves them as a Temporal activity.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error); overrides LOG_LEVEL")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newFlagsCommand(opts))
	cmd.AddCommand(newStateHistoryCommand(opts))

	return cmd
}
