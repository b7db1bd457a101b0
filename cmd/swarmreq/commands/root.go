// Package commands implements the swarmreq CLI's cobra command tree.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/swarmreq/swarmreq/pkg/swarmlog"
)

// NewRootCmd builds the top-level swarmreq command, wiring log as the
// logger every subcommand's engine uses.
func NewRootCmd(log swarmlog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "swarmreq",
		Short: "Fan-out HTTP request engine",
	}
	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(log),
	)
	return rootCmd
}
