// Package commands implements the pagepatch CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the CLI version.
const Version = "0.1.0-dev"

// NewRootCommand builds the pagepatch command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pagepatch",
		Short: "Live document patching with two-way preview sync",
		Long: `pagepatch applies streamed page sections to live documents, mirrors
every change to browser previews and feeds manual edits back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newValidateCommand(), newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pagepatch version %s\n", Version)
		},
	}
}
