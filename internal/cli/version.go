package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auralforge/auralforge/internal/handler"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the auralctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "auralctl %s\n", handler.Version)
		},
	}
}
