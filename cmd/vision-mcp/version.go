package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/vision-mcp/internal/config"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vision-mcp version %s\n", config.GetFullVersion())
		},
	}
}
