package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/reporter-client/pkg/client"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// no config needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "reporter %s\n", client.Version)
		fmt.Fprintf(out, "  Go:       %s\n", runtime.Version())
		fmt.Fprintf(out, "  Endpoint: %s\n", client.DefaultEndpoint)
	},
}
