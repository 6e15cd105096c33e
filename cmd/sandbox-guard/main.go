package main

import (
	"os"

	"github.com/spf13/cobra"
)

// set via ldflags at release time
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sandbox-guard",
		Short: "Sandbox proxy for the ClearID API explorer",
		Long: "sandbox-guard fronts the ClearID API explorer, enforcing the documented " +
			"sandbox policies (hosts, credentials, payload limits, rate limits) before " +
			"requests reach the API.",
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
