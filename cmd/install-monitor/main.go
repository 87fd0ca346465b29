package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "install-monitor",
	Short: "Watches the dotnet-install scripts and files incidents when they break",
	Long: "install-monitor probes the install script download URLs and runs the scripts in dry-run mode " +
		"on a schedule, records every outcome in a telemetry store and turns Grafana alerts into Azure DevOps work items.",
	SilenceUsage: true,
	// Без подкоманды запускаем сервер
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
