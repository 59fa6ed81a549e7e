package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "custops",
	Short: "Customer operations service",
	Long:  `Event-sourced customer operations service: support cases, customer lifecycles, SLA tracking, and health scoring`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
