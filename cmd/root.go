// Package cmd wires the command-line interface of the tutor relay.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tutor-relay",
	Short: "AI tutoring session and provider relay",
	Long: `tutor-relay bridges students and an LLM provider for textbook-based
tutoring. It keeps per-student session context in memory, composes
page-aware prompts, streams answers back over SSE, and degrades to
locally generated answers when the provider is unavailable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Running without a subcommand starts the server.
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
