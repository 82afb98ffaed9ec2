package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ticketsmith",
	Short: "Ticket-to-code orchestration engine",
	Long: `Ticketsmith drives an external coding agent to turn a ticket into a
verified, committed code change.

A run analyzes the ticket for clarity, estimates its cost against the
budget, plans several implementation strategies, and attempts each one
inside a git checkpoint. Changes only survive if they pass the quality
gates; anything else is rolled back, and an exhausted run leaves the
workspace exactly as it found it.

Core capabilities:
- Pre-flight ticket analysis and cost estimation
- Ranked strategy planning informed by past outcomes
- Checkpointed attempts with automatic rollback
- Tiered quality gates (critical / required / recommended)
- Daily and per-task budget enforcement`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(versionCmd)
}
