package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kestrelworks/ticketsmith/internal/history"
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Summarize recorded run outcomes for this project",
	Long: `Summarize past ticket runs: success rate, average attempts and cost,
the strategies that worked best, and recurring failure messages.

Outcomes are recorded per project in .ticketsmith/outcomes.db. The same
records feed strategy ranking on future runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workspace, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}

		store, err := history.Open(history.ProjectPath(workspace))
		if err != nil {
			return fmt.Errorf("open outcome history: %w", err)
		}
		defer store.Close()

		ins, err := store.Insights()
		if err != nil {
			return fmt.Errorf("compute insights: %w", err)
		}
		if ins.TotalRuns == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		fmt.Printf("Runs:         %d\n", ins.TotalRuns)
		rate := fmt.Sprintf("%.0f%%", ins.SuccessRate*100)
		if ins.SuccessRate >= 0.7 {
			color.Green("Success rate: %s", rate)
		} else {
			color.Yellow("Success rate: %s", rate)
		}
		fmt.Printf("Avg attempts: %.1f\n", ins.AvgAttempts)
		fmt.Printf("Avg cost:     $%.4f\n", ins.AvgCost)
		fmt.Printf("Avg duration: %s\n",
			(time.Duration(ins.AvgDurationSeconds*float64(time.Second))).Round(time.Second))

		if len(ins.BestStrategies) > 0 {
			fmt.Println("\nBest strategies:")
			for _, s := range ins.BestStrategies {
				fmt.Printf("  %-40s %3.0f%% over %d run(s)\n", s.Name, s.SuccessRate*100, s.Runs)
			}
		}
		if len(ins.CommonFailures) > 0 {
			fmt.Println("\nCommon failures:")
			for _, f := range ins.CommonFailures {
				fmt.Printf("  %dx %s\n", f.Count, f.Message)
			}
		}
		return nil
	},
}
