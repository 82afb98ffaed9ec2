package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kestrelworks/ticketsmith/internal/budget"
	"github.com/kestrelworks/ticketsmith/internal/config"
)

var usageDays int

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token and cost usage against the daily budget",
	Long: `Show recorded API usage per day.

Usage is tracked process-wide in ` + "`$XDG_DATA_HOME/ticketsmith/usage.db`" + `
and enforced against the daily budget limits from the configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := budget.OpenStore(budget.DefaultStorePath())
		if err != nil {
			return fmt.Errorf("open usage store: %w", err)
		}
		defer store.Close()

		report, err := store.Report(usageDays)
		if err != nil {
			return fmt.Errorf("read usage: %w", err)
		}
		if len(report) == 0 {
			fmt.Println("No usage recorded yet.")
			return nil
		}

		days := make([]string, 0, len(report))
		for day := range report {
			days = append(days, day)
		}
		sort.Sort(sort.Reverse(sort.StringSlice(days)))

		fmt.Printf("%-12s %12s %10s %6s\n", "DAY", "TOKENS", "COST", "CALLS")
		for _, day := range days {
			u := report[day]
			line := fmt.Sprintf("%-12s %12d %9.4f$ %6d", day, u.Tokens, u.Cost, u.APICalls)
			if cfg.Budget.DailyCostLimit > 0 && u.Cost >= 0.8*cfg.Budget.DailyCostLimit {
				color.Yellow("%s", line)
			} else {
				fmt.Println(line)
			}
		}

		fmt.Printf("\nDaily limits: $%.2f, %d tokens\n",
			cfg.Budget.DailyCostLimit, cfg.Budget.DailyTokenLimit)
		return nil
	},
}

func init() {
	usageCmd.Flags().IntVar(&usageDays, "days", 14, "Number of days to show")
}
