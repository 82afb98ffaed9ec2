package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kestrelworks/ticketsmith/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Ticketsmith configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/ticketsmith/config.yaml
Project-specific overrides can be placed in .ticketsmith.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	// Mask API key if set
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("model: %s\n", cfg.Model)
	fmt.Printf("quality_mode: %s\n", cfg.QualityMode)
	fmt.Printf("max_strategies: %d\n", cfg.MaxStrategies)
	fmt.Printf("max_attempts_per_strategy: %d\n", cfg.MaxAttemptsPerStrategy)
	fmt.Printf("max_actions_per_attempt: %d\n", cfg.MaxActionsPerAttempt)
	fmt.Printf("use_checkpoints: %t\n", cfg.UseCheckpoints)
	fmt.Printf("ticket_timeout: %s\n", cfg.TicketTimeout)
	fmt.Printf("budget.daily_cost_limit: %.2f\n", cfg.Budget.DailyCostLimit)
	fmt.Printf("budget.daily_token_limit: %d\n", cfg.Budget.DailyTokenLimit)
	fmt.Printf("budget.per_task_cost_limit: %.2f\n", cfg.Budget.PerTaskCostLimit)
	fmt.Printf("budget.per_task_token_limit: %d\n", cfg.Budget.PerTaskTokenLimit)
	fmt.Printf("gates.critical: %s\n", strings.Join(cfg.Gates.Critical, ", "))
	fmt.Printf("gates.required: %s\n", strings.Join(cfg.Gates.Required, ", "))
	fmt.Printf("gates.recommended: %s\n", strings.Join(cfg.Gates.Recommended, ", "))
	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("aws.use_bedrock: %t\n", cfg.AWS.UseBedrock)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "model":
		return cfg.Model, nil
	case "quality_mode":
		return cfg.QualityMode, nil
	case "max_strategies":
		return strconv.Itoa(cfg.MaxStrategies), nil
	case "max_attempts_per_strategy":
		return strconv.Itoa(cfg.MaxAttemptsPerStrategy), nil
	case "max_actions_per_attempt":
		return strconv.Itoa(cfg.MaxActionsPerAttempt), nil
	case "use_checkpoints":
		return strconv.FormatBool(cfg.UseCheckpoints), nil
	case "ticket_timeout":
		return cfg.TicketTimeout.String(), nil
	case "budget.daily_cost_limit":
		return strconv.FormatFloat(cfg.Budget.DailyCostLimit, 'f', 2, 64), nil
	case "budget.daily_token_limit":
		return strconv.FormatInt(cfg.Budget.DailyTokenLimit, 10), nil
	case "budget.per_task_cost_limit":
		return strconv.FormatFloat(cfg.Budget.PerTaskCostLimit, 'f', 2, 64), nil
	case "budget.per_task_token_limit":
		return strconv.FormatInt(cfg.Budget.PerTaskTokenLimit, 10), nil
	case "anthropic.api_key":
		if cfg.Anthropic.APIKey == "" {
			return "(not set)", nil
		}
		return "****", nil
	case "aws.use_bedrock":
		return strconv.FormatBool(cfg.AWS.UseBedrock), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "model":
		cfg.Model = value
	case "quality_mode":
		cfg.QualityMode = value
	case "max_strategies":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_strategies: %w", err)
		}
		cfg.MaxStrategies = n
	case "max_attempts_per_strategy":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_attempts_per_strategy: %w", err)
		}
		cfg.MaxAttemptsPerStrategy = n
	case "max_actions_per_attempt":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_actions_per_attempt: %w", err)
		}
		cfg.MaxActionsPerAttempt = n
	case "use_checkpoints":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_checkpoints: %w", err)
		}
		cfg.UseCheckpoints = b
	case "ticket_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for ticket_timeout: %w", err)
		}
		cfg.TicketTimeout = d
	case "budget.daily_cost_limit":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for daily_cost_limit: %w", err)
		}
		cfg.Budget.DailyCostLimit = f
	case "budget.daily_token_limit":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for daily_token_limit: %w", err)
		}
		cfg.Budget.DailyTokenLimit = n
	case "budget.per_task_cost_limit":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for per_task_cost_limit: %w", err)
		}
		cfg.Budget.PerTaskCostLimit = f
	case "budget.per_task_token_limit":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for per_task_token_limit: %w", err)
		}
		cfg.Budget.PerTaskTokenLimit = n
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "aws.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for aws.use_bedrock: %w", err)
		}
		cfg.AWS.UseBedrock = b
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
