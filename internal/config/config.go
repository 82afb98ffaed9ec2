// Package config loads ticketsmith configuration. It supports XDG config
// paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/kestrelworks/ticketsmith/internal/gates"
)

// Config holds all configuration for ticketsmith.
type Config struct {
	Model                  string          `mapstructure:"model"`
	QualityMode            string          `mapstructure:"quality_mode"`
	MaxStrategies          int             `mapstructure:"max_strategies"`
	MaxAttemptsPerStrategy int             `mapstructure:"max_attempts_per_strategy"`
	MaxActionsPerAttempt   int             `mapstructure:"max_actions_per_attempt"`
	UseCheckpoints         bool            `mapstructure:"use_checkpoints"`
	TicketTimeout          time.Duration   `mapstructure:"ticket_timeout"`
	Budget                 BudgetConfig    `mapstructure:"budget"`
	Gates                  GatesConfig     `mapstructure:"gates"`
	Anthropic              AnthropicConfig `mapstructure:"anthropic"`
	AWS                    AWSConfig       `mapstructure:"aws"`
}

// BudgetConfig holds the spend ceilings.
type BudgetConfig struct {
	DailyCostLimit    float64 `mapstructure:"daily_cost_limit"`
	DailyTokenLimit   int64   `mapstructure:"daily_token_limit"`
	PerTaskCostLimit  float64 `mapstructure:"per_task_cost_limit"`
	PerTaskTokenLimit int64   `mapstructure:"per_task_token_limit"`
}

// GatesConfig names the checks in each tier.
type GatesConfig struct {
	Critical    []string `mapstructure:"critical" yaml:"critical"`
	Required    []string `mapstructure:"required" yaml:"required"`
	Recommended []string `mapstructure:"recommended" yaml:"recommended"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// AWSConfig holds the Bedrock settings.
type AWSConfig struct {
	UseBedrock bool   `mapstructure:"use_bedrock"`
	Region     string `mapstructure:"region"`
	Profile    string `mapstructure:"profile"`
}

// Load loads configuration with the following precedence, highest first:
//  1. Environment variables (TICKETSMITH_*, ANTHROPIC_API_KEY)
//  2. Project config (.ticketsmith.yaml in cwd or a parent)
//  3. User config (~/.config/ticketsmith/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		pv := viper.New()
		pv.SetConfigFile(projectConfig)
		if err := pv.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("TICKETSMITH")
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	return unmarshal(v)
}

// LoadFromPath loads configuration from one explicit file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine would refuse anyway, so the
// failure happens at load time with a file-oriented message.
func (c *Config) Validate() error {
	switch gates.Mode(c.QualityMode) {
	case gates.ModeStrict, gates.ModeStandard, gates.ModePermissive:
	default:
		return fmt.Errorf("quality_mode must be strict, standard, or permissive; got %q", c.QualityMode)
	}
	if c.MaxStrategies < 3 || c.MaxStrategies > 5 {
		return fmt.Errorf("max_strategies must be between 3 and 5; got %d", c.MaxStrategies)
	}
	if c.MaxAttemptsPerStrategy < 1 {
		return fmt.Errorf("max_attempts_per_strategy must be positive; got %d", c.MaxAttemptsPerStrategy)
	}
	if c.MaxActionsPerAttempt < 1 {
		return fmt.Errorf("max_actions_per_attempt must be positive; got %d", c.MaxActionsPerAttempt)
	}
	if c.TicketTimeout <= 0 {
		return fmt.Errorf("ticket_timeout must be positive; got %s", c.TicketTimeout)
	}

	known := make(map[string]bool)
	for _, name := range gates.CheckNames() {
		known[name] = true
	}
	for _, tier := range [][]string{c.Gates.Critical, c.Gates.Required, c.Gates.Recommended} {
		for _, name := range tier {
			if !known[name] {
				valid := gates.CheckNames()
				sort.Strings(valid)
				return fmt.Errorf("unknown gate check %q; valid checks: %s", name, strings.Join(valid, ", "))
			}
		}
	}
	return nil
}

// GateConfig converts the configured tier lists to the gates package shape.
func (c *Config) GateConfig() gates.Config {
	return gates.Config{
		Critical:    c.Gates.Critical,
		Required:    c.Gates.Required,
		Recommended: c.Gates.Recommended,
	}
}

// LoadGateManifest reads a standalone gate manifest YAML file. Used by
// repos that version their gate policy separately from .ticketsmith.yaml.
func LoadGateManifest(path string) (gates.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gates.Config{}, fmt.Errorf("read gate manifest: %w", err)
	}
	var manifest GatesConfig
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return gates.Config{}, fmt.Errorf("parse gate manifest %s: %w", path, err)
	}
	return gates.Config{
		Critical:    manifest.Critical,
		Required:    manifest.Required,
		Recommended: manifest.Recommended,
	}, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	dir := userConfigDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, "config.yaml"))

	v.Set("model", cfg.Model)
	v.Set("quality_mode", cfg.QualityMode)
	v.Set("max_strategies", cfg.MaxStrategies)
	v.Set("max_attempts_per_strategy", cfg.MaxAttemptsPerStrategy)
	v.Set("max_actions_per_attempt", cfg.MaxActionsPerAttempt)
	v.Set("use_checkpoints", cfg.UseCheckpoints)
	v.Set("ticket_timeout", cfg.TicketTimeout.String())
	v.Set("budget.daily_cost_limit", cfg.Budget.DailyCostLimit)
	v.Set("budget.daily_token_limit", cfg.Budget.DailyTokenLimit)
	v.Set("budget.per_task_cost_limit", cfg.Budget.PerTaskCostLimit)
	v.Set("budget.per_task_token_limit", cfg.Budget.PerTaskTokenLimit)
	v.Set("gates.critical", cfg.Gates.Critical)
	v.Set("gates.required", cfg.Gates.Required)
	v.Set("gates.recommended", cfg.Gates.Recommended)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(userConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the project config path if one exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model:                  "claude-sonnet-4-20250514",
		QualityMode:            "standard",
		MaxStrategies:          3,
		MaxAttemptsPerStrategy: 3,
		MaxActionsPerAttempt:   20,
		UseCheckpoints:         true,
		TicketTimeout:          30 * time.Minute,
		Budget: BudgetConfig{
			DailyCostLimit:    50.0,
			DailyTokenLimit:   1_000_000,
			PerTaskCostLimit:  10.0,
			PerTaskTokenLimit: 200_000,
		},
		Gates: GatesConfig{
			Critical:    []string{"security", "syntax", "breaking-changes"},
			Required:    []string{"typecheck", "test", "build"},
			Recommended: []string{"lint", "coverage", "docs"},
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("model", d.Model)
	v.SetDefault("quality_mode", d.QualityMode)
	v.SetDefault("max_strategies", d.MaxStrategies)
	v.SetDefault("max_attempts_per_strategy", d.MaxAttemptsPerStrategy)
	v.SetDefault("max_actions_per_attempt", d.MaxActionsPerAttempt)
	v.SetDefault("use_checkpoints", d.UseCheckpoints)
	v.SetDefault("ticket_timeout", d.TicketTimeout.String())
	v.SetDefault("budget.daily_cost_limit", d.Budget.DailyCostLimit)
	v.SetDefault("budget.daily_token_limit", d.Budget.DailyTokenLimit)
	v.SetDefault("budget.per_task_cost_limit", d.Budget.PerTaskCostLimit)
	v.SetDefault("budget.per_task_token_limit", d.Budget.PerTaskTokenLimit)
	v.SetDefault("gates.critical", d.Gates.Critical)
	v.SetDefault("gates.required", d.Gates.Required)
	v.SetDefault("gates.recommended", d.Gates.Recommended)
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("aws.use_bedrock", false)
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")
}

// userConfigDir returns the XDG config directory for ticketsmith.
func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ticketsmith")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "ticketsmith")
	}
	return filepath.Join(home, ".config", "ticketsmith")
}

// findProjectConfig searches for .ticketsmith.yaml upward from cwd.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(cwd, ".ticketsmith.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return ""
		}
		cwd = parent
	}
}
