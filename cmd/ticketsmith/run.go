package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kestrelworks/ticketsmith/internal/agent"
	"github.com/kestrelworks/ticketsmith/internal/budget"
	"github.com/kestrelworks/ticketsmith/internal/config"
	"github.com/kestrelworks/ticketsmith/internal/engine"
	"github.com/kestrelworks/ticketsmith/internal/exec"
	"github.com/kestrelworks/ticketsmith/internal/gates"
	"github.com/kestrelworks/ticketsmith/internal/git"
	"github.com/kestrelworks/ticketsmith/internal/history"
	"github.com/kestrelworks/ticketsmith/internal/sanitize"
	"github.com/kestrelworks/ticketsmith/pkg/models"
)

var (
	runTicketFile    string
	runTicketID      string
	runBody          string
	runLabels        []string
	runQualityMode   string
	runGatesFile     string
	runTimeout       time.Duration
	runNoCheckpoints bool
	runDebugLog      bool
)

var runCmd = &cobra.Command{
	Use:   "run [title]",
	Short: "Run one ticket through the engine",
	Long: `Run a single ticket from analysis to a verified, committed change.

The ticket comes either from a YAML file (--file) or from the command
line: the title as the positional argument, the description via --body,
labels via --label.

Ticket file format:
  id: PROJ-123
  title: Fix checkout rounding
  body: |
    Totals are rounded per line item instead of per order.
  labels: [bug, billing]

The run is checkpointed: if no strategy produces a change that passes
the quality gates, the workspace is restored to its pre-run state.
Touch .ticketsmith/control/stop in the workspace to cancel a run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTicket,
}

func init() {
	runCmd.Flags().StringVarP(&runTicketFile, "file", "f", "", "Load the ticket from a YAML file")
	runCmd.Flags().StringVar(&runTicketID, "id", "", "Ticket identifier (defaults to a slug of the title)")
	runCmd.Flags().StringVar(&runBody, "body", "", "Ticket description")
	runCmd.Flags().StringArrayVar(&runLabels, "label", nil, "Ticket label (repeatable)")
	runCmd.Flags().StringVar(&runQualityMode, "quality", "", "Override quality mode: strict, standard, or permissive")
	runCmd.Flags().StringVar(&runGatesFile, "gates", "", "Load gate tiers from a YAML manifest")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Override the per-ticket timeout")
	runCmd.Flags().BoolVar(&runNoCheckpoints, "no-checkpoints", false, "Disable checkpointing and rollback (dangerous)")
	runCmd.Flags().BoolVar(&runDebugLog, "debug-log", false, "Write a debug log to .ticketsmith/logs/")
}

func runTicket(cmd *cobra.Command, args []string) error {
	t, err := loadTicket(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runQualityMode != "" {
		cfg.QualityMode = runQualityMode
	}
	if runGatesFile != "" {
		manifest, err := config.LoadGateManifest(runGatesFile)
		if err != nil {
			return err
		}
		cfg.Gates = config.GatesConfig{
			Critical:    manifest.Critical,
			Required:    manifest.Required,
			Recommended: manifest.Recommended,
		}
	}
	if runQualityMode != "" || runGatesFile != "" {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if runTimeout > 0 {
		cfg.TicketTimeout = runTimeout
	}

	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	if cfg.Anthropic.APIKey != "" {
		sanitize.Register(cfg.Anthropic.APIKey)
	}
	client, err := agent.NewClient(agent.ClientConfig{
		Model:         cfg.Model,
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.AWS.UseBedrock,
		AWSRegion:     cfg.AWS.Region,
		AWSProfile:    cfg.AWS.Profile,
	})
	if err != nil {
		return fmt.Errorf("create agent client: %w", err)
	}

	// Daily counters persist across runs; a store failure degrades to
	// in-memory enforcement rather than blocking the run.
	var usageStore *budget.UsageStore
	if us, err := budget.OpenStore(budget.DefaultStorePath()); err == nil {
		usageStore = us
		defer usageStore.Close()
	} else {
		fmt.Printf("Warning: usage store unavailable: %v\n", err)
	}

	ledger, err := budget.NewLedger(budget.LedgerConfig{
		Model:           cfg.Model,
		Store:           usageStore,
		DailyTokenLimit: cfg.Budget.DailyTokenLimit,
		DailyCostLimit:  cfg.Budget.DailyCostLimit,
	})
	if err != nil {
		return fmt.Errorf("open budget ledger: %w", err)
	}

	var hist *history.Store
	if h, err := history.Open(history.ProjectPath(workspace)); err == nil {
		hist = h
		defer hist.Close()
	} else {
		fmt.Printf("Warning: outcome history unavailable: %v\n", err)
	}

	logger := engine.NopLogger()
	if runDebugLog {
		logger = engine.NewDebugLoggerForWorkspace(workspace)
		defer logger.Close()
	}

	eng, err := engine.New(engine.Config{
		WorkspaceRoot:          workspace,
		MaxStrategies:          cfg.MaxStrategies,
		MaxAttemptsPerStrategy: cfg.MaxAttemptsPerStrategy,
		MaxActionsPerAttempt:   cfg.MaxActionsPerAttempt,
		UseCheckpoints:         cfg.UseCheckpoints && !runNoCheckpoints,
		TicketTimeout:          cfg.TicketTimeout,
		QualityMode:            gates.Mode(cfg.QualityMode),
		Gates:                  cfg.GateConfig(),
		TaskBudget: models.Budget{
			DailyCostLimit:    cfg.Budget.DailyCostLimit,
			DailyTokenLimit:   cfg.Budget.DailyTokenLimit,
			PerTaskCostLimit:  cfg.Budget.PerTaskCostLimit,
			PerTaskTokenLimit: cfg.Budget.PerTaskTokenLimit,
		},
	}, engine.Deps{
		Agent:   client,
		Ledger:  ledger,
		Git:     git.NewRunner(workspace),
		Exec:    exec.NewRunner(),
		History: hist,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, rolling back...")
		cancel()
	}()

	fmt.Printf("Running ticket %s: %s\n", t.ID, t.Title)
	fmt.Printf("  Quality mode: %s\n", cfg.QualityMode)
	fmt.Printf("  Budget: $%.2f per task, $%.2f daily\n\n",
		cfg.Budget.PerTaskCostLimit, cfg.Budget.DailyCostLimit)

	res, err := eng.Run(ctx, t)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	printResult(res)
	if res.Status != engine.StatusDone {
		os.Exit(1)
	}
	return nil
}

// loadTicket builds the ticket from --file or from the command line.
func loadTicket(args []string) (models.Ticket, error) {
	if runTicketFile != "" {
		data, err := os.ReadFile(runTicketFile)
		if err != nil {
			return models.Ticket{}, fmt.Errorf("read ticket file: %w", err)
		}
		var t models.Ticket
		if err := yaml.Unmarshal(data, &t); err != nil {
			return models.Ticket{}, fmt.Errorf("parse ticket file %s: %w", runTicketFile, err)
		}
		if t.Title == "" {
			return models.Ticket{}, fmt.Errorf("ticket file %s has no title", runTicketFile)
		}
		if t.ID == "" {
			t.ID = slugify(t.Title)
		}
		t.Source = models.TicketSourceFile
		return t, nil
	}

	if len(args) == 0 {
		return models.Ticket{}, fmt.Errorf("provide a ticket title or --file")
	}
	t := models.Ticket{
		ID:     runTicketID,
		Title:  args[0],
		Body:   runBody,
		Labels: runLabels,
		Source: models.TicketSourceManual,
	}
	if t.ID == "" {
		t.ID = slugify(t.Title)
	}
	return t, nil
}

// slugify derives a stable ticket ID from a title.
func slugify(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 48 {
		slug = slug[:48]
	}
	if slug == "" {
		slug = "ticket"
	}
	return slug
}

func printResult(res *engine.Result) {
	fmt.Println()
	switch res.Status {
	case engine.StatusDone:
		color.Green("Done: %s", res.Summary)
		fmt.Printf("  Strategy: %s\n", res.StrategyUsed)
		fmt.Printf("  Attempts: %d\n", res.AttemptsUsed)
		fmt.Printf("  Files changed: %d\n", res.FilesChanged)
	case engine.StatusExhausted:
		color.Red("Exhausted: no strategy passed the gates after %d attempt(s)", res.AttemptsUsed)
		fmt.Println("  Workspace restored to its pre-run state.")
	case engine.StatusAborted:
		color.Yellow("Aborted: %s", res.AbortReason)
	}
	fmt.Printf("  Cost: $%.4f (%d tokens) in %s\n", res.Cost, res.Tokens, res.Duration.Round(time.Second))

	for _, w := range res.Warnings {
		color.Yellow("  warning: %s", w)
	}
	for _, e := range res.Errors {
		color.Red("  error: %s", e)
	}
}
