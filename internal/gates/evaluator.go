// Package gates evaluates the tiered quality gates that decide whether an
// attempt's result is accepted. Three tiers with distinct consequences:
// critical failures force a rollback, required failures become warnings on
// an otherwise successful run, recommended failures are informational.
//
// A check's pass/fail logic never depends on its tier; quality modes only
// move checks between tiers or drop them.
package gates

import (
	"context"
	"fmt"

	"github.com/kestrelworks/ticketsmith/internal/exec"
	"github.com/kestrelworks/ticketsmith/internal/git"
)

// Tier is a gate severity class.
type Tier string

const (
	TierCritical    Tier = "critical"
	TierRequired    Tier = "required"
	TierRecommended Tier = "recommended"
)

// Mode selects how strictly gates are tiered.
type Mode string

const (
	ModeStrict     Mode = "strict"
	ModeStandard   Mode = "standard"
	ModePermissive Mode = "permissive"
)

// Config names the checks assigned to each tier.
type Config struct {
	Critical    []string `mapstructure:"critical" yaml:"critical"`
	Required    []string `mapstructure:"required" yaml:"required"`
	Recommended []string `mapstructure:"recommended" yaml:"recommended"`
}

// DefaultConfig is the standard-mode tier assignment.
func DefaultConfig() Config {
	return Config{
		Critical:    []string{"security", "syntax", "breaking-changes"},
		Required:    []string{"typecheck", "test", "build"},
		Recommended: []string{"lint", "coverage", "docs"},
	}
}

// ApplyMode returns the tier assignment adjusted for a quality mode.
// Strict promotes lint to required. Permissive demotes typecheck and build
// to recommended and drops coverage and docs. Standard is the config as
// given. Membership is all that changes.
func ApplyMode(cfg Config, mode Mode) Config {
	switch mode {
	case ModeStrict:
		cfg.Required = append(without(cfg.Required, "lint"), filter(cfg.Recommended, "lint")...)
		cfg.Recommended = without(cfg.Recommended, "lint")
	case ModePermissive:
		demoted := filter(cfg.Required, "typecheck", "build")
		cfg.Required = without(cfg.Required, "typecheck", "build")
		cfg.Recommended = append(without(cfg.Recommended, "coverage", "docs"), demoted...)
	}
	return cfg
}

func without(names []string, drop ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !contains(drop, n) {
			out = append(out, n)
		}
	}
	return out
}

func filter(names []string, keep ...string) []string {
	var out []string
	for _, n := range names {
		if contains(keep, n) {
			out = append(out, n)
		}
	}
	return out
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// CheckResult is the outcome of one gate check.
type CheckResult struct {
	Name   string `json:"name"`
	Tier   Tier   `json:"tier"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Report is the full gate evaluation for one attempt.
type Report struct {
	Results []CheckResult `json:"results"`
}

func (r *Report) failures(tier Tier) []CheckResult {
	var out []CheckResult
	for _, res := range r.Results {
		if res.Tier == tier && !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// CriticalFailures returns failed critical checks.
func (r *Report) CriticalFailures() []CheckResult { return r.failures(TierCritical) }

// RequiredFailures returns failed required checks.
func (r *Report) RequiredFailures() []CheckResult { return r.failures(TierRequired) }

// RecommendedFailures returns failed recommended checks.
func (r *Report) RecommendedFailures() []CheckResult { return r.failures(TierRecommended) }

// HasCriticalFailures reports whether any critical check failed.
func (r *Report) HasCriticalFailures() bool { return len(r.CriticalFailures()) > 0 }

// Warnings renders non-critical failures as warning strings.
func (r *Report) Warnings() []string {
	var out []string
	for _, res := range append(r.RequiredFailures(), r.RecommendedFailures()...) {
		msg := fmt.Sprintf("%s gate %q failed", res.Tier, res.Name)
		if res.Detail != "" {
			msg += ": " + res.Detail
		}
		out = append(out, msg)
	}
	return out
}

// Evaluator runs the configured checks against a workspace.
type Evaluator struct {
	runner  exec.CommandRunner
	git     git.DiffOperations
	workDir string
	tiers   []tierAssignment
}

type tierAssignment struct {
	tier  Tier
	check *check
}

// New builds an Evaluator from a (mode-applied) config. Every configured
// name must exist in the check registry; an unknown name is a configuration
// error, not a silently-passing gate.
func New(runner exec.CommandRunner, gitOps git.DiffOperations, workDir string, cfg Config) (*Evaluator, error) {
	e := &Evaluator{runner: runner, git: gitOps, workDir: workDir}

	for _, tc := range []struct {
		tier  Tier
		names []string
	}{
		{TierCritical, cfg.Critical},
		{TierRequired, cfg.Required},
		{TierRecommended, cfg.Recommended},
	} {
		for _, name := range tc.names {
			c, ok := registry[name]
			if !ok {
				return nil, fmt.Errorf("unknown gate check %q in %s tier", name, tc.tier)
			}
			e.tiers = append(e.tiers, tierAssignment{tier: tc.tier, check: c})
		}
	}
	return e, nil
}

// Evaluate runs every configured check against the changes since
// baselineRef and returns the per-tier report. Only a broken evaluation
// environment (git itself failing) returns an error.
func (e *Evaluator) Evaluate(ctx context.Context, baselineRef string) (*Report, error) {
	diff, err := e.git.Diff(baselineRef)
	if err != nil {
		return nil, fmt.Errorf("gate evaluation: %w", err)
	}
	changed, err := e.git.ChangedFiles(baselineRef)
	if err != nil {
		return nil, fmt.Errorf("gate evaluation: %w", err)
	}

	env := &checkEnv{
		runner:   e.runner,
		workDir:  e.workDir,
		diff:     diff,
		changed:  changed,
		commands: CommandsFor(e.workDir),
	}

	report := &Report{}
	for _, ta := range e.tiers {
		res := ta.check.run(ctx, env)
		res.Name = ta.check.name
		res.Tier = ta.tier
		report.Results = append(report.Results, res)
	}
	return report, nil
}
