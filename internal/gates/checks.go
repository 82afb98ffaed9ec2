package gates

import (
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/kestrelworks/ticketsmith/internal/exec"
	"github.com/kestrelworks/ticketsmith/internal/validate"
)

// Per-check ceilings. Build and test get the long budget; everything else
// must come back fast.
const (
	longCheckTimeout  = 5 * time.Minute
	shortCheckTimeout = 2 * time.Minute
)

// checkEnv carries the evaluation inputs shared by all checks.
type checkEnv struct {
	runner   exec.CommandRunner
	workDir  string
	diff     string
	changed  []string
	commands ProjectCommands
}

type check struct {
	name string
	run  func(ctx context.Context, env *checkEnv) CheckResult
}

// registry maps configurable check names to their implementations. Tier
// placement lives in configuration; behavior lives here, once per check.
var registry = map[string]*check{
	"security":         {name: "security", run: checkSecurity},
	"syntax":           {name: "syntax", run: checkSyntax},
	"breaking-changes": {name: "breaking-changes", run: checkBreakingChanges},
	"typecheck":        {name: "typecheck", run: commandCheck("typecheck", shortCheckTimeout, func(c ProjectCommands) []string { return c.Typecheck })},
	"test":             {name: "test", run: commandCheck("test", longCheckTimeout, func(c ProjectCommands) []string { return c.Test })},
	"build":            {name: "build", run: commandCheck("build", longCheckTimeout, func(c ProjectCommands) []string { return c.Build })},
	"lint":             {name: "lint", run: checkLint},
	"coverage":         {name: "coverage", run: commandCheck("coverage", longCheckTimeout, func(c ProjectCommands) []string { return c.Coverage })},
	"docs":             {name: "docs", run: checkDocs},
}

// CheckNames returns every registered check name.
func CheckNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// Patterns for secrets introduced by a change. Matched against added diff
// lines only.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|secret|password|passwd|token)\s*[:=]\s*["'][^"']{8,}["']`),
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{8,}`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
}

// checkSecurity scans added lines for hardcoded credentials.
func checkSecurity(_ context.Context, env *checkEnv) CheckResult {
	var hits []string
	for _, line := range addedLines(env.diff) {
		for _, pat := range secretPatterns {
			if pat.MatchString(line) {
				hits = append(hits, strings.TrimSpace(line))
				break
			}
		}
	}
	if len(hits) > 0 {
		return CheckResult{Passed: false,
			Detail: fmt.Sprintf("possible hardcoded secrets in %d added line(s)", len(hits))}
	}
	return CheckResult{Passed: true}
}

// checkSyntax runs file-scoped syntax checks over every changed file,
// reusing the incremental validator's per-extension table.
func checkSyntax(ctx context.Context, env *checkEnv) CheckResult {
	v := validate.New(env.runner, env.workDir)
	var issues []string
	for _, path := range env.changed {
		res := v.Validate(ctx, path)
		issues = append(issues, res.Issues...)
	}
	if len(issues) > 0 {
		return CheckResult{Passed: false, Detail: strings.Join(issues, "; ")}
	}
	return CheckResult{Passed: true}
}

// Removed public-surface declarations. Heuristic over deleted diff lines;
// false positives here cost a retry, false negatives cost an API break.
var publicDeclRe = regexp.MustCompile(`^-\s*(func [A-Z]|type [A-Z]|pub fn |public |export |def [a-zA-Z])`)

func checkBreakingChanges(_ context.Context, env *checkEnv) CheckResult {
	var removed []string
	for _, line := range strings.Split(env.diff, "\n") {
		if strings.HasPrefix(line, "---") {
			continue
		}
		if publicDeclRe.MatchString(line) {
			removed = append(removed, strings.TrimSpace(strings.TrimPrefix(line, "-")))
		}
	}
	if len(removed) > 0 {
		return CheckResult{Passed: false,
			Detail: fmt.Sprintf("%d public declaration(s) removed: %s", len(removed), strings.Join(first(removed, 3), "; "))}
	}
	return CheckResult{Passed: true}
}

// commandCheck wraps a project command as a gate check. No command for the
// project type means the concern is skipped, which passes.
func commandCheck(label string, timeout time.Duration, pick func(ProjectCommands) []string) func(context.Context, *checkEnv) CheckResult {
	return func(ctx context.Context, env *checkEnv) CheckResult {
		cmd := pick(env.commands)
		if len(cmd) == 0 {
			return CheckResult{Passed: true, Detail: "skipped: no " + label + " command for this project"}
		}
		return runGateCommand(ctx, env, label, timeout, cmd)
	}
}

// checkLint is the command check plus the gofmt special case: gofmt exits
// zero and lists offending files instead.
func checkLint(ctx context.Context, env *checkEnv) CheckResult {
	cmd := env.commands.Lint
	if len(cmd) == 0 {
		return CheckResult{Passed: true, Detail: "skipped: no lint command for this project"}
	}
	if cmd[0] == "gofmt" {
		out, err := env.runner.RunTimeout(ctx, shortCheckTimeout, env.workDir, cmd[0], cmd[1:]...)
		if err == nil && strings.TrimSpace(string(out)) != "" {
			return CheckResult{Passed: false, Detail: "unformatted files: " + strings.TrimSpace(string(out))}
		}
		if err != nil && !errors.Is(err, osexec.ErrNotFound) {
			return CheckResult{Passed: false, Detail: trimOutput(out)}
		}
		return CheckResult{Passed: true}
	}
	return runGateCommand(ctx, env, "lint", shortCheckTimeout, cmd)
}

// checkDocs flags exported Go functions added without a doc comment
// directly above them in the same hunk.
func checkDocs(_ context.Context, env *checkEnv) CheckResult {
	var undocumented []string
	prevComment := false
	for _, line := range addedLines(env.diff) {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "func ") && len(trimmed) > 5 &&
			trimmed[5] >= 'A' && trimmed[5] <= 'Z' && !prevComment {
			undocumented = append(undocumented, trimmed)
		}
		prevComment = strings.HasPrefix(trimmed, "//")
	}
	if len(undocumented) > 0 {
		return CheckResult{Passed: false,
			Detail: fmt.Sprintf("%d exported function(s) added without doc comments", len(undocumented))}
	}
	return CheckResult{Passed: true}
}

// runGateCommand executes one project command. Unlike incremental
// validation, a timeout fails the gate: gates are the authoritative signal
// and a hung test suite is a finding. Only a missing tool skips.
func runGateCommand(ctx context.Context, env *checkEnv, label string, timeout time.Duration, cmd []string) CheckResult {
	out, err := env.runner.RunTimeout(ctx, timeout, env.workDir, cmd[0], cmd[1:]...)
	switch {
	case err == nil:
		return CheckResult{Passed: true}
	case errors.Is(err, osexec.ErrNotFound):
		return CheckResult{Passed: true, Detail: "skipped: " + cmd[0] + " unavailable"}
	case errors.Is(err, context.DeadlineExceeded):
		return CheckResult{Passed: false, Detail: label + " timed out after " + timeout.String()}
	default:
		return CheckResult{Passed: false, Detail: trimOutput(out)}
	}
}

// addedLines returns diff lines added by the change, prefix stripped.
func addedLines(diff string) []string {
	var out []string
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			out = append(out, line[1:])
		}
	}
	return out
}

func first(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// trimOutput bounds command output carried in a check detail.
func trimOutput(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 500 {
		s = s[:500] + "..."
	}
	return s
}
