// Package validate runs fast, file-scoped checks after mutating actions so
// the agent hears about obvious breakage before the attempt ends. It is a
// best-effort signal: a check that cannot run never fails the attempt, and
// nothing here substitutes for the quality gates.
package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kestrelworks/ticketsmith/internal/exec"
	"github.com/kestrelworks/ticketsmith/pkg/models"
)

// Result is the outcome of validating one file.
type Result struct {
	// Path is the workspace-relative file that was checked.
	Path string
	// Passed is false only when a check ran to completion and found
	// problems. Tool failures and timeouts leave it true.
	Passed bool
	// Issues holds actionable findings, fed back into the next prompt.
	Issues []string
	// Warnings holds non-actionable notes (tool missing, check timed out).
	Warnings []string
}

// checkTimeout bounds each individual check. Incremental validation sits on
// the hot path of every mutating action; anything slow belongs in the gates.
const checkTimeout = 10 * time.Second

// Validator runs per-file checks in a workspace.
type Validator struct {
	runner  exec.CommandRunner
	workDir string
	timeout time.Duration
}

// New creates a Validator for the given workspace root.
func New(runner exec.CommandRunner, workDir string) *Validator {
	return &Validator{runner: runner, workDir: workDir, timeout: checkTimeout}
}

// ShouldValidate reports whether an action warrants incremental validation.
// Only actions that change workspace content qualify.
func ShouldValidate(a models.Action) bool {
	switch a.Kind {
	case models.ActionWriteFile, models.ActionEditFile, models.ActionCommit:
		return true
	default:
		return false
	}
}

// Validate checks one workspace-relative file. It never returns an error:
// the worst outcome of a broken toolchain is a warning.
func (v *Validator) Validate(ctx context.Context, path string) Result {
	res := Result{Path: path, Passed: true}
	if path == "" {
		return res
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		v.runCheck(ctx, &res, "gofmt", "gofmt", "-l", path)
	case ".py":
		v.runCheck(ctx, &res, "py_compile", "python3", "-m", "py_compile", path)
	case ".js", ".mjs", ".cjs":
		v.runCheck(ctx, &res, "node --check", "node", "--check", path)
	case ".ts", ".tsx":
		v.runCheck(ctx, &res, "tsc", "npx", "--no-install", "tsc", "--noEmit", path)
	case ".sh":
		v.runCheck(ctx, &res, "sh -n", "sh", "-n", path)
	case ".json":
		v.checkJSON(&res, path)
	case ".yaml", ".yml":
		v.checkYAML(&res, path)
	}
	return res
}

// runCheck executes one external check and folds its outcome into res.
// gofmt is the odd one out: it exits zero and lists unformatted files on
// stdout, so non-empty output is the finding.
func (v *Validator) runCheck(ctx context.Context, res *Result, label, name string, args ...string) {
	out, err := v.runner.RunTimeout(ctx, v.timeout, v.workDir, name, args...)
	output := strings.TrimSpace(string(out))

	switch {
	case err == nil:
		if name == "gofmt" && output != "" {
			res.Passed = false
			res.Issues = append(res.Issues, fmt.Sprintf("%s: file is not gofmt-formatted", res.Path))
		}
	case errors.Is(err, context.DeadlineExceeded):
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s check timed out on %s", label, res.Path))
	case errors.Is(err, osexec.ErrNotFound):
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s unavailable, skipped for %s", label, res.Path))
	default:
		res.Passed = false
		finding := fmt.Sprintf("%s failed for %s", label, res.Path)
		if output != "" {
			finding += ": " + output
		}
		res.Issues = append(res.Issues, finding)
	}
}

func (v *Validator) checkJSON(res *Result, path string) {
	data, err := os.ReadFile(filepath.Join(v.workDir, path))
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("could not read %s: %v", path, err))
		return
	}
	if !json.Valid(data) {
		res.Passed = false
		res.Issues = append(res.Issues, fmt.Sprintf("%s is not valid JSON", path))
	}
}

func (v *Validator) checkYAML(res *Result, path string) {
	data, err := os.ReadFile(filepath.Join(v.workDir, path))
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("could not read %s: %v", path, err))
		return
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		res.Passed = false
		res.Issues = append(res.Issues, fmt.Sprintf("%s is not valid YAML: %v", path, err))
	}
}
