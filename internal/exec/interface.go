// Package exec provides a thin, mockable wrapper around subprocess execution.
package exec

import (
	"context"
	"time"
)

// CommandRunner abstracts subprocess execution so that gate checks,
// validators, and the attempt driver can be tested without spawning
// real processes.
type CommandRunner interface {
	// Run executes a command in workDir and returns combined stdout/stderr.
	Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error)
	// RunShell executes a shell command through "sh -c" in workDir.
	RunShell(ctx context.Context, workDir string, command string) ([]byte, error)
	// RunTimeout executes a command with a per-call timeout on top of ctx.
	RunTimeout(ctx context.Context, timeout time.Duration, workDir string, name string, args ...string) ([]byte, error)
	// Exists reports whether a file exists at path relative to workDir.
	Exists(ctx context.Context, workDir string, path string) bool
}
