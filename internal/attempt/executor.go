package attempt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kestrelworks/ticketsmith/internal/exec"
	"github.com/kestrelworks/ticketsmith/internal/git"
	"github.com/kestrelworks/ticketsmith/pkg/models"
)

// Limits on what one action may produce or consume. Oversized content is
// truncated in the observation, never in the workspace.
const (
	maxObservationBytes = 32 * 1024
	commandTimeout      = 2 * time.Minute
)

// ActionOutcome is what one executed action reports back to the agent.
type ActionOutcome struct {
	Action models.Action
	// Rejected means the action was refused before touching anything.
	Rejected bool
	// Observation is the text fed back to the agent: file content, command
	// output, a confirmation, or the rejection reason.
	Observation string
}

// Executor applies agent actions to the workspace. Actions are untrusted
// input: every path is confined to the workspace root and every command
// goes through the denylist before anything runs.
type Executor struct {
	workDir string
	runner  exec.CommandRunner
	git     git.SnapshotOperations
}

// NewExecutor creates an executor rooted at workDir.
func NewExecutor(workDir string, runner exec.CommandRunner, gitOps git.SnapshotOperations) *Executor {
	return &Executor{workDir: workDir, runner: runner, git: gitOps}
}

// Execute applies one action. Rejections and tool failures are reported in
// the outcome, not as errors; the attempt continues either way.
func (e *Executor) Execute(ctx context.Context, a models.Action) ActionOutcome {
	switch a.Kind {
	case models.ActionReadFile:
		return e.readFile(a)
	case models.ActionWriteFile:
		return e.writeFile(a)
	case models.ActionEditFile:
		return e.editFile(a)
	case models.ActionRunCommand:
		return e.runCommand(ctx, a)
	case models.ActionCommit:
		return e.commit(a)
	default:
		return reject(a, fmt.Sprintf("action %q is not executable", a.Kind))
	}
}

// confine resolves a workspace-relative path, rejecting anything that would
// escape the workspace root. The lexical check alone is not enough: a
// symlink planted by an earlier command could redirect a later write, so
// the nearest existing ancestor is resolved and re-checked.
func (e *Executor) confine(path string) (string, error) {
	cleaned := filepath.Clean(path)
	if filepath.IsAbs(cleaned) || !filepath.IsLocal(cleaned) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	full := filepath.Join(e.workDir, cleaned)

	root, err := filepath.EvalSymlinks(e.workDir)
	if err != nil {
		root = e.workDir
	}
	probe := full
	for {
		resolved, err := filepath.EvalSymlinks(probe)
		if err == nil {
			if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
				return "", fmt.Errorf("path %q escapes the workspace", path)
			}
			break
		}
		// A dangling symlink still redirects the write once its target is
		// created; refuse it outright.
		if fi, lerr := os.Lstat(probe); lerr == nil && fi.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("path %q escapes the workspace", path)
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}
	return full, nil
}

func (e *Executor) readFile(a models.Action) ActionOutcome {
	full, err := e.confine(a.Path)
	if err != nil {
		return reject(a, err.Error())
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return ActionOutcome{Action: a, Observation: fmt.Sprintf("could not read %s: %v", a.Path, err)}
	}
	return ActionOutcome{Action: a, Observation: truncate(string(data))}
}

func (e *Executor) writeFile(a models.Action) ActionOutcome {
	full, err := e.confine(a.Path)
	if err != nil {
		return reject(a, err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return ActionOutcome{Action: a, Observation: fmt.Sprintf("could not create directory for %s: %v", a.Path, err)}
	}
	if err := os.WriteFile(full, []byte(a.Content), 0644); err != nil {
		return ActionOutcome{Action: a, Observation: fmt.Sprintf("could not write %s: %v", a.Path, err)}
	}
	return ActionOutcome{Action: a, Observation: fmt.Sprintf("wrote %s (%d bytes)", a.Path, len(a.Content))}
}

func (e *Executor) editFile(a models.Action) ActionOutcome {
	full, err := e.confine(a.Path)
	if err != nil {
		return reject(a, err.Error())
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return ActionOutcome{Action: a, Observation: fmt.Sprintf("could not read %s: %v", a.Path, err)}
	}
	content := string(data)
	if !strings.Contains(content, a.Search) {
		return ActionOutcome{Action: a,
			Observation: fmt.Sprintf("search text not found in %s; re-read the file and retry with exact text", a.Path)}
	}
	updated := strings.Replace(content, a.Search, a.Replace, 1)
	if err := os.WriteFile(full, []byte(updated), 0644); err != nil {
		return ActionOutcome{Action: a, Observation: fmt.Sprintf("could not write %s: %v", a.Path, err)}
	}
	return ActionOutcome{Action: a, Observation: fmt.Sprintf("edited %s", a.Path)}
}

func (e *Executor) runCommand(ctx context.Context, a models.Action) ActionOutcome {
	if reason := deniedCommand(a.Command); reason != "" {
		return reject(a, reason)
	}
	out, err := e.runner.RunTimeout(ctx, commandTimeout, e.workDir, "sh", "-c", a.Command)
	obs := truncate(strings.TrimSpace(string(out)))
	if err != nil {
		if obs != "" {
			obs += "\n"
		}
		obs += fmt.Sprintf("command failed: %v", err)
	} else if obs == "" {
		obs = "command succeeded with no output"
	}
	return ActionOutcome{Action: a, Observation: obs}
}

func (e *Executor) commit(a models.Action) ActionOutcome {
	if err := e.git.AddAll(); err != nil {
		return ActionOutcome{Action: a, Observation: fmt.Sprintf("could not stage changes: %v", err)}
	}
	if err := e.git.CommitAllowEmpty(a.Message); err != nil {
		return ActionOutcome{Action: a, Observation: fmt.Sprintf("could not commit: %v", err)}
	}
	return ActionOutcome{Action: a, Observation: fmt.Sprintf("committed: %s", a.Message)}
}

func reject(a models.Action, reason string) ActionOutcome {
	return ActionOutcome{Action: a, Rejected: true, Observation: "action rejected: " + reason}
}

func truncate(s string) string {
	if len(s) > maxObservationBytes {
		return s[:maxObservationBytes] + "\n...[truncated]"
	}
	return s
}
