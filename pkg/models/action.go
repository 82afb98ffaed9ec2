package models

import "fmt"

// ActionKind identifies one of the closed set of actions the agent may emit.
type ActionKind string

const (
	// ActionReadFile requests the contents of a workspace file.
	ActionReadFile ActionKind = "read_file"
	// ActionWriteFile creates or replaces a workspace file.
	ActionWriteFile ActionKind = "write_file"
	// ActionEditFile replaces the first occurrence of Search with Replace.
	ActionEditFile ActionKind = "edit_file"
	// ActionRunCommand runs a shell command inside the workspace.
	ActionRunCommand ActionKind = "run_command"
	// ActionCommit stages all changes and creates a git commit.
	ActionCommit ActionKind = "commit"
	// ActionDone signals the agent considers the implementation complete.
	ActionDone ActionKind = "done"
)

// Valid returns true if the kind is a known action type.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionReadFile, ActionWriteFile, ActionEditFile,
		ActionRunCommand, ActionCommit, ActionDone:
		return true
	default:
		return false
	}
}

// Mutates returns true if executing the action can modify the workspace.
func (k ActionKind) Mutates() bool {
	switch k {
	case ActionWriteFile, ActionEditFile, ActionRunCommand, ActionCommit:
		return true
	default:
		return false
	}
}

// Action is one instruction emitted by the external agent. Actions are
// untrusted input: the attempt driver validates paths and commands against
// the workspace confinement policy before executing anything.
type Action struct {
	// Kind selects which fields below are meaningful.
	Kind ActionKind `json:"action"`
	// Path is the workspace-relative file path (read_file, write_file, edit_file).
	Path string `json:"path,omitempty"`
	// Content is the full file content for write_file.
	Content string `json:"content,omitempty"`
	// Search is the text to find for edit_file.
	Search string `json:"search,omitempty"`
	// Replace is the replacement text for edit_file.
	Replace string `json:"replace,omitempty"`
	// Command is the shell command for run_command.
	Command string `json:"command,omitempty"`
	// Message is the commit message for commit.
	Message string `json:"message,omitempty"`
	// Summary is the completion summary for done.
	Summary string `json:"summary,omitempty"`
}

// Validate checks that the action kind is known and its required fields
// are present. It does not check workspace confinement; that is the
// attempt driver's responsibility.
func (a *Action) Validate() error {
	switch a.Kind {
	case ActionReadFile:
		if a.Path == "" {
			return fmt.Errorf("read_file: path is required")
		}
	case ActionWriteFile:
		if a.Path == "" {
			return fmt.Errorf("write_file: path is required")
		}
	case ActionEditFile:
		if a.Path == "" {
			return fmt.Errorf("edit_file: path is required")
		}
		if a.Search == "" {
			return fmt.Errorf("edit_file: search is required")
		}
	case ActionRunCommand:
		if a.Command == "" {
			return fmt.Errorf("run_command: command is required")
		}
	case ActionCommit:
		if a.Message == "" {
			return fmt.Errorf("commit: message is required")
		}
	case ActionDone:
		// Summary is optional.
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// String returns a short human-readable description of the action.
func (a *Action) String() string {
	switch a.Kind {
	case ActionReadFile, ActionWriteFile, ActionEditFile:
		return fmt.Sprintf("%s %s", a.Kind, a.Path)
	case ActionRunCommand:
		return fmt.Sprintf("%s %q", a.Kind, a.Command)
	case ActionCommit:
		return fmt.Sprintf("%s %q", a.Kind, a.Message)
	default:
		return string(a.Kind)
	}
}
