package gates

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectType is the primary language/toolchain of the target workspace.
type ProjectType string

const (
	ProjectGo      ProjectType = "go"
	ProjectNode    ProjectType = "node"
	ProjectRust    ProjectType = "rust"
	ProjectPython  ProjectType = "python"
	ProjectUnknown ProjectType = "unknown"
)

// ProjectCommands holds the per-concern commands for a detected project.
// An empty command means the concern has no runnable check here; the gate
// passes with a skipped note rather than guessing.
type ProjectCommands struct {
	Build     []string
	Test      []string
	Typecheck []string
	Lint      []string
	Coverage  []string
}

// Detect returns the project type of a workspace, checked in order of
// specificity. package.json goes last since Node tooling shows up inside
// projects of every other kind.
func Detect(workDir string) ProjectType {
	switch {
	case fileExists(filepath.Join(workDir, "go.mod")):
		return ProjectGo
	case fileExists(filepath.Join(workDir, "Cargo.toml")):
		return ProjectRust
	case fileExists(filepath.Join(workDir, "pyproject.toml")),
		fileExists(filepath.Join(workDir, "setup.py")),
		fileExists(filepath.Join(workDir, "requirements.txt")):
		return ProjectPython
	case fileExists(filepath.Join(workDir, "package.json")):
		return ProjectNode
	}
	return ProjectUnknown
}

// CommandsFor returns the gate commands for the workspace's project type.
func CommandsFor(workDir string) ProjectCommands {
	switch Detect(workDir) {
	case ProjectGo:
		return ProjectCommands{
			Build:     []string{"go", "build", "./..."},
			Test:      []string{"go", "test", "./..."},
			Typecheck: []string{"go", "vet", "./..."},
			Lint:      []string{"gofmt", "-l", "."},
			Coverage:  []string{"go", "test", "-cover", "./..."},
		}
	case ProjectNode:
		cmds := ProjectCommands{
			Lint: []string{"npx", "--no-install", "eslint", "."},
		}
		if hasNodeScript(workDir, "build") {
			cmds.Build = []string{"npm", "run", "build"}
		} else if fileExists(filepath.Join(workDir, "tsconfig.json")) {
			cmds.Build = []string{"npx", "--no-install", "tsc", "--noEmit"}
		}
		if hasNodeScript(workDir, "test") {
			cmds.Test = []string{"npm", "test"}
		}
		if fileExists(filepath.Join(workDir, "tsconfig.json")) {
			cmds.Typecheck = []string{"npx", "--no-install", "tsc", "--noEmit"}
		}
		return cmds
	case ProjectRust:
		return ProjectCommands{
			Build:     []string{"cargo", "build"},
			Test:      []string{"cargo", "test"},
			Typecheck: []string{"cargo", "check"},
			Lint:      []string{"cargo", "clippy"},
		}
	case ProjectPython:
		cmds := ProjectCommands{
			Typecheck: []string{"python3", "-m", "mypy", "."},
			Lint:      []string{"python3", "-m", "flake8"},
		}
		if dirExists(filepath.Join(workDir, "tests")) {
			cmds.Test = []string{"python3", "-m", "pytest"}
		}
		return cmds
	}
	return ProjectCommands{}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// hasNodeScript checks for a named script in package.json with a plain
// string search, avoiding a full JSON parse.
func hasNodeScript(workDir, name string) bool {
	data, err := os.ReadFile(filepath.Join(workDir, "package.json"))
	if err != nil {
		return false
	}
	content := string(data)
	i := strings.Index(content, `"scripts"`)
	if i < 0 {
		return false
	}
	return strings.Contains(content[i:], `"`+name+`"`)
}
