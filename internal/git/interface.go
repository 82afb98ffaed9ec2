// Package git provides an interface for the git operations the engine needs.
package git

// SnapshotOperations defines the git operations used by the checkpoint store.
type SnapshotOperations interface {
	// AddAll stages every change in the working tree (git add -A).
	AddAll() error
	// CommitAllowEmpty creates a commit with the given message even when
	// nothing is staged (git commit --allow-empty).
	CommitAllowEmpty(message string) error
	// Head returns the full hash of the current HEAD commit.
	Head() (string, error)
	// ResetHard resets the working tree and index to the given ref.
	ResetHard(ref string) error
	// CleanForce removes untracked files and directories (git clean -fd).
	CleanForce() error
}

// DiffOperations defines the diff and status operations used by the
// checkpoint store and the engine's change accounting.
type DiffOperations interface {
	// Status returns the output of git status --porcelain.
	Status() (string, error)
	// HasChanges returns true if there are uncommitted changes.
	HasChanges() (bool, error)
	// Diff returns the diff between the given ref and the working tree.
	Diff(ref string) (string, error)
	// ChangedFiles returns the files changed since the given ref.
	ChangedFiles(ref string) ([]string, error)
}

// Runner combines every git capability the engine consumes.
type Runner interface {
	SnapshotOperations
	DiffOperations
}
