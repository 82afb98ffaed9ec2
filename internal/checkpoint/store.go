// Package checkpoint provides workspace snapshot and rollback on top of git.
//
// A checkpoint is a git commit created with --allow-empty so that a snapshot
// always exists even when the tree is clean. Rollback is a hard reset plus a
// clean of untracked files, which makes it idempotent: once the tree matches
// the snapshot, repeating the rollback changes nothing.
//
// The store is not safe for concurrent use against one working tree; the
// engine serializes all access.
package checkpoint

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/ticketsmith/internal/git"
)

// Checkpoint is a restorable snapshot of the workspace.
type Checkpoint struct {
	// ID is the unique checkpoint identifier.
	ID string
	// Label is the caller-supplied name (e.g., "strategy-1-attempt-2").
	Label string
	// CommitHash is the git commit capturing the snapshot.
	CommitHash string
	// CreatedAt is when the snapshot was taken.
	CreatedAt time.Time
	// QualityScore is the quality assessment at creation time, 0-100.
	QualityScore float64
}

// Store creates and restores workspace checkpoints.
type Store struct {
	runner      git.Runner
	checkpoints []Checkpoint
	now         func() time.Time
}

// NewStore creates a checkpoint store over the given git runner.
func NewStore(runner git.Runner) *Store {
	return &Store{
		runner: runner,
		now:    time.Now,
	}
}

// Create snapshots the current workspace tree and returns a handle.
// The snapshot is crash-consistent: either the commit exists and fully
// captures the tree, or Create returns an error and no checkpoint is
// recorded.
func (s *Store) Create(label string) (Checkpoint, error) {
	if err := s.runner.AddAll(); err != nil {
		return Checkpoint{}, fmt.Errorf("stage workspace for checkpoint %q: %w", label, err)
	}

	message := fmt.Sprintf("[CHECKPOINT] %s", label)
	if err := s.runner.CommitAllowEmpty(message); err != nil {
		return Checkpoint{}, fmt.Errorf("commit checkpoint %q: %w", label, err)
	}

	hash, err := s.runner.Head()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("resolve checkpoint %q: %w", label, err)
	}

	cp := Checkpoint{
		ID:         uuid.NewString(),
		Label:      label,
		CommitHash: hash,
		CreatedAt:  s.now(),
	}
	s.checkpoints = append(s.checkpoints, cp)
	return cp, nil
}

// SetQualityScore records the quality score observed for a checkpoint.
func (s *Store) SetQualityScore(id string, score float64) {
	for i := range s.checkpoints {
		if s.checkpoints[i].ID == id {
			s.checkpoints[i].QualityScore = score
			return
		}
	}
}

// Rollback restores the workspace to exactly the checkpoint's snapshot,
// discarding all uncommitted mutations made since. Rolling back twice to
// the same checkpoint is a no-op the second time.
func (s *Store) Rollback(cp Checkpoint) error {
	if cp.CommitHash == "" {
		return fmt.Errorf("rollback: checkpoint %q has no commit hash", cp.Label)
	}
	if err := s.runner.ResetHard(cp.CommitHash); err != nil {
		return fmt.Errorf("rollback to %q: %w", cp.Label, err)
	}
	// reset --hard leaves untracked files behind; drop them so the tree is
	// bit-identical to the snapshot.
	if err := s.runner.CleanForce(); err != nil {
		return fmt.Errorf("clean after rollback to %q: %w", cp.Label, err)
	}
	return nil
}

// Diff returns the diff between a checkpoint and the current working tree.
func (s *Store) Diff(cp Checkpoint) (string, error) {
	return s.runner.Diff(cp.CommitHash)
}

// ChangedFiles returns the files changed since the checkpoint was taken.
func (s *Store) ChangedFiles(cp Checkpoint) ([]string, error) {
	return s.runner.ChangedFiles(cp.CommitHash)
}

// Best returns the checkpoint with the highest quality score, or false if
// no checkpoints exist.
func (s *Store) Best() (Checkpoint, bool) {
	if len(s.checkpoints) == 0 {
		return Checkpoint{}, false
	}
	best := s.checkpoints[0]
	for _, cp := range s.checkpoints[1:] {
		if cp.QualityScore > best.QualityScore {
			best = cp
		}
	}
	return best, true
}

// List returns a copy of all checkpoints taken during this run.
func (s *Store) List() []Checkpoint {
	out := make([]Checkpoint, len(s.checkpoints))
	copy(out, s.checkpoints)
	return out
}

// Count returns the number of checkpoints created so far.
func (s *Store) Count() int {
	return len(s.checkpoints)
}
