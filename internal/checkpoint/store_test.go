package checkpoint

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeGit simulates a git repository as an ordered log of commits plus a
// mutable working tree marker.
type fakeGit struct {
	commits    []string // commit hashes, newest last
	messages   []string
	dirty      bool
	untracked  bool
	failCommit bool
	failReset  bool
	resets     []string
	cleans     int
}

func newFakeGit() *fakeGit {
	return &fakeGit{commits: []string{"base0000"}}
}

func (f *fakeGit) AddAll() error { return nil }

func (f *fakeGit) CommitAllowEmpty(message string) error {
	if f.failCommit {
		return errors.New("commit failed")
	}
	f.commits = append(f.commits, fmt.Sprintf("hash%04d", len(f.commits)))
	f.messages = append(f.messages, message)
	f.dirty = false
	return nil
}

func (f *fakeGit) Head() (string, error) {
	return f.commits[len(f.commits)-1], nil
}

func (f *fakeGit) ResetHard(ref string) error {
	if f.failReset {
		return errors.New("reset failed")
	}
	f.resets = append(f.resets, ref)
	f.dirty = false
	return nil
}

func (f *fakeGit) CleanForce() error {
	f.cleans++
	f.untracked = false
	return nil
}

func (f *fakeGit) Status() (string, error) {
	if f.dirty {
		return " M file.go", nil
	}
	return "", nil
}

func (f *fakeGit) HasChanges() (bool, error) { return f.dirty, nil }

func (f *fakeGit) Diff(ref string) (string, error) { return "", nil }

func (f *fakeGit) ChangedFiles(ref string) ([]string, error) { return nil, nil }

func TestStore_Create(t *testing.T) {
	g := newFakeGit()
	store := NewStore(g)

	cp, err := store.Create("strategy-1-attempt-1")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if cp.ID == "" {
		t.Error("checkpoint ID should not be empty")
	}
	if cp.CommitHash == "" {
		t.Error("checkpoint commit hash should not be empty")
	}
	if cp.CreatedAt.IsZero() {
		t.Error("checkpoint CreatedAt should be set")
	}
	if len(g.messages) != 1 || !strings.HasPrefix(g.messages[0], "[CHECKPOINT] ") {
		t.Errorf("checkpoint commit message = %v, want [CHECKPOINT] prefix", g.messages)
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}
}

func TestStore_CreateFailsLoudly(t *testing.T) {
	g := newFakeGit()
	g.failCommit = true
	store := NewStore(g)

	if _, err := store.Create("doomed"); err == nil {
		t.Fatal("Create() should fail when the commit fails")
	}
	if store.Count() != 0 {
		t.Errorf("failed Create must not record a checkpoint, Count() = %d", store.Count())
	}
}

func TestStore_Rollback(t *testing.T) {
	g := newFakeGit()
	store := NewStore(g)

	cp, err := store.Create("pre-attempt")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	g.dirty = true
	g.untracked = true

	if err := store.Rollback(cp); err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}
	if g.dirty {
		t.Error("rollback should discard uncommitted mutations")
	}
	if g.untracked {
		t.Error("rollback should remove untracked files")
	}
	if len(g.resets) != 1 || g.resets[0] != cp.CommitHash {
		t.Errorf("reset targets = %v, want [%s]", g.resets, cp.CommitHash)
	}
}

func TestStore_RollbackIdempotent(t *testing.T) {
	g := newFakeGit()
	store := NewStore(g)

	cp, err := store.Create("pre-attempt")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	g.dirty = true
	if err := store.Rollback(cp); err != nil {
		t.Fatalf("first Rollback() error: %v", err)
	}
	firstDirty, firstUntracked := g.dirty, g.untracked

	if err := store.Rollback(cp); err != nil {
		t.Fatalf("second Rollback() error: %v", err)
	}
	if g.dirty != firstDirty || g.untracked != firstUntracked {
		t.Error("second rollback must leave the workspace identical to the first")
	}
}

func TestStore_RollbackRejectsEmptyHash(t *testing.T) {
	store := NewStore(newFakeGit())
	if err := store.Rollback(Checkpoint{Label: "bogus"}); err == nil {
		t.Error("Rollback of a checkpoint with no hash should error")
	}
}

func TestStore_Best(t *testing.T) {
	g := newFakeGit()
	store := NewStore(g)

	if _, ok := store.Best(); ok {
		t.Error("Best() on empty store should return false")
	}

	a, _ := store.Create("a")
	b, _ := store.Create("b")
	store.SetQualityScore(a.ID, 40)
	store.SetQualityScore(b.ID, 85)

	best, ok := store.Best()
	if !ok {
		t.Fatal("Best() should find a checkpoint")
	}
	if best.ID != b.ID {
		t.Errorf("Best() = %q, want %q", best.Label, b.Label)
	}
}
