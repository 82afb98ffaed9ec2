package gates

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"testing"
	"time"
)

// fakeRunner returns canned results keyed by command name.
type fakeRunner struct {
	out map[string][]byte
	err map[string]error
	ran []string
}

func (f *fakeRunner) Run(_ context.Context, _ string, name string, _ ...string) ([]byte, error) {
	f.ran = append(f.ran, name)
	return f.out[name], f.err[name]
}

func (f *fakeRunner) RunShell(ctx context.Context, workDir, command string) ([]byte, error) {
	return f.Run(ctx, workDir, "sh")
}

func (f *fakeRunner) RunTimeout(ctx context.Context, _ time.Duration, workDir, name string, args ...string) ([]byte, error) {
	return f.Run(ctx, workDir, name, args...)
}

func (f *fakeRunner) Exists(_ context.Context, _ string, _ string) bool { return false }

// fakeDiff serves a fixed diff and changed-file list.
type fakeDiff struct {
	diff    string
	changed []string
	err     error
}

func (f *fakeDiff) Status() (string, error)       { return "", nil }
func (f *fakeDiff) HasChanges() (bool, error)     { return f.diff != "", nil }
func (f *fakeDiff) Diff(string) (string, error)   { return f.diff, f.err }
func (f *fakeDiff) ChangedFiles(string) ([]string, error) {
	return f.changed, f.err
}

// goWorkspace creates a temp dir that detects as a Go project.
func goWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestNew_UnknownCheckName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Required = append(cfg.Required, "mutation-testing")

	_, err := New(&fakeRunner{}, &fakeDiff{}, t.TempDir(), cfg)
	if err == nil {
		t.Fatal("New() should reject unknown check names")
	}
}

func TestApplyMode(t *testing.T) {
	base := DefaultConfig()

	strict := ApplyMode(base, ModeStrict)
	if !contains(strict.Required, "lint") || contains(strict.Recommended, "lint") {
		t.Errorf("strict tiers = %+v", strict)
	}

	permissive := ApplyMode(base, ModePermissive)
	if contains(permissive.Required, "typecheck") || contains(permissive.Required, "build") {
		t.Errorf("permissive required = %v", permissive.Required)
	}
	if !contains(permissive.Recommended, "typecheck") || !contains(permissive.Recommended, "build") {
		t.Errorf("permissive recommended = %v", permissive.Recommended)
	}
	if contains(permissive.Recommended, "coverage") || contains(permissive.Recommended, "docs") {
		t.Errorf("permissive should drop coverage and docs: %v", permissive.Recommended)
	}

	standard := ApplyMode(base, ModeStandard)
	if len(standard.Critical) != 3 || len(standard.Required) != 3 || len(standard.Recommended) != 3 {
		t.Errorf("standard must leave tiers untouched: %+v", standard)
	}
	// Critical tier never moves.
	for _, cfg := range []Config{strict, permissive} {
		if len(cfg.Critical) != 3 {
			t.Errorf("critical tier changed: %v", cfg.Critical)
		}
	}
}

func TestEvaluate_SecretInDiffIsCritical(t *testing.T) {
	diff := "+++ b/config.py\n" +
		"+api_key = \"sk-ant-abcdef1234567890\"\n"
	e, err := New(&fakeRunner{}, &fakeDiff{diff: diff}, goWorkspace(t), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	report, err := e.Evaluate(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !report.HasCriticalFailures() {
		t.Fatal("a hardcoded secret must be a critical failure")
	}
	if report.CriticalFailures()[0].Name != "security" {
		t.Errorf("failures = %+v", report.CriticalFailures())
	}
}

func TestEvaluate_RemovedPublicFuncIsCritical(t *testing.T) {
	diff := "--- a/api.go\n+++ b/api.go\n-func ProcessOrder(id string) error {\n+func processOrder(id string) error {\n"
	e, err := New(&fakeRunner{}, &fakeDiff{diff: diff}, goWorkspace(t), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	report, err := e.Evaluate(context.Background(), "abc123")
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, res := range report.CriticalFailures() {
		if res.Name == "breaking-changes" {
			found = true
		}
	}
	if !found {
		t.Errorf("critical failures = %+v", report.CriticalFailures())
	}
}

func TestEvaluate_RequiredFailureIsWarningNotCritical(t *testing.T) {
	runner := &fakeRunner{
		out: map[string][]byte{"go": []byte("FAIL: TestCheckout")},
		err: map[string]error{"go": errors.New("exit status 1")},
	}
	e, err := New(runner, &fakeDiff{}, goWorkspace(t), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	report, err := e.Evaluate(context.Background(), "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if report.HasCriticalFailures() {
		t.Error("a failing test suite is required-tier, not critical")
	}
	if len(report.RequiredFailures()) == 0 {
		t.Fatal("expected required failures")
	}
	if len(report.Warnings()) == 0 {
		t.Error("required failures must surface as warnings")
	}
}

func TestEvaluate_MissingToolSkips(t *testing.T) {
	runner := &fakeRunner{
		err: map[string]error{"go": fmt.Errorf("exec: %w", osexec.ErrNotFound)},
	}
	e, err := New(runner, &fakeDiff{}, goWorkspace(t), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	report, err := e.Evaluate(context.Background(), "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if len(report.RequiredFailures()) != 0 {
		t.Errorf("missing toolchain must skip, got failures: %+v", report.RequiredFailures())
	}
}

func TestEvaluate_CleanRunPasses(t *testing.T) {
	e, err := New(&fakeRunner{}, &fakeDiff{diff: "+// harmless comment\n"}, goWorkspace(t), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	report, err := e.Evaluate(context.Background(), "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if report.HasCriticalFailures() || len(report.Warnings()) != 0 {
		t.Errorf("clean run report: %+v", report.Results)
	}
	if len(report.Results) != 9 {
		t.Errorf("got %d results, want 9", len(report.Results))
	}
}

func TestEvaluate_GitFailureIsError(t *testing.T) {
	e, err := New(&fakeRunner{}, &fakeDiff{err: errors.New("not a git repository")}, t.TempDir(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Evaluate(context.Background(), "abc123"); err == nil {
		t.Fatal("a git failure must surface as an evaluation error")
	}
}

func TestCheckDocs_SameBehaviorInAnyTier(t *testing.T) {
	diff := "+func ExportedThing() {}\n"
	env := &checkEnv{diff: diff}

	// The registry entry is shared; tier placement cannot alter the verdict.
	res1 := registry["docs"].run(context.Background(), env)
	res2 := registry["docs"].run(context.Background(), env)
	if res1.Passed != res2.Passed || res1.Passed {
		t.Errorf("docs check results: %+v, %+v", res1, res2)
	}

	documented := &checkEnv{diff: "+// ExportedThing does the thing.\n+func ExportedThing() {}\n"}
	if res := registry["docs"].run(context.Background(), documented); !res.Passed {
		t.Errorf("documented function flagged: %+v", res)
	}
}
