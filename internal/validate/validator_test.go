package validate

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/kestrelworks/ticketsmith/pkg/models"
)

// fakeRunner returns canned results keyed by command name.
type fakeRunner struct {
	out map[string][]byte
	err map[string]error
}

func (f *fakeRunner) Run(_ context.Context, _ string, name string, _ ...string) ([]byte, error) {
	return f.out[name], f.err[name]
}

func (f *fakeRunner) RunShell(ctx context.Context, workDir, command string) ([]byte, error) {
	return f.Run(ctx, workDir, "sh")
}

func (f *fakeRunner) RunTimeout(ctx context.Context, _ time.Duration, workDir, name string, args ...string) ([]byte, error) {
	return f.Run(ctx, workDir, name, args...)
}

func (f *fakeRunner) Exists(_ context.Context, _ string, _ string) bool { return false }

func TestShouldValidate(t *testing.T) {
	tests := []struct {
		kind models.ActionKind
		want bool
	}{
		{models.ActionWriteFile, true},
		{models.ActionEditFile, true},
		{models.ActionCommit, true},
		{models.ActionReadFile, false},
		{models.ActionRunCommand, false},
		{models.ActionDone, false},
	}
	for _, tt := range tests {
		if got := ShouldValidate(models.Action{Kind: tt.kind}); got != tt.want {
			t.Errorf("ShouldValidate(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestValidate_CheckFinding(t *testing.T) {
	runner := &fakeRunner{
		out: map[string][]byte{"python3": []byte("SyntaxError: invalid syntax")},
		err: map[string]error{"python3": errors.New("exit status 1")},
	}
	v := New(runner, t.TempDir())

	res := v.Validate(context.Background(), "app/main.py")
	if res.Passed {
		t.Error("Passed should be false when the check reports problems")
	}
	if len(res.Issues) != 1 {
		t.Fatalf("Issues = %v", res.Issues)
	}
}

func TestValidate_ToolMissingIsWarning(t *testing.T) {
	runner := &fakeRunner{
		err: map[string]error{"node": fmt.Errorf("exec: %w", osexec.ErrNotFound)},
	}
	v := New(runner, t.TempDir())

	res := v.Validate(context.Background(), "web/index.js")
	if !res.Passed {
		t.Error("a missing tool must not fail validation")
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v", res.Warnings)
	}
}

func TestValidate_TimeoutIsWarning(t *testing.T) {
	runner := &fakeRunner{
		err: map[string]error{"python3": context.DeadlineExceeded},
	}
	v := New(runner, t.TempDir())

	res := v.Validate(context.Background(), "slow.py")
	if !res.Passed {
		t.Error("a timed-out check must not fail validation")
	}
	if len(res.Warnings) != 1 || len(res.Issues) != 0 {
		t.Errorf("Warnings = %v, Issues = %v", res.Warnings, res.Issues)
	}
}

func TestValidate_GofmtOutputIsFinding(t *testing.T) {
	runner := &fakeRunner{out: map[string][]byte{"gofmt": []byte("pkg/server.go\n")}}
	v := New(runner, t.TempDir())

	res := v.Validate(context.Background(), "pkg/server.go")
	if res.Passed {
		t.Error("gofmt listing the file should be a finding")
	}
}

func TestValidate_CleanGoFile(t *testing.T) {
	runner := &fakeRunner{}
	v := New(runner, t.TempDir())

	res := v.Validate(context.Background(), "pkg/server.go")
	if !res.Passed || len(res.Issues) != 0 || len(res.Warnings) != 0 {
		t.Errorf("clean result = %+v", res)
	}
}

func TestValidate_UnknownExtensionSkipped(t *testing.T) {
	v := New(&fakeRunner{}, t.TempDir())

	res := v.Validate(context.Background(), "README.md")
	if !res.Passed || len(res.Issues) != 0 {
		t.Errorf("unknown extension result = %+v", res)
	}
}

func TestValidate_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"good.json": `{"ok": true}`,
		"bad.json":  `{"ok": `,
		"good.yaml": "ok: true\n",
		"bad.yaml":  "ok: [unclosed\n  - x: {",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	v := New(&fakeRunner{}, dir)
	for name, wantPass := range map[string]bool{
		"good.json": true, "bad.json": false,
		"good.yaml": true, "bad.yaml": false,
	} {
		res := v.Validate(context.Background(), name)
		if res.Passed != wantPass {
			t.Errorf("Validate(%s).Passed = %v, want %v (issues: %v)", name, res.Passed, wantPass, res.Issues)
		}
	}

	// Missing file is a warning, never a failure.
	res := v.Validate(context.Background(), "absent.json")
	if !res.Passed || len(res.Warnings) != 1 {
		t.Errorf("missing file result = %+v", res)
	}
}
