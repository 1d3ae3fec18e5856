package gitops

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/quocvuong92/osram-cli/internal/executor"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestRun_Repository(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	r := New(t.TempDir())

	if r.IsRepository(ctx) {
		t.Fatal("IsRepository() = true before init")
	}

	res, err := r.Run(ctx, "init", "-b", "trunk")
	if err != nil {
		t.Fatalf("Run(init) error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Skipf("git init -b unsupported: %s", res.Stderr)
	}
	if !r.IsRepository(ctx) {
		t.Error("IsRepository() = false after init")
	}

	res, err = r.Run(ctx, "status", "--porcelain")
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("Run(status) = %+v, %v", res, err)
	}
}

func TestRun_NonZeroExitIsNotError(t *testing.T) {
	requireGit(t)
	r := New(t.TempDir())

	res, err := r.Run(context.Background(), "log")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode == 0 {
		t.Error("git log outside a repository should fail")
	}
	if res.Stderr == "" {
		t.Error("expected stderr")
	}
	if r.CurrentBranch(context.Background()) != "" {
		t.Error("CurrentBranch() outside a repository should be empty")
	}
}

func TestRun_Errors(t *testing.T) {
	r := &Runner{Binary: "osram-no-such-git", Timeout: time.Second}
	if _, err := r.Run(context.Background(), "status"); !errors.Is(err, ErrGitNotFound) {
		t.Errorf("Run() error = %v, want ErrGitNotFound", err)
	}
	if _, err := New("").Run(context.Background()); err == nil {
		t.Error("Run() without args should fail")
	}
}

func TestSummary(t *testing.T) {
	got := Summary(&executor.Result{Command: "git status", Stdout: "clean\n", Stderr: "warn\n", ExitCode: 1})
	want := "$ git status (exit 1)\nclean\nwarn\n"
	if got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
	if s := Summary(&executor.Result{Command: "git fetch"}); !strings.HasPrefix(s, "$ git fetch (exit 0)") {
		t.Errorf("Summary() = %q", s)
	}
}
