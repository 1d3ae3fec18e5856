// Package gitops passes commands through to the git binary
package gitops

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/quocvuong92/osram-cli/internal/constants"
	"github.com/quocvuong92/osram-cli/internal/executor"
)

// ErrGitNotFound is returned when no git binary is on PATH
var ErrGitNotFound = errors.New("git executable not found in PATH")

// Runner invokes git in a working directory
type Runner struct {
	Binary  string
	Dir     string
	Timeout time.Duration
}

// New returns a Runner for dir with the default timeout
func New(dir string) *Runner {
	return &Runner{Binary: "git", Dir: dir, Timeout: constants.DefaultGitTimeout}
}

// Run executes `git args...` and captures its output. A non-zero exit code
// is reported in the result, not as an error.
func (r *Runner) Run(ctx context.Context, args ...string) (*executor.Result, error) {
	if len(args) == 0 {
		return nil, errors.New("git: no subcommand given")
	}
	bin := r.Binary
	if bin == "" {
		bin = "git"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGitNotFound, err)
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultGitTimeout
	}
	return executor.Exec(ctx, timeout, r.Dir, bin, args...)
}

// IsRepository reports whether Dir is inside a git work tree
func (r *Runner) IsRepository(ctx context.Context) bool {
	res, err := r.Run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && res.ExitCode == 0 && strings.TrimSpace(res.Stdout) == "true"
}

// CurrentBranch returns the checked-out branch, or "" when detached or
// outside a repository.
func (r *Runner) CurrentBranch(ctx context.Context) string {
	res, err := r.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	branch := strings.TrimSpace(res.Stdout)
	if branch == "HEAD" {
		return ""
	}
	return branch
}

// Summary renders a result the way the git command prints it
func Summary(res *executor.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "$ %s (exit %d)\n", res.Command, res.ExitCode)
	if out := strings.TrimRight(res.Stdout, "\n"); out != "" {
		sb.WriteString(out)
		sb.WriteString("\n")
	}
	if errOut := strings.TrimRight(res.Stderr, "\n"); errOut != "" {
		sb.WriteString(errOut)
		sb.WriteString("\n")
	}
	return sb.String()
}
