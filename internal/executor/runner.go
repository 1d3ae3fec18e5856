// Package executor runs external commands with a timeout and classifies
// shell command lines by risk.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/quocvuong92/osram-cli/internal/logging"
)

// ErrTimeout is returned when a command outlives its timeout
var ErrTimeout = errors.New("command timed out")

// Result is the captured outcome of a finished command. A non-zero
// ExitCode is not an error.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Exec runs name with args in dir (empty for the working directory),
// killing it after timeout.
func Exec(ctx context.Context, timeout time.Duration, dir, name string, args ...string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := &Result{Command: commandLine(name, args)}
	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	logging.Debug("command finished", logging.Fields{
		"command":  res.Command,
		"duration": res.Duration.String(),
	})

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%s: %w after %s", res.Command, ErrTimeout, timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("%s: %w", res.Command, err)
	}
	return res, nil
}

// Shell runs a command line through the platform shell
func Shell(ctx context.Context, timeout time.Duration, command string) (*Result, error) {
	shell, flag := "sh", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "cmd", "/C"
	}
	res, err := Exec(ctx, timeout, "", shell, flag, command)
	if res != nil {
		res.Command = command
	}
	return res, err
}

func commandLine(name string, args []string) string {
	var buf bytes.Buffer
	buf.WriteString(name)
	for _, a := range args {
		buf.WriteByte(' ')
		buf.WriteString(a)
	}
	return buf.String()
}
