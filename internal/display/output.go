// Package display handles terminal output: styled status lines, tables,
// markdown rendering, spinners and confirmation prompts.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Output streams. Tests swap them with SetOutput and SetInput.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
	Stdin  io.Reader = os.Stdin
)

// SetOutput redirects Stdout and Stderr and returns a function restoring them
func SetOutput(out, errOut io.Writer) (restore func()) {
	prevOut, prevErr := Stdout, Stderr
	Stdout, Stderr = out, errOut
	return func() { Stdout, Stderr = prevOut, prevErr }
}

// SetInput redirects Stdin and returns a function restoring it
func SetInput(in io.Reader) (restore func()) {
	prev := Stdin
	Stdin = in
	return func() { Stdin = prev }
}

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	commandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true)
	addStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	delStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hunkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)

// ShowError prints an error message to stderr
func ShowError(msg string) {
	fmt.Fprintln(Stderr, errorStyle.Render("Error: ")+msg)
}

// ShowWarning prints a warning to stderr
func ShowWarning(msg string) {
	fmt.Fprintln(Stderr, warningStyle.Render("Warning: ")+msg)
}

// ShowInfo prints an informational line
func ShowInfo(msg string) {
	fmt.Fprintln(Stdout, infoStyle.Render(msg))
}

// ShowSuccess prints a line prefixed with a check mark
func ShowSuccess(msg string) {
	fmt.Fprintln(Stdout, successStyle.Render("✓ ")+msg)
}

// ShowMuted prints a dimmed line, used for hints and metadata
func ShowMuted(msg string) {
	fmt.Fprintln(Stdout, mutedStyle.Render(msg))
}

// ShowContent prints response text as-is
func ShowContent(content string) {
	fmt.Fprintln(Stdout, content)
}

// ShowUsage prints token usage statistics
func ShowUsage(prompt, completion, total int, estimated bool) {
	suffix := ""
	if estimated {
		suffix = " (estimated)"
	}
	fmt.Fprintln(Stdout)
	fmt.Fprintln(Stdout, mutedStyle.Render(fmt.Sprintf("Tokens: %d prompt + %d completion = %d total%s", prompt, completion, total, suffix)))
}

// ShowModels lists models, marking the current one
func ShowModels(models []string, current string) {
	fmt.Fprintln(Stdout, headerStyle.Render("Available models:"))
	for _, m := range models {
		if m == current {
			fmt.Fprintf(Stdout, "  %s %s\n", m, successStyle.Render("(current)"))
		} else {
			fmt.Fprintf(Stdout, "  %s\n", m)
		}
	}
}

// ShowCommandExecuting prints the command about to run
func ShowCommandExecuting(command string) {
	fmt.Fprintln(Stdout, commandStyle.Render("$ "+command))
}

// ShowCommandOutput prints captured command output
func ShowCommandOutput(output string) {
	if output == "" {
		return
	}
	fmt.Fprint(Stdout, output)
	if !strings.HasSuffix(output, "\n") {
		fmt.Fprintln(Stdout)
	}
}

// ShowCommandError prints captured stderr of a failed command
func ShowCommandError(command string, exitCode int, stderr string) {
	fmt.Fprintln(Stderr, errorStyle.Render(fmt.Sprintf("Command failed (exit %d): ", exitCode))+command)
	if stderr != "" {
		fmt.Fprint(Stderr, stderr)
		if !strings.HasSuffix(stderr, "\n") {
			fmt.Fprintln(Stderr)
		}
	}
}

// ShowCommandBlocked reports a command refused before execution
func ShowCommandBlocked(command, reason string) {
	fmt.Fprintln(Stderr, errorStyle.Render("Blocked: ")+command)
	fmt.Fprintln(Stderr, mutedStyle.Render("  Reason: "+reason))
}

// ShowFileOperation announces a filesystem operation
func ShowFileOperation(op, path string) {
	fmt.Fprintln(Stdout, commandStyle.Render(op)+" "+path)
}

// ShowFileBlocked reports a filesystem operation refused by the path check
func ShowFileBlocked(op, path, reason string) {
	fmt.Fprintln(Stderr, errorStyle.Render("Blocked "+op+": ")+path)
	fmt.Fprintln(Stderr, mutedStyle.Render("  Reason: "+reason))
}

// ShowDiff prints a unified diff with added and removed lines colored
func ShowDiff(diff string) {
	if diff == "" {
		ShowMuted("Files are identical.")
		return
	}
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		text := strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(text, "+++"), strings.HasPrefix(text, "---"):
			text = headerStyle.Render(text)
		case strings.HasPrefix(text, "@@"):
			text = hunkStyle.Render(text)
		case strings.HasPrefix(text, "+"):
			text = addStyle.Render(text)
		case strings.HasPrefix(text, "-"):
			text = delStyle.Render(text)
		}
		fmt.Fprintln(Stdout, text)
	}
}
