package display

import (
	"bufio"
	"fmt"
	"strings"
)

// Confirm asks a yes/no question on Stdout and reads the answer from Stdin.
// Anything other than y/yes (including EOF) is a no.
func Confirm(question string) bool {
	fmt.Fprintf(Stdout, "%s %s ", warningStyle.Render(question), mutedStyle.Render("[y/N]"))
	reader := bufio.NewReader(Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil && answer == "" {
		fmt.Fprintln(Stdout)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// AskCommandConfirmation asks before running a shell command
func AskCommandConfirmation(command, reason string) bool {
	fmt.Fprintln(Stdout, commandStyle.Render("$ "+command))
	if reason != "" {
		fmt.Fprintln(Stdout, mutedStyle.Render("  "+reason))
	}
	return Confirm("Run this command?")
}
