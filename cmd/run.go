package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quocvuong92/osram-cli/internal/constants"
	"github.com/quocvuong92/osram-cli/internal/display"
	"github.com/quocvuong92/osram-cli/internal/executor"
	"github.com/quocvuong92/osram-cli/internal/gitops"
	"github.com/quocvuong92/osram-cli/internal/store"
)

// ErrGitDisabled is returned by `osram git` when enable_git_integration is off
var ErrGitDisabled = errors.New("git integration is disabled (enable_git_integration is false)")

func (app *App) newRunCmd() *cobra.Command {
	var allowDangerous bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run <command>",
		Short: "Run a shell command after classifying it as safe, confirm or dangerous",
		Long: `Run a shell command with a timeout.

Read-only commands (ls, cat, git status, ...) run directly. Commands that may
modify state ask for confirmation unless --yes is given. Dangerous commands
(rm -rf /, sudo, mkfs, ...) are refused unless --allow-dangerous is given, and
still ask for confirmation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := strings.Join(args, " ")
			verdict := executor.ClassifyCommand(line)

			switch verdict.Level {
			case executor.Dangerous:
				if !allowDangerous {
					display.ShowCommandBlocked(line, verdict.Reason)
					display.ShowMuted("  Use --allow-dangerous to run it anyway.")
					app.logOperation(cmd.Context(), "run", line, store.StatusDenied, verdict.Reason)
					return errSilent
				}
				if !display.AskCommandConfirmation(line, "dangerous: "+verdict.Reason) {
					app.logOperation(cmd.Context(), "run", line, store.StatusDenied, "declined")
					return errDenied
				}
			case executor.NeedsConfirm:
				if !app.assumeYes && !display.AskCommandConfirmation(line, verdict.Reason) {
					app.logOperation(cmd.Context(), "run", line, store.StatusDenied, "declined")
					return errDenied
				}
			}

			display.ShowCommandExecuting(line)
			res, err := executor.Shell(cmd.Context(), timeout, line)
			return app.finishCommand(cmd, "run", line, res, err)
		},
	}
	cmd.Flags().BoolVar(&allowDangerous, "allow-dangerous", false, "Allow commands classified as dangerous")
	cmd.Flags().BoolVarP(&app.assumeYes, "yes", "y", false, "Do not ask before commands that may modify state")
	cmd.Flags().DurationVar(&timeout, "timeout", constants.DefaultCommandTimeout, "Kill the command after this long")
	// Everything after the first argument belongs to the command
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func (app *App) newGitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "git <args...>",
		Short:   "Run git in the current directory",
		Example: "  osram git status\n  osram git log --oneline -5",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.cfg.EnableGitIntegration {
				return ErrGitDisabled
			}
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			res, err := gitops.New(cwd).Run(cmd.Context(), args...)
			return app.finishCommand(cmd, "git", "git "+strings.Join(args, " "), res, err)
		},
	}
	// Flags after the git subcommand are git's own
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// finishCommand prints a command result, records it, and turns a non-zero
// exit into a silent failure so osram exits 1.
func (app *App) finishCommand(cmd *cobra.Command, operation, line string, res *executor.Result, err error) error {
	if err != nil {
		app.logOperation(cmd.Context(), operation, line, store.StatusFailed, err.Error())
		return err
	}

	display.ShowCommandOutput(res.Stdout)
	details := "exit " + strconv.Itoa(res.ExitCode) + " in " + res.Duration.Round(time.Millisecond).String()
	if res.ExitCode != 0 {
		display.ShowCommandError(line, res.ExitCode, res.Stderr)
		app.logOperation(cmd.Context(), operation, line, store.StatusFailed, details)
		return fmt.Errorf("%w: exit %d", errSilent, res.ExitCode)
	}
	if res.Stderr != "" {
		fmt.Fprint(display.Stderr, res.Stderr)
	}
	app.logOperation(cmd.Context(), operation, line, store.StatusSuccess, details)
	return nil
}
