package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/quocvuong92/osram-cli/internal/display"
	"github.com/quocvuong92/osram-cli/internal/fsops"
	"github.com/quocvuong92/osram-cli/internal/store"
)

// errDenied is returned when the user declines a confirmation
var errDenied = errors.New("operation cancelled")

func (app *App) newFsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fs",
		Short: "File operations with path checks, backups and a trash",
	}
	cmd.PersistentFlags().BoolVarP(&app.assumeYes, "yes", "y", false, "Do not ask for confirmation")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "ls [dir]",
			Short: "List a directory",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				entries, err := app.fs.List(pathArg(args))
				if err != nil {
					return err
				}
				showEntries(entries)
				return nil
			},
		},
		&cobra.Command{
			Use:   "cat <file>",
			Short: "Print a file (first 512 KiB)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				res, err := app.fs.Read(args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(display.Stdout, res.Content)
				if res.Truncated {
					display.ShowWarning(fmt.Sprintf("truncated: showing %s of %s", humanize.IBytes(fsops.MaxReadSize), humanize.IBytes(uint64(res.Size))))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "write <file> [content]",
			Short: "Write content (or stdin) to a file, keeping a .bak of the old one",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				var content string
				if len(args) == 2 {
					content = args[1]
				} else {
					data, err := io.ReadAll(cmd.InOrStdin())
					if err != nil {
						return fmt.Errorf("read stdin: %w", err)
					}
					content = string(data)
				}
				if app.fs.Exists(args[0]) {
					if err := app.confirmOp(cmd, "fs.write", args[0], "Overwrite "+args[0]+"?"); err != nil {
						return err
					}
				}
				res, err := app.fs.Write(args[0], content)
				app.logOperation(cmd.Context(), "fs.write", args[0], statusOf(err), strconv.Itoa(len(content))+" bytes")
				if err != nil {
					return err
				}
				display.ShowSuccess(fmt.Sprintf("Wrote %s to %s", humanize.IBytes(uint64(res.Bytes)), res.Path))
				if res.Backup != "" {
					display.ShowMuted("Previous version saved as " + res.Backup)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "mkdir <dir>",
			Short: "Create a directory and missing parents",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := app.fs.Mkdir(args[0])
				app.logOperation(cmd.Context(), "fs.mkdir", args[0], statusOf(err), "")
				if err != nil {
					return err
				}
				display.ShowSuccess("Created " + p)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm <path>",
			Short: "Move a file or directory to the osram trash",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := app.confirmOp(cmd, "fs.rm", args[0], "Move "+args[0]+" to the trash?"); err != nil {
					return err
				}
				dest, err := app.fs.Delete(args[0])
				app.logOperation(cmd.Context(), "fs.rm", args[0], statusOf(err), dest)
				if err != nil {
					return err
				}
				display.ShowSuccess(fmt.Sprintf("Moved %s to %s", args[0], dest))
				return nil
			},
		},
		&cobra.Command{
			Use:   "cp <src> <dst>",
			Short: "Copy a file or directory",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				dst, err := app.fs.Copy(args[0], args[1])
				app.logOperation(cmd.Context(), "fs.cp", args[0], statusOf(err), "to "+args[1])
				if err != nil {
					return err
				}
				display.ShowSuccess(fmt.Sprintf("Copied %s to %s", args[0], dst))
				return nil
			},
		},
		&cobra.Command{
			Use:   "mv <src> <dst>",
			Short: "Move or rename a file or directory",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := app.confirmOp(cmd, "fs.mv", args[0], "Move "+args[0]+" to "+args[1]+"?"); err != nil {
					return err
				}
				dst, err := app.fs.Move(args[0], args[1])
				app.logOperation(cmd.Context(), "fs.mv", args[0], statusOf(err), "to "+args[1])
				if err != nil {
					return err
				}
				display.ShowSuccess(fmt.Sprintf("Moved %s to %s", args[0], dst))
				return nil
			},
		},
		&cobra.Command{
			Use:   "find <pattern> [dir]",
			Short: "Find files by glob (base name, or relative path when it contains /)",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				entries, err := app.fs.Find(pathArg(args[1:]), args[0])
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					display.ShowMuted("No matches.")
					return nil
				}
				for _, e := range entries {
					fmt.Fprintln(display.Stdout, e.Path)
				}
				if len(entries) >= fsops.MaxFindResults {
					display.ShowWarning(fmt.Sprintf("stopped after %d matches", fsops.MaxFindResults))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "diff <a> <b>",
			Short: "Show a unified diff of two files",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				diff, err := app.fs.Compare(args[0], args[1])
				if err != nil {
					return err
				}
				display.ShowDiff(diff)
				return nil
			},
		},
	)

	return cmd
}

// confirmOp refuses protected paths and asks before a destructive
// operation; a refusal is logged as denied and returned as errDenied.
func (app *App) confirmOp(cmd *cobra.Command, operation, path, question string) error {
	if ok, reason := fsops.IsPathSafe(path); !ok {
		display.ShowFileBlocked(operation, path, reason)
		app.logOperation(cmd.Context(), operation, path, store.StatusDenied, reason)
		return fmt.Errorf("%w: %w: %s", errSilent, fsops.ErrUnsafePath, reason)
	}
	if app.confirm(question) {
		return nil
	}
	app.logOperation(cmd.Context(), operation, path, store.StatusDenied, "declined")
	return errDenied
}

func showEntries(entries []fsops.Entry) {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		name, size := e.Name, humanize.IBytes(uint64(e.Size))
		if e.IsDir {
			name, size = name+"/", "-"
		}
		rows = append(rows, []string{name, size, humanize.Time(e.ModTime)})
	}
	display.ShowTable([]string{"Name", "Size", "Modified"}, rows)
}
