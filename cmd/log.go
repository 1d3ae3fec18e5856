package cmd

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/quocvuong92/osram-cli/internal/display"
	"github.com/quocvuong92/osram-cli/internal/store"
)

const defaultLogLimit = 20

func (app *App) newLogCmd() *cobra.Command {
	var session string
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the operations log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openStore(cmd.Context())
			if err != nil {
				return err
			}

			var records []store.OperationRecord
			if session != "" {
				records, err = s.Operations().ListSession(cmd.Context(), session)
			} else {
				records, err = s.Operations().List(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if len(records) == 0 {
				display.ShowMuted("No operations recorded.")
				return nil
			}
			showOperations(records)
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "Only show operations of this session id")
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultLogLimit, "Number of most recent operations to show")
	return cmd
}

func showOperations(records []store.OperationRecord) {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			shortID(r.SessionID),
			r.Operation,
			r.Path,
			r.Status,
			r.Details,
		})
	}
	display.ShowTable([]string{"ID", "Time", "Session", "Operation", "Path", "Status", "Details"}, rows)
}

// shortID abbreviates a uuid the way git abbreviates hashes
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (app *App) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openStore(cmd.Context())
			if err != nil {
				return err
			}
			n, err := s.Cache().Purge(cmd.Context())
			if err != nil {
				return err
			}
			display.ShowSuccess(fmt.Sprintf("Purged %s expired %s", humanize.Comma(n), plural(n, "entry", "entries")))
			return nil
		},
	})
	return cmd
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func (app *App) newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect or reset the local state database",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the database location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			path := app.dbPath
			if path == "" {
				path = store.DefaultPath()
			}
			fmt.Fprintln(display.Stdout, path)
		},
	})

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate the cache, operations log and analysis tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if !app.assumeYes && !display.Confirm("Erase all cached responses, operations and analyses in "+s.Path()+"?") {
				fmt.Fprintln(display.Stdout, "Cancelled.")
				return nil
			}
			if err := s.Reset(cmd.Context()); err != nil {
				return err
			}
			display.ShowSuccess("Local store reset")
			return nil
		},
	}
	reset.Flags().BoolVarP(&app.assumeYes, "yes", "y", false, "Do not ask for confirmation")
	cmd.AddCommand(reset)

	return cmd
}
