package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/quocvuong92/osram-cli/internal/analyzer"
	"github.com/quocvuong92/osram-cli/internal/display"
	"github.com/quocvuong92/osram-cli/internal/logging"
)

type analyzeOptions struct {
	refresh    bool
	largeLines int
}

func (o *analyzeOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.refresh, "refresh", false, "Re-analyze even when a stored analysis exists")
	cmd.Flags().IntVar(&o.largeLines, "large-lines", analyzer.DefaultLargeFileLines, "Line count above which a file is large")
}

func (app *App) newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Count lines, find large and duplicate files, list dependencies",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, cached, err := app.projectReport(cmd.Context(), pathArg(args), opts)
			if err != nil {
				return err
			}
			showReportSummary(report, cached)
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

func (app *App) newReportCmd() *cobra.Command {
	opts := &analyzeOptions{}
	var output string
	var render bool
	cmd := &cobra.Command{
		Use:   "report [path]",
		Short: "Write the project analysis as a markdown report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, _, err := app.projectReport(cmd.Context(), pathArg(args), opts)
			if err != nil {
				return err
			}
			md := analyzer.RenderMarkdown(report)

			if output == "" {
				if render {
					if err := display.InitRenderer(app.cfg.Theme); err != nil {
						logging.Warn("markdown rendering disabled", logging.Fields{"error": err.Error()})
					}
					display.ShowContentRendered(md)
				} else {
					fmt.Fprint(display.Stdout, md)
				}
				return nil
			}

			res, err := app.fs.Write(output, md)
			app.logOperation(cmd.Context(), "report", output, statusOf(err), "")
			if err != nil {
				return err
			}
			display.ShowSuccess(fmt.Sprintf("Report written to %s (%s)", res.Path, humanize.IBytes(uint64(res.Bytes))))
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().BoolVarP(&render, "render", "r", false, "Render the markdown in the terminal")
	return cmd
}

func pathArg(args []string) string {
	if len(args) == 0 {
		return "."
	}
	return args[0]
}

// projectReport returns the stored analysis of path when persistent_analysis
// is on and --refresh is not given, otherwise analyzes the tree (and stores
// the result). cached reports whether the stored copy was used.
func (app *App) projectReport(ctx context.Context, path string, opts *analyzeOptions) (report *analyzer.Report, cached bool, err error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("resolve %s: %w", path, err)
	}

	if app.cfg.PersistentAnalysis && !opts.refresh {
		if r, ok := app.storedReport(ctx, root); ok {
			return r, true, nil
		}
	}

	sp := display.NewSpinner("Analyzing " + root + "...")
	sp.Start()
	report, err = analyzer.Analyze(ctx, afero.NewOsFs(), root, analyzer.Options{LargeFileLines: opts.largeLines})
	sp.Stop()
	app.logOperation(ctx, "analyze", root, statusOf(err), "")
	if err != nil {
		return nil, false, err
	}

	if app.cfg.PersistentAnalysis {
		s, err := app.openStore(ctx)
		if err != nil {
			return nil, false, err
		}
		if err := s.Analyses().Put(ctx, root, report); err != nil {
			return nil, false, err
		}
	}
	return report, false, nil
}

func (app *App) storedReport(ctx context.Context, root string) (*analyzer.Report, bool) {
	s, err := app.openStore(ctx)
	if err != nil {
		logging.Warn("analysis cache unavailable", logging.Fields{"error": err.Error()})
		return nil, false
	}
	rec, ok, err := s.Analyses().Get(ctx, root)
	if err != nil || !ok {
		return nil, false
	}
	var report analyzer.Report
	if err := json.Unmarshal(rec.Data, &report); err != nil {
		logging.Warn("ignoring unreadable stored analysis", logging.Fields{"path": root, "error": err.Error()})
		return nil, false
	}
	return &report, true
}

func showReportSummary(r *analyzer.Report, cached bool) {
	fmt.Fprintf(display.Stdout, "%s\n", r.Root)
	if cached {
		display.ShowMuted(fmt.Sprintf("Stored analysis from %s (use --refresh to re-analyze)", humanize.Time(r.GeneratedAt)))
	}
	fmt.Fprintln(display.Stdout, analyzer.Summary(r))

	if len(r.Languages) > 0 {
		rows := make([][]string, 0, len(r.Languages))
		for _, l := range r.Languages {
			rows = append(rows, []string{
				l.Language,
				strconv.Itoa(l.Files),
				humanize.Comma(int64(l.Lines)),
				humanize.IBytes(uint64(l.Bytes)),
			})
		}
		display.ShowTable([]string{"Language", "Files", "Lines", "Size"}, rows)
	}

	for _, f := range r.LargeFiles {
		display.ShowWarning(fmt.Sprintf("large file %s (%s lines, %s)", f.Path, humanize.Comma(int64(f.Lines)), humanize.IBytes(uint64(f.Bytes))))
	}
	for _, d := range r.Duplicates {
		display.ShowWarning(fmt.Sprintf("duplicate content: %v", d.Paths))
	}
}
