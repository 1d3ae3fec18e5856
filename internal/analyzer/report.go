package analyzer

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// RenderMarkdown builds the markdown project report
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Project Analysis: %s\n\n", r.Root)
	if !r.GeneratedAt.IsZero() {
		fmt.Fprintf(&sb, "_Generated %s_\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	}

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Files: %s (%s)\n", humanize.Comma(int64(r.TotalFiles)), humanize.IBytes(uint64(r.TotalBytes)))
	fmt.Fprintf(&sb, "- Source files: %s\n", humanize.Comma(int64(r.SourceFiles)))
	fmt.Fprintf(&sb, "- Lines of source: %s\n", humanize.Comma(int64(r.TotalLines)))
	if len(r.Markers) > 0 {
		fmt.Fprintf(&sb, "- Project markers: %s\n", strings.Join(r.Markers, ", "))
	} else {
		sb.WriteString("- Project markers: none\n")
	}
	sb.WriteString("\n")

	if len(r.Languages) > 0 {
		sb.WriteString("## Languages\n\n")
		sb.WriteString("| Language | Files | Lines | Blank | Size |\n")
		sb.WriteString("|---|---:|---:|---:|---:|\n")
		for _, l := range r.Languages {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
				l.Language,
				humanize.Comma(int64(l.Files)),
				humanize.Comma(int64(l.Lines)),
				humanize.Comma(int64(l.BlankLines)),
				humanize.IBytes(uint64(l.Bytes)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Large Files\n\n")
	if len(r.LargeFiles) == 0 {
		sb.WriteString("None.\n\n")
	} else {
		sb.WriteString("| File | Lines | Size |\n")
		sb.WriteString("|---|---:|---:|\n")
		for _, f := range r.LargeFiles {
			lines := "-"
			if f.Lines > 0 {
				lines = humanize.Comma(int64(f.Lines))
			}
			fmt.Fprintf(&sb, "| `%s` | %s | %s |\n", f.Path, lines, humanize.IBytes(uint64(f.Bytes)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Duplicate Files\n\n")
	if len(r.Duplicates) == 0 {
		sb.WriteString("None.\n\n")
	} else {
		for _, d := range r.Duplicates {
			paths := make([]string, len(d.Paths))
			for i, p := range d.Paths {
				paths[i] = "`" + p + "`"
			}
			fmt.Fprintf(&sb, "- %s (%s each)\n", strings.Join(paths, ", "), humanize.IBytes(uint64(d.Bytes)))
		}
		sb.WriteString("\n")
	}

	if len(r.Manifests) > 0 {
		sb.WriteString("## Dependencies\n\n")
		for _, m := range r.Manifests {
			fmt.Fprintf(&sb, "### %s (%s)\n\n", m.File, m.Ecosystem)
			if m.Error != "" {
				fmt.Fprintf(&sb, "> could not parse: %s\n\n", m.Error)
			}
			if len(m.Dependencies) == 0 {
				sb.WriteString("No dependencies declared.\n\n")
				continue
			}
			for _, d := range m.Dependencies {
				line := d.Name
				if d.Version != "" {
					line += " " + d.Version
				}
				if d.Dev {
					line += " _(dev)_"
				}
				fmt.Fprintf(&sb, "- %s\n", line)
			}
			sb.WriteString("\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// Summary returns a one-line description of the report
func Summary(r *Report) string {
	return fmt.Sprintf("%s source files, %s lines, %d large, %d duplicate groups, %d manifests",
		humanize.Comma(int64(r.SourceFiles)),
		humanize.Comma(int64(r.TotalLines)),
		len(r.LargeFiles),
		len(r.Duplicates),
		len(r.Manifests))
}
