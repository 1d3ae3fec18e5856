package analyzer

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goMod = `module example.com/demo

go 1.22

require (
	github.com/spf13/cobra v1.8.1
	golang.org/x/sys v0.20.0 // indirect
)
`

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

func testProject(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/proj/main.go":               "package main\n\nfunc main() {}\n",
		"/proj/a.txt":                 "same\n",
		"/proj/docs/b.txt":            "same\n",
		"/proj/empty.txt":             "",
		"/proj/empty2.txt":            "",
		"/proj/big.py":                strings.Repeat("x = 1\n", 1200),
		"/proj/go.mod":                goMod,
		"/proj/package.json":          `{"dependencies":{"react":"^18.0.0"},"devDependencies":{"jest":"^29"}}`,
		"/proj/node_modules/lib/x.js": "module.exports = 1\n",
		"/proj/.cache/y.py":           "print(1)\n",
		"/proj/build/generated.go":    "package gen\n",
		"/proj/src/__pycache__/z.py":  "z = 1\n",
	})
	return fs
}

func TestAnalyze(t *testing.T) {
	report, err := Analyze(context.Background(), testProject(t), "/proj", Options{})
	require.NoError(t, err)

	assert.Equal(t, "/proj", report.Root)
	assert.Equal(t, 8, report.TotalFiles)
	assert.Equal(t, 3, report.SourceFiles)
	assert.Equal(t, 1204, report.TotalLines)
	assert.Equal(t, []string{"package.json", "go.mod"}, report.Markers)

	require.Len(t, report.Languages, 3)
	assert.Equal(t, "Python", report.Languages[0].Language)
	assert.Equal(t, 1200, report.Languages[0].Lines)
	assert.Equal(t, LanguageStats{Language: "Go", Files: 1, Lines: 3, BlankLines: 1, Bytes: 29}, report.Languages[1])
	assert.Equal(t, "JSON", report.Languages[2].Language)

	require.Len(t, report.LargeFiles, 1)
	assert.Equal(t, "big.py", report.LargeFiles[0].Path)
	assert.Equal(t, 1200, report.LargeFiles[0].Lines)

	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, []string{"a.txt", "docs/b.txt"}, report.Duplicates[0].Paths)
	assert.Equal(t, int64(5), report.Duplicates[0].Bytes)

	require.Len(t, report.Manifests, 2)
	assert.Equal(t, "package.json", report.Manifests[0].File)
	assert.Equal(t, "go.mod", report.Manifests[1].File)
}

func TestAnalyze_LargeBySize(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/p/blob.bin":  strings.Repeat("a", 2048),
		"/p/small.bin": "b",
	})

	report, err := Analyze(context.Background(), fs, "/p", Options{LargeFileBytes: 1024})
	require.NoError(t, err)
	require.Len(t, report.LargeFiles, 1)
	assert.Equal(t, "blob.bin", report.LargeFiles[0].Path)
	assert.Zero(t, report.LargeFiles[0].Lines)
}

func TestAnalyze_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/file.go": "package x\n"})

	_, err := Analyze(context.Background(), fs, "/missing", Options{})
	assert.Error(t, err)

	_, err = Analyze(context.Background(), fs, "/file.go", Options{})
	assert.ErrorContains(t, err, "not a directory")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Analyze(ctx, testProject(t), "/proj", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_ReportIsJSON(t *testing.T) {
	report, err := Analyze(context.Background(), testProject(t), "/proj", Options{})
	require.NoError(t, err)

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, report.TotalLines, back.TotalLines)
	assert.Equal(t, report.Duplicates, back.Duplicates)
	assert.Equal(t, report.Manifests, back.Manifests)
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		in           string
		lines, blank int
	}{
		{"", 0, 0},
		{"a", 1, 0},
		{"a\n", 1, 0},
		{"a\n\nb", 3, 1},
		{"\n", 1, 1},
		{"a\n  \n\tb\n", 3, 1},
	}
	for _, tt := range tests {
		lines, blank := countLines([]byte(tt.in))
		assert.Equal(t, tt.lines, lines, "lines of %q", tt.in)
		assert.Equal(t, tt.blank, blank, "blank lines of %q", tt.in)
	}
}

func TestLanguage(t *testing.T) {
	assert.Equal(t, "Go", Language("main.go"))
	assert.Equal(t, "TypeScript", Language("App.TSX"))
	assert.Equal(t, "YAML", Language("ci.yml"))
	assert.Empty(t, Language("go.sum"))
	assert.Empty(t, Language("Makefile"))
}

func TestRenderMarkdown(t *testing.T) {
	report, err := Analyze(context.Background(), testProject(t), "/proj", Options{})
	require.NoError(t, err)

	md := RenderMarkdown(report)
	for _, want := range []string{
		"# Project Analysis: /proj",
		"- Lines of source: 1,204",
		"- Project markers: package.json, go.mod",
		"| Python | 1 | 1,200 | 0 |",
		"| `big.py` | 1,200 |",
		"- `a.txt`, `docs/b.txt` (5 B each)",
		"### go.mod (go)",
		"- github.com/spf13/cobra v1.8.1",
		"- golang.org/x/sys v0.20.0 _(dev)_",
		"- jest ^29 _(dev)_",
	} {
		assert.Contains(t, md, want)
	}
	assert.True(t, strings.HasSuffix(md, "\n"))
	assert.False(t, strings.HasSuffix(md, "\n\n"))
}

func TestRenderMarkdown_Empty(t *testing.T) {
	md := RenderMarkdown(&Report{Root: "/empty"})
	assert.Contains(t, md, "- Project markers: none")
	assert.Contains(t, md, "## Large Files\n\nNone.")
	assert.Contains(t, md, "## Duplicate Files\n\nNone.")
	assert.NotContains(t, md, "## Dependencies")
}

func TestSummary(t *testing.T) {
	r := &Report{SourceFiles: 1500, TotalLines: 120000, LargeFiles: make([]FileStat, 2)}
	assert.Equal(t, "1,500 source files, 120,000 lines, 2 large, 0 duplicate groups, 0 manifests", Summary(r))
}
