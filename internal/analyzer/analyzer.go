// Package analyzer performs a superficial static analysis of a project
// tree: per-language line counts, large and duplicate files, project
// markers and declared dependencies.
package analyzer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"

	"github.com/quocvuong92/osram-cli/internal/logging"
)

// Defaults for Options
const (
	DefaultLargeFileLines = 1000
	DefaultLargeFileBytes = 1 << 20
)

// skippedDirs are never descended into, in addition to hidden directories
var skippedDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"build":        true,
	"dist":         true,
	"vendor":       true,
	"target":       true,
	".git":         true,
}

// ProjectMarkers are the files whose presence identifies a project type
var ProjectMarkers = []string{
	"package.json",
	"requirements.txt",
	"setup.py",
	"pom.xml",
	"Cargo.toml",
	"go.mod",
	"pyproject.toml",
	"pubspec.yaml",
	".git",
}

var languages = map[string]string{
	".py":    "Python",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".java":  "Java",
	".cpp":   "C++",
	".cc":    "C++",
	".hpp":   "C++",
	".c":     "C",
	".h":     "C",
	".cs":    "C#",
	".go":    "Go",
	".rs":    "Rust",
	".rb":    "Ruby",
	".php":   "PHP",
	".swift": "Swift",
	".kt":    "Kotlin",
	".scala": "Scala",
	".dart":  "Dart",
	".html":  "HTML",
	".css":   "CSS",
	".json":  "JSON",
	".xml":   "XML",
	".yaml":  "YAML",
	".yml":   "YAML",
	".sh":    "Shell",
	".sql":   "SQL",
	".md":    "Markdown",
}

// Language returns the language for a file name, or "" if it is not a
// recognised source file.
func Language(name string) string {
	return languages[strings.ToLower(filepath.Ext(name))]
}

// Options tunes an analysis run
type Options struct {
	LargeFileLines int
	LargeFileBytes int64
}

func (o Options) withDefaults() Options {
	if o.LargeFileLines <= 0 {
		o.LargeFileLines = DefaultLargeFileLines
	}
	if o.LargeFileBytes <= 0 {
		o.LargeFileBytes = DefaultLargeFileBytes
	}
	return o
}

// LanguageStats aggregates the source files of one language
type LanguageStats struct {
	Language   string `json:"language"`
	Files      int    `json:"files"`
	Lines      int    `json:"lines"`
	BlankLines int    `json:"blank_lines"`
	Bytes      int64  `json:"bytes"`
}

// FileStat describes one flagged file. Lines is zero for files that are
// not source files.
type FileStat struct {
	Path  string `json:"path"`
	Lines int    `json:"lines,omitempty"`
	Bytes int64  `json:"bytes"`
}

// DuplicateGroup lists files with identical content
type DuplicateGroup struct {
	Hash  string   `json:"hash"`
	Bytes int64    `json:"bytes"`
	Paths []string `json:"paths"`
}

// Report is the result of Analyze. Paths are relative to Root.
type Report struct {
	Root        string           `json:"root"`
	GeneratedAt time.Time        `json:"generated_at"`
	Markers     []string         `json:"markers"`
	TotalFiles  int              `json:"total_files"`
	SourceFiles int              `json:"source_files"`
	TotalLines  int              `json:"total_lines"`
	TotalBytes  int64            `json:"total_bytes"`
	Languages   []LanguageStats  `json:"languages"`
	LargeFiles  []FileStat       `json:"large_files"`
	Duplicates  []DuplicateGroup `json:"duplicates"`
	Manifests   []Manifest       `json:"manifests"`
}

// Analyze walks root on fsys and builds a Report
func Analyze(ctx context.Context, fsys afero.Fs, root string, opts Options) (*Report, error) {
	opts = opts.withDefaults()

	info, err := fsys.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("analyze %s: not a directory", root)
	}

	a := &walker{
		fsys:   fsys,
		root:   root,
		opts:   opts,
		langs:  make(map[string]*LanguageStats),
		hashes: make(map[uint64][]FileStat),
	}
	if err := afero.Walk(fsys, root, func(path string, info fs.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			logging.Debug("skipping unreadable path", logging.Fields{"path": path, "error": err.Error()})
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		return a.visit(path, info)
	}); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", root, err)
	}

	report := a.report()
	report.Markers = detectMarkers(fsys, root)
	report.Manifests = ReadManifests(fsys, root)
	return report, nil
}

type walker struct {
	fsys afero.Fs
	root string
	opts Options

	total  Report
	langs  map[string]*LanguageStats
	large  []FileStat
	hashes map[uint64][]FileStat
}

func (w *walker) visit(path string, info fs.FileInfo) error {
	if info.IsDir() {
		if path != w.root && (strings.HasPrefix(info.Name(), ".") || skippedDirs[info.Name()]) {
			return filepath.SkipDir
		}
		return nil
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	stat := FileStat{Path: filepath.ToSlash(rel), Bytes: info.Size()}
	w.total.TotalFiles++
	w.total.TotalBytes += info.Size()

	lang := Language(info.Name())
	var sum uint64
	if lang != "" {
		data, err := afero.ReadFile(w.fsys, path)
		if err != nil {
			logging.Debug("skipping unreadable file", logging.Fields{"path": path, "error": err.Error()})
			return nil
		}
		lines, blank := countLines(data)
		stat.Lines = lines

		ls := w.langs[lang]
		if ls == nil {
			ls = &LanguageStats{Language: lang}
			w.langs[lang] = ls
		}
		ls.Files++
		ls.Lines += lines
		ls.BlankLines += blank
		ls.Bytes += info.Size()
		w.total.SourceFiles++
		w.total.TotalLines += lines
		sum = xxhash.Sum64(data)
	} else if info.Size() > 0 {
		sum, err = hashFile(w.fsys, path)
		if err != nil {
			logging.Debug("skipping unreadable file", logging.Fields{"path": path, "error": err.Error()})
			return nil
		}
	}

	if stat.Lines > w.opts.LargeFileLines || stat.Bytes > w.opts.LargeFileBytes {
		w.large = append(w.large, stat)
	}
	if info.Size() > 0 {
		w.hashes[sum] = append(w.hashes[sum], stat)
	}
	return nil
}

func (w *walker) report() *Report {
	r := w.total
	r.Root = w.root
	r.GeneratedAt = time.Now()

	for _, ls := range w.langs {
		r.Languages = append(r.Languages, *ls)
	}
	sort.Slice(r.Languages, func(i, j int) bool {
		if r.Languages[i].Lines != r.Languages[j].Lines {
			return r.Languages[i].Lines > r.Languages[j].Lines
		}
		return r.Languages[i].Language < r.Languages[j].Language
	})

	r.LargeFiles = w.large
	sort.Slice(r.LargeFiles, func(i, j int) bool { return r.LargeFiles[i].Path < r.LargeFiles[j].Path })

	for sum, files := range w.hashes {
		if len(files) < 2 {
			continue
		}
		group := DuplicateGroup{Hash: strconv.FormatUint(sum, 16), Bytes: files[0].Bytes}
		for _, f := range files {
			group.Paths = append(group.Paths, f.Path)
		}
		sort.Strings(group.Paths)
		r.Duplicates = append(r.Duplicates, group)
	}
	sort.Slice(r.Duplicates, func(i, j int) bool { return r.Duplicates[i].Paths[0] < r.Duplicates[j].Paths[0] })
	return &r
}

func hashFile(fsys afero.Fs, path string) (uint64, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := xxhash.New()
	if _, err := io.Copy(d, f); err != nil {
		return 0, err
	}
	return d.Sum64(), nil
}

// countLines returns the number of lines and how many of them are blank.
// A trailing newline does not start a new line.
func countLines(data []byte) (lines, blank int) {
	if len(data) == 0 {
		return 0, 0
	}
	text := strings.TrimSuffix(string(data), "\n")
	for _, line := range strings.Split(text, "\n") {
		lines++
		if strings.TrimSpace(line) == "" {
			blank++
		}
	}
	return lines, blank
}

func detectMarkers(fsys afero.Fs, root string) []string {
	var found []string
	for _, name := range ProjectMarkers {
		if ok, _ := afero.Exists(fsys, filepath.Join(root, name)); ok {
			found = append(found, name)
		}
	}
	return found
}
