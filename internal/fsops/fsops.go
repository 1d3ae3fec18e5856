// Package fsops implements the filesystem pass-through commands: listing,
// reading, writing, copying, moving, deleting to a trash directory,
// globbing and unified-diff comparison.
package fsops

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/aymanbagabas/go-udiff"
	"github.com/spf13/afero"

	"github.com/quocvuong92/osram-cli/internal/constants"
)

// MaxReadSize caps Read; larger files are truncated
const MaxReadSize = 512 * 1024

// MaxFindResults limits Find output
const MaxFindResults = 200

// BackupSuffix is appended to a file overwritten by Write
const BackupSuffix = ".bak"

// Entry is one listed file or directory
type Entry struct {
	Name    string
	Path    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// ReadResult is the content returned by Read
type ReadResult struct {
	Path      string
	Content   string
	Size      int64
	Truncated bool
}

// WriteResult describes a completed Write. Backup is empty when no file
// existed before.
type WriteResult struct {
	Path   string
	Bytes  int
	Backup string
}

// Ops runs filesystem operations against an afero filesystem. Relative
// paths are resolved against the process working directory.
type Ops struct {
	fs    afero.Fs
	trash string
}

// DefaultTrashDir is where Delete moves removed paths
func DefaultTrashDir() string {
	return filepath.Join(xdg.DataHome, constants.AppName, "trash")
}

// New returns Ops over fsys that moves deleted paths into trashDir
func New(fsys afero.Fs, trashDir string) *Ops {
	return &Ops{fs: fsys, trash: trashDir}
}

// NewOS returns Ops over the real filesystem with the default trash
func NewOS() *Ops {
	return New(afero.NewOsFs(), DefaultTrashDir())
}

// TrashDir returns the directory Delete moves paths into
func (o *Ops) TrashDir() string {
	return o.trash
}

func abs(path string) (string, error) {
	if path == "" {
		path = "."
	}
	p, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	return p, nil
}

// Exists reports whether path exists
func (o *Ops) Exists(path string) bool {
	p, err := abs(path)
	if err != nil {
		return false
	}
	ok, _ := afero.Exists(o.fs, p)
	return ok
}

// List returns the entries of a directory, directories first
func (o *Ops) List(path string) ([]Entry, error) {
	dir, err := abs(path)
	if err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(o.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entryOf(filepath.Join(dir, info.Name()), info))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func entryOf(path string, info fs.FileInfo) Entry {
	return Entry{
		Name:    info.Name(),
		Path:    path,
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

// Read returns up to MaxReadSize bytes of a file
func (o *Ops) Read(path string) (*ReadResult, error) {
	p, err := abs(path)
	if err != nil {
		return nil, err
	}
	info, err := o.fs.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("read %s: is a directory", p)
	}

	f, err := o.fs.Open(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxReadSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return &ReadResult{
		Path:      p,
		Content:   string(data),
		Size:      info.Size(),
		Truncated: info.Size() > MaxReadSize,
	}, nil
}

// Write creates or overwrites a file, creating parent directories. An
// existing file is first copied to path + BackupSuffix.
func (o *Ops) Write(path, content string) (*WriteResult, error) {
	p, err := abs(path)
	if err != nil {
		return nil, err
	}
	if err := checkSafe(p); err != nil {
		return nil, err
	}

	res := &WriteResult{Path: p, Bytes: len(content)}
	if info, err := o.fs.Stat(p); err == nil {
		if info.IsDir() {
			return nil, fmt.Errorf("write %s: is a directory", p)
		}
		backup := p + BackupSuffix
		if err := o.copyFile(p, backup, info.Mode()); err != nil {
			return nil, fmt.Errorf("backup %s: %w", p, err)
		}
		res.Backup = backup
	}

	if err := o.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("create parent of %s: %w", p, err)
	}
	if err := afero.WriteFile(o.fs, p, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", p, err)
	}
	return res, nil
}

// Mkdir creates a directory and any missing parents
func (o *Ops) Mkdir(path string) (string, error) {
	p, err := abs(path)
	if err != nil {
		return "", err
	}
	if err := checkSafe(p); err != nil {
		return "", err
	}
	if err := o.fs.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", p, err)
	}
	return p, nil
}

// Delete moves path into the trash directory and returns its new location.
// Names already in the trash get a numeric suffix.
func (o *Ops) Delete(path string) (string, error) {
	p, err := abs(path)
	if err != nil {
		return "", err
	}
	if err := checkSafe(p); err != nil {
		return "", err
	}
	if _, err := o.fs.Stat(p); err != nil {
		return "", fmt.Errorf("delete %s: %w", p, err)
	}
	if p == o.trash || strings.HasPrefix(o.trash+string(filepath.Separator), p+string(filepath.Separator)) {
		return "", fmt.Errorf("delete %s: contains the trash directory", p)
	}

	if err := o.fs.MkdirAll(o.trash, 0o700); err != nil {
		return "", fmt.Errorf("create trash: %w", err)
	}
	dest, err := o.trashName(filepath.Base(p))
	if err != nil {
		return "", err
	}
	if err := o.move(p, dest); err != nil {
		return "", fmt.Errorf("delete %s: %w", p, err)
	}
	return dest, nil
}

func (o *Ops) trashName(base string) (string, error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	dest := filepath.Join(o.trash, base)
	for i := 1; ; i++ {
		exists, err := afero.Exists(o.fs, dest)
		if err != nil {
			return "", fmt.Errorf("check trash: %w", err)
		}
		if !exists {
			return dest, nil
		}
		dest = filepath.Join(o.trash, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
}

// Copy copies a file or, recursively, a directory. The destination must
// not exist.
func (o *Ops) Copy(src, dst string) (string, error) {
	from, to, err := o.pair(src, dst)
	if err != nil {
		return "", err
	}
	info, err := o.fs.Stat(from)
	if err != nil {
		return "", fmt.Errorf("copy %s: %w", from, err)
	}
	if !info.IsDir() {
		if err := o.copyFile(from, to, info.Mode()); err != nil {
			return "", fmt.Errorf("copy %s: %w", from, err)
		}
		return to, nil
	}

	if strings.HasPrefix(to+string(filepath.Separator), from+string(filepath.Separator)) {
		return "", fmt.Errorf("copy %s: destination is inside the source", from)
	}
	err = afero.Walk(o.fs, from, func(path string, fi fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}
		target := filepath.Join(to, rel)
		if fi.IsDir() {
			return o.fs.MkdirAll(target, fi.Mode().Perm()|0o700)
		}
		return o.copyFile(path, target, fi.Mode())
	})
	if err != nil {
		return "", fmt.Errorf("copy %s: %w", from, err)
	}
	return to, nil
}

// Move renames src to dst, copying across filesystems when needed
func (o *Ops) Move(src, dst string) (string, error) {
	from, to, err := o.pair(src, dst)
	if err != nil {
		return "", err
	}
	if err := checkSafe(from); err != nil {
		return "", err
	}
	if _, err := o.fs.Stat(from); err != nil {
		return "", fmt.Errorf("move %s: %w", from, err)
	}
	if err := o.move(from, to); err != nil {
		return "", fmt.Errorf("move %s: %w", from, err)
	}
	return to, nil
}

// pair resolves a source and destination. Copying or moving into an
// existing directory keeps the source's base name.
func (o *Ops) pair(src, dst string) (string, string, error) {
	from, err := abs(src)
	if err != nil {
		return "", "", err
	}
	to, err := abs(dst)
	if err != nil {
		return "", "", err
	}
	if info, err := o.fs.Stat(to); err == nil && info.IsDir() {
		to = filepath.Join(to, filepath.Base(from))
	}
	if from == to {
		return "", "", fmt.Errorf("%s and %s are the same path", src, dst)
	}
	if err := checkSafe(to); err != nil {
		return "", "", err
	}
	if exists, _ := afero.Exists(o.fs, to); exists {
		return "", "", fmt.Errorf("%s: %w", to, fs.ErrExist)
	}
	return from, to, nil
}

func (o *Ops) move(from, to string) error {
	if err := o.fs.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	err := o.fs.Rename(from, to)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}

	// Rename cannot cross devices; fall back to copy and remove
	info, statErr := o.fs.Stat(from)
	if statErr != nil {
		return err
	}
	if info.IsDir() {
		if _, err := o.Copy(from, to); err != nil {
			return err
		}
	} else if err := o.copyFile(from, to, info.Mode()); err != nil {
		return err
	}
	return o.fs.RemoveAll(from)
}

func (o *Ops) copyFile(from, to string, mode fs.FileMode) error {
	in, err := o.fs.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := o.fs.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	out, err := o.fs.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Find returns the paths in dir matching a glob pattern. A pattern with a
// path separator is matched against paths relative to dir; otherwise
// against base names, recursively.
func (o *Ops) Find(dir, pattern string) ([]Entry, error) {
	root, err := abs(dir)
	if err != nil {
		return nil, err
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("find %q: %w", pattern, err)
	}
	matchRel := strings.ContainsRune(pattern, '/')

	var found []Entry
	err = afero.Walk(o.fs, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		if info.IsDir() && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}

		subject := info.Name()
		if matchRel {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			subject = filepath.ToSlash(rel)
		}
		if ok, _ := filepath.Match(pattern, subject); ok {
			found = append(found, entryOf(path, info))
			if len(found) >= MaxFindResults {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipAll) {
		return nil, fmt.Errorf("find %q in %s: %w", pattern, root, err)
	}
	return found, nil
}

// Compare returns a unified diff of two files, empty when identical
func (o *Ops) Compare(a, b string) (string, error) {
	left, err := o.Read(a)
	if err != nil {
		return "", err
	}
	right, err := o.Read(b)
	if err != nil {
		return "", err
	}
	if left.Truncated || right.Truncated {
		return "", fmt.Errorf("compare: files larger than %d bytes are not supported", MaxReadSize)
	}
	if left.Content == right.Content {
		return "", nil
	}
	return udiff.Unified(left.Path, right.Path, left.Content, right.Content), nil
}
