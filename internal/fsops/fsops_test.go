package fsops

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestDir creates a real directory that is not under a blocked path.
// On macOS, t.TempDir() lives under /var/folders, which is blocked.
func createTestDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "osram-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func memOps(t *testing.T, files map[string]string) (*Ops, afero.Fs) {
	t.Helper()
	mem := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(mem, path, []byte(content), 0o644))
	}
	return New(mem, "/trash"), mem
}

func readString(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	return string(data)
}

func TestIsPathSafe(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantSafe bool
	}{
		{"relative path", "test.txt", true},
		{"absolute path in tmp", "/tmp/test.txt", true},
		{"etc itself", "/etc", false},
		{"etc file", "/etc/passwd", false},
		{"usr bin", "/usr/bin/test", false},
		{"var log", "/var/log/test", false},
		{"proc", "/proc/1/status", false},
		{"traversal into etc", "/tmp/../etc/hosts", false},
		{"similar prefix", "/etcetera/file", true},
		{"nul byte", "/tmp/a\x00b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			safe, reason := IsPathSafe(tt.path)
			assert.Equal(t, tt.wantSafe, safe, "IsPathSafe(%q) reason=%q", tt.path, reason)
			if !safe {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	ops, mem := memOps(t, nil)

	res, err := ops.Write("/work/dir/new.txt", "hello")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Bytes)
	assert.Empty(t, res.Backup)
	assert.Equal(t, "hello", readString(t, mem, "/work/dir/new.txt"))

	res, err = ops.Write("/work/dir/new.txt", "world")
	require.NoError(t, err)
	assert.Equal(t, "/work/dir/new.txt.bak", res.Backup)
	assert.Equal(t, "hello", readString(t, mem, res.Backup))
	assert.Equal(t, "world", readString(t, mem, "/work/dir/new.txt"))
}

func TestWrite_Blocked(t *testing.T) {
	ops, _ := memOps(t, nil)
	_, err := ops.Write("/etc/osram-test", "x")
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestRead(t *testing.T) {
	big := strings.Repeat("a", MaxReadSize+10)
	ops, _ := memOps(t, map[string]string{
		"/work/small.txt": "Hello, World!",
		"/work/big.txt":   big,
	})

	res, err := ops.Read("/work/small.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", res.Content)
	assert.False(t, res.Truncated)

	res, err = ops.Read("/work/big.txt")
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Content, MaxReadSize)
	assert.Equal(t, int64(MaxReadSize+10), res.Size)

	_, err = ops.Read("/work")
	assert.ErrorContains(t, err, "is a directory")

	_, err = ops.Read("/work/missing.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestList(t *testing.T) {
	ops, _ := memOps(t, map[string]string{
		"/work/b.txt":      "bb",
		"/work/a.txt":      "a",
		"/work/zdir/c.txt": "c",
		"/work/adir/d.txt": "d",
	})

	entries, err := ops.List("/work")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"adir", "zdir", "a.txt", "b.txt"}, names)
	assert.Equal(t, int64(2), entries[3].Size)
	assert.Equal(t, "/work/b.txt", entries[3].Path)

	_, err = ops.List("/nope")
	assert.Error(t, err)
}

func TestMkdir(t *testing.T) {
	ops, mem := memOps(t, nil)
	p, err := ops.Mkdir("/work/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "/work/a/b/c", p)
	ok, err := afero.DirExists(mem, p)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = ops.Mkdir("/sys/osram")
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestDelete_MovesToTrash(t *testing.T) {
	ops, mem := memOps(t, map[string]string{"/work/a.txt": "first"})

	dest, err := ops.Delete("/work/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "/trash/a.txt", dest)
	assert.Equal(t, "first", readString(t, mem, dest))
	exists, _ := afero.Exists(mem, "/work/a.txt")
	assert.False(t, exists)

	require.NoError(t, afero.WriteFile(mem, "/work/a.txt", []byte("second"), 0o644))
	dest, err = ops.Delete("/work/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "/trash/a_1.txt", dest)
	assert.Equal(t, "second", readString(t, mem, dest))

	_, err = ops.Delete("/work/a.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestDelete_Directory(t *testing.T) {
	dir := createTestDir(t)
	trash := filepath.Join(createTestDir(t), "trash")
	ops := New(afero.NewOsFs(), trash)

	target := filepath.Join(dir, "project")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "src", "main.go"), []byte("package main\n"), 0o644))

	dest, err := ops.Delete(target)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(trash, "project"), dest)
	assert.NoDirExists(t, target)
	assert.FileExists(t, filepath.Join(dest, "src", "main.go"))
}

func TestDelete_RefusesTrashParent(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll("/data/osram/trash", 0o700))
	ops := New(mem, "/data/osram/trash")

	_, err := ops.Delete("/data/osram")
	assert.ErrorContains(t, err, "trash")
}

func TestCopy(t *testing.T) {
	ops, mem := memOps(t, map[string]string{
		"/work/a.txt":        "alpha",
		"/work/src/x.go":     "package x\n",
		"/work/src/sub/y.go": "package sub\n",
	})
	require.NoError(t, mem.MkdirAll("/work/out", 0o755))

	dest, err := ops.Copy("/work/a.txt", "/work/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "/work/b.txt", dest)
	assert.Equal(t, "alpha", readString(t, mem, "/work/b.txt"))

	dest, err = ops.Copy("/work/a.txt", "/work/out")
	require.NoError(t, err)
	assert.Equal(t, "/work/out/a.txt", dest)

	dest, err = ops.Copy("/work/src", "/work/copy")
	require.NoError(t, err)
	assert.Equal(t, "/work/copy", dest)
	assert.Equal(t, "package sub\n", readString(t, mem, "/work/copy/sub/y.go"))
	assert.Equal(t, "package x\n", readString(t, mem, "/work/src/x.go"))

	_, err = ops.Copy("/work/a.txt", "/work/b.txt")
	assert.ErrorIs(t, err, fs.ErrExist)

	_, err = ops.Copy("/work/src", "/work/src/inner")
	assert.ErrorContains(t, err, "inside the source")

	_, err = ops.Copy("/work/missing", "/work/x")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestMove(t *testing.T) {
	ops, mem := memOps(t, map[string]string{"/work/a.txt": "alpha"})

	dest, err := ops.Move("/work/a.txt", "/work/moved/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "/work/moved/b.txt", dest)
	assert.Equal(t, "alpha", readString(t, mem, dest))
	exists, _ := afero.Exists(mem, "/work/a.txt")
	assert.False(t, exists)

	_, err = ops.Move("/work/moved/b.txt", "/etc/b.txt")
	assert.ErrorIs(t, err, ErrUnsafePath)

	_, err = ops.Move("/work/moved/b.txt", "/work/moved/b.txt")
	assert.ErrorContains(t, err, "same path")
}

func TestFind(t *testing.T) {
	ops, _ := memOps(t, map[string]string{
		"/work/main.go":        "",
		"/work/src/util.go":    "",
		"/work/src/util.py":    "",
		"/work/.git/config.go": "",
	})

	found, err := ops.Find("/work", "*.go")
	require.NoError(t, err)
	var paths []string
	for _, e := range found {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"/work/main.go", "/work/src/util.go"}, paths)

	found, err = ops.Find("/work", "src/*.py")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "/work/src/util.py", found[0].Path)

	_, err = ops.Find("/work", "[")
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	ops, _ := memOps(t, map[string]string{
		"/work/a.txt": "one\ntwo\nthree\n",
		"/work/b.txt": "one\n2\nthree\n",
		"/work/c.txt": "one\ntwo\nthree\n",
	})

	diff, err := ops.Compare("/work/a.txt", "/work/c.txt")
	require.NoError(t, err)
	assert.Empty(t, diff)

	diff, err = ops.Compare("/work/a.txt", "/work/b.txt")
	require.NoError(t, err)
	assert.Contains(t, diff, "--- /work/a.txt")
	assert.Contains(t, diff, "+++ /work/b.txt")
	assert.Contains(t, diff, "-two\n")
	assert.Contains(t, diff, "+2\n")

	_, err = ops.Compare("/work/a.txt", "/work/missing.txt")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
