package fsops

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for writes and deletes under system directories
var ErrUnsafePath = errors.New("path is protected")

// blockedPaths are system directories that cannot be modified
var blockedPaths = []string{
	"/etc/", "/usr/", "/bin/", "/sbin/", "/boot/",
	"/sys/", "/proc/", "/dev/", "/var/", "/lib/", "/lib64/",
	"/System/", "/Library/", // macOS
}

// IsPathSafe reports whether path may be written or deleted. The reason
// names the protected prefix when it may not.
func IsPathSafe(path string) (bool, string) {
	if strings.ContainsRune(path, 0) {
		return false, "path contains a NUL byte"
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, "invalid path"
	}

	// Resolve symlinks so /etc -> /private/etc on macOS is still caught.
	// A path that does not exist yet is resolved through its parent.
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	} else if resolvedDir, err := filepath.EvalSymlinks(filepath.Dir(absPath)); err == nil {
		absPath = filepath.Join(resolvedDir, filepath.Base(absPath))
	}

	candidate := absPath + "/"
	for _, blocked := range blockedPaths {
		if strings.HasPrefix(candidate, blocked) || strings.HasPrefix(candidate, "/private"+blocked) {
			return false, fmt.Sprintf("%s is protected", strings.TrimSuffix(blocked, "/"))
		}
	}
	return true, ""
}

func checkSafe(path string) error {
	if ok, reason := IsPathSafe(path); !ok {
		return fmt.Errorf("%w: %s", ErrUnsafePath, reason)
	}
	return nil
}
