// Package pathutil confines file writes to known directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/opynions/internal/constants"
)

// ErrOutsideAllowed is returned when a path escapes every allowed directory.
var ErrOutsideAllowed = errors.New("path is outside allowed directories")

// RedactPath shortens a path to .../<parent>/<base> for error messages,
// e.g. "/home/user/.opynions/config.yaml" becomes ".../.opynions/config.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// ValidatePath reports whether path, once made absolute and with symlinks
// in its existing ancestors resolved, lies inside one of allowedDirs. The
// file itself need not exist.
func ValidatePath(path string, allowedDirs []string) error {
	switch {
	case path == "":
		return fmt.Errorf("validate path: empty path")
	case len(allowedDirs) == 0:
		return fmt.Errorf("validate path: no allowed directories")
	case strings.ContainsRune(path, 0):
		return fmt.Errorf("validate path: null byte in path")
	}

	target, err := resolve(path)
	if err != nil {
		return fmt.Errorf("validate path %s: %w", RedactPath(path), err)
	}

	for _, dir := range allowedDirs {
		base, err := resolve(dir)
		if err != nil {
			continue
		}
		if within(target, base) {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", RedactPath(target), ErrOutsideAllowed)
}

// resolve returns the absolute form of p with symlinks evaluated on the
// deepest ancestor that exists.
func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	var tail []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			parts := append([]string{resolved}, tail...)
			return filepath.Join(parts...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("no existing ancestor of %s", RedactPath(abs))
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

func within(path, base string) bool {
	return path == base || strings.HasPrefix(path, base+string(os.PathSeparator))
}

// AllowedSnapshotDirs returns the directories snapshots may be written to:
// ~/.opynions/snapshots/ and, when projectRoot is set,
// <projectRoot>/.opynions/snapshots/.
func AllowedSnapshotDirs(projectRoot string) ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	dirs := []string{filepath.Join(homeDir, constants.DirName, constants.SnapshotDir)}
	if projectRoot != "" {
		dirs = append(dirs, filepath.Join(projectRoot, constants.DirName, constants.SnapshotDir))
	}
	return dirs, nil
}
