package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/opynions/internal/constants"
)

// GlobalPath returns the path to the global .opynions directory.
// On Unix: ~/.opynions
// On Windows: %USERPROFILE%\.opynions
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DirName), nil
}

// LocalPath returns the path to the local .opynions directory for the
// given project root.
func LocalPath(projectRoot string) string {
	return filepath.Join(projectRoot, constants.DirName)
}

// DatabasePath returns the default database file for projectRoot.
func DatabasePath(projectRoot string) string {
	return filepath.Join(LocalPath(projectRoot), constants.DatabaseFile)
}
