package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestValidatePath(t *testing.T) {
	allowed := t.TempDir()
	other := t.TempDir()
	nested := filepath.Join(allowed, "nested")
	if err := os.MkdirAll(nested, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		dirs    []string
		wantErr string
	}{
		{"file in dir", filepath.Join(allowed, "a.snap"), []string{allowed}, ""},
		{"file in nested dir", filepath.Join(nested, "a.snap"), []string{allowed}, ""},
		{"missing parents", filepath.Join(allowed, "x", "y", "a.snap"), []string{allowed}, ""},
		{"dir itself", allowed, []string{allowed}, ""},
		{"doubled separator", allowed + string(os.PathSeparator) + string(os.PathSeparator) + "a.snap", []string{allowed}, ""},
		{"second allowed dir", filepath.Join(other, "a.snap"), []string{allowed, other}, ""},
		{"dot-dot escape", filepath.Join(allowed, "..", "etc", "passwd"), []string{allowed}, "outside allowed"},
		{"nested dot-dot escape", filepath.Join(nested, "..", "..", "a.snap"), []string{allowed}, "outside allowed"},
		{"other dir", filepath.Join(other, "a.snap"), []string{allowed}, "outside allowed"},
		{"sibling with shared prefix", allowed + "-evil/a.snap", []string{allowed}, "outside allowed"},
		{"null byte", filepath.Join(allowed, "a\x00.snap"), []string{allowed}, "null byte"},
		{"empty", "", []string{allowed}, "empty"},
		{"no dirs", filepath.Join(allowed, "a.snap"), nil, "no allowed directories"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path, tt.dirs)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidatePath(%q) = %v, want nil", tt.path, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidatePath(%q) = %v, want error containing %q", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}

	allowed := t.TempDir()
	outside := t.TempDir()
	inside := filepath.Join(allowed, "real")
	if err := os.MkdirAll(inside, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(allowed, "escape")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink(inside, filepath.Join(allowed, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	err := ValidatePath(filepath.Join(allowed, "escape", "a.snap"), []string{allowed})
	if !errors.Is(err, ErrOutsideAllowed) {
		t.Errorf("link leaving the dir: err = %v, want ErrOutsideAllowed", err)
	}
	if err := ValidatePath(filepath.Join(allowed, "link", "a.snap"), []string{allowed}); err != nil {
		t.Errorf("link staying inside the dir: err = %v", err)
	}
}

func TestRedactPath(t *testing.T) {
	tests := map[string]string{
		"":                                 "",
		"config.yaml":                      "config.yaml",
		"/config.yaml":                     "config.yaml",
		"/home/user/.opynions/config.yaml": ".../.opynions/config.yaml",
		"/home/user/.opynions/":            ".../user/.opynions",
	}
	for in, want := range tests {
		if got := RedactPath(in); got != want {
			t.Errorf("RedactPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAllowedSnapshotDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	projectRoot := t.TempDir()

	dirs, err := AllowedSnapshotDirs(projectRoot)
	if err != nil {
		t.Fatalf("AllowedSnapshotDirs() error = %v", err)
	}
	want := []string{
		filepath.Join(home, ".opynions", "snapshots"),
		filepath.Join(projectRoot, ".opynions", "snapshots"),
	}
	if len(dirs) != len(want) {
		t.Fatalf("AllowedSnapshotDirs() = %v, want %v", dirs, want)
	}
	for i := range want {
		if dirs[i] != want[i] {
			t.Errorf("dirs[%d] = %s, want %s", i, dirs[i], want[i])
		}
	}

	if err := ValidatePath(filepath.Join(want[1], "snapshot-1.snap"), dirs); err != nil {
		t.Errorf("project snapshot path rejected: %v", err)
	}
	if err := ValidatePath(filepath.Join(projectRoot, "elsewhere.snap"), dirs); err == nil {
		t.Error("path outside the snapshot dirs accepted")
	}
}

func TestAllowedSnapshotDirs_NoProjectRoot(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dirs, err := AllowedSnapshotDirs("")
	if err != nil {
		t.Fatalf("AllowedSnapshotDirs() error = %v", err)
	}
	if len(dirs) != 1 {
		t.Errorf("expected only the global dir, got %v", dirs)
	}
}
