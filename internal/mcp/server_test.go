package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/opynions/internal/config"
	"github.com/nvandessel/opynions/internal/constants"
	"github.com/nvandessel/opynions/internal/store"
)

// isolateHome sets HOME to a temp directory to avoid touching real ~/.opynions/
func isolateHome(t *testing.T, tmpDir string) {
	t.Helper()
	tmpHome := filepath.Join(tmpDir, "home")
	if err := os.MkdirAll(tmpHome, 0755); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", tmpHome)
}

// testSettings keeps runs small enough for unit tests.
func testSettings() *config.OpynionsConfig {
	cfg := config.Default()
	cfg.Simulation.Nodes = 20
	cfg.Simulation.Steps = 5
	cfg.Sweep.Runs = 2
	cfg.Sweep.Workers = 2
	cfg.Sweep.Seed = 7
	cfg.Sweep.Epsilon = config.RangeConfig{Start: 0, Stop: 1, Points: 3}
	cfg.Sweep.Mu = config.RangeConfig{Start: 0, Stop: 0.5, Points: 2}
	return cfg
}

// newTestServer returns a server over an in-memory store.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	s, err := NewServer(&Config{
		Name:     "test-server",
		Version:  "v1.0.0",
		Root:     tmpDir,
		Settings: testSettings(),
		Store:    store.NewInMemoryStore(),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewServer(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	server, err := NewServer(&Config{
		Name:    "test-server",
		Version: "v1.0.0",
		Root:    tmpDir,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	if server.server == nil {
		t.Error("Server.server is nil")
	}
	if server.store == nil {
		t.Error("Server.store is nil")
	}
	if server.root != tmpDir {
		t.Errorf("Server.root = %q, want %q", server.root, tmpDir)
	}
	if server.settings.Simulation.Nodes != constants.DefaultNodes {
		t.Errorf("nodes = %d, want default %d", server.settings.Simulation.Nodes, constants.DefaultNodes)
	}
}

func TestNewServer_CreatesDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	server, err := NewServer(&Config{Name: "test-server", Version: "v1.0.0", Root: tmpDir})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	if _, err := os.Stat(store.DatabasePath(tmpDir)); err != nil {
		t.Errorf("database not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, constants.DirName, AuditFile)); err != nil {
		t.Errorf("audit log not created: %v", err)
	}
}

func TestNewServer_InvalidSettings(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	cfg := testSettings()
	cfg.Simulation.Nodes = 1

	_, err := NewServer(&Config{
		Name:     "test-server",
		Version:  "v1.0.0",
		Root:     tmpDir,
		Settings: cfg,
		Store:    store.NewInMemoryStore(),
	})
	if err == nil {
		t.Fatal("expected error for invalid settings")
	}
}
