package mcp

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/opynions/internal/constants"
)

func readAudit(t *testing.T, root string) []AuditEntry {
	t.Helper()
	f, err := os.Open(filepath.Join(root, constants.DirName, AuditFile))
	require.NoError(t, err)
	defer f.Close()

	var entries []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e), "line %q", sc.Text())
		entries = append(entries, e)
	}
	require.NoError(t, sc.Err())
	return entries
}

func TestAuditLogger_Nil(t *testing.T) {
	var a *AuditLogger
	a.Log(AuditEntry{Tool: "opynions_simulate"})
	assert.NoError(t, a.Close())
}

func TestAuditLogger_Lifecycle(t *testing.T) {
	root := t.TempDir()
	a := NewAuditLogger(root)
	require.NotNil(t, a)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.Log(AuditEntry{Timestamp: at, Tool: "opynions_sweep", DurationMs: 42, Status: "success",
		Params: map[string]string{"runs": "10"}})
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	a.Log(AuditEntry{Tool: "dropped after close"})

	entries := readAudit(t, root)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "opynions_sweep", e.Tool)
	assert.EqualValues(t, 42, e.DurationMs)
	assert.True(t, at.Equal(e.Timestamp))
	assert.Equal(t, "10", e.Params["runs"])
}

func TestAuditLogger_Appends(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 2; i++ {
		a := NewAuditLogger(root)
		require.NotNil(t, a)
		a.Log(AuditEntry{Tool: "opynions_simulate", Status: "success"})
		require.NoError(t, a.Close())
	}
	assert.Len(t, readAudit(t, root), 2)
}

func TestAuditLogger_ConcurrentLines(t *testing.T) {
	root := t.TempDir()
	a := NewAuditLogger(root)
	require.NotNil(t, a)

	const goroutines, each = 8, 25
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				a.Log(AuditEntry{Tool: "opynions_simulate", Status: "success",
					Params: map[string]string{"nodes": "200", "steps": "100"}})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, a.Close())

	// Every line must parse on its own; readAudit fails on interleaving.
	assert.Len(t, readAudit(t, root), goroutines*each)
}

func TestSanitizeToolParams(t *testing.T) {
	got := sanitizeToolParams(map[string]any{
		"runs":    10,
		"mu":      0.5,
		"id":      "5f0c1d2e-aaaa",
		"seed":    uint64(42),
		"unknown": "dropped",
	})
	assert.Equal(t, map[string]string{
		"runs":         "10",
		"mu":           "0.5",
		"id":           "(set)",
		"seed":         "(set)",
		"_param_count": "5",
	}, got)
	assert.Nil(t, sanitizeToolParams(nil))
}

func TestAuditTool_RecordsError(t *testing.T) {
	s := newTestServer(t)

	s.auditTool("opynions_show_sweep", time.Now(), errors.New("sweep not found"), map[string]string{"id": "(set)"})
	require.NoError(t, s.auditLogger.Close())

	entries := readAudit(t, s.root)
	require.Len(t, entries, 1)
	assert.Equal(t, "error", entries[0].Status)
	assert.Equal(t, "sweep not found", entries[0].Error)
}
