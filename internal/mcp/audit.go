package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/opynions/internal/constants"
)

// AuditFile is the tool-call log inside the .opynions directory.
const AuditFile = "audit.jsonl"

// AuditEntry is one line of the audit log.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends entries to <root>/.opynions/audit.jsonl. A nil
// *AuditLogger discards everything, so callers never need to check.
type AuditLogger struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewAuditLogger opens the log under root. Failure to open is not fatal
// for the server: it warns on stderr and returns nil.
func NewAuditLogger(root string) *AuditLogger {
	dir := filepath.Join(root, constants.DirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit log disabled: %v\n", err)
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, AuditFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit log disabled: %v\n", err)
		return nil
	}
	return &AuditLogger{f: f, enc: json.NewEncoder(f)}
}

// Log writes entry as one line.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f != nil {
		_ = a.enc.Encode(entry)
	}
}

// Close is idempotent.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	f := a.f
	a.f, a.enc = nil, nil
	return f.Close()
}

// auditedValues are logged verbatim; auditedPresence only as "(set)".
var (
	auditedValues = map[string]bool{
		"kind": true, "nodes": true, "steps": true, "attachment": true,
		"mu": true, "epsilon": true, "runs": true, "workers": true,
		"points": true, "field": true, "limit": true,
	}
	auditedPresence = map[string]bool{"id": true, "seed": true, "metrics": true}
)

// sanitizeToolParams reduces call arguments to what the audit log keeps.
// Keys outside both sets are dropped; "_param_count" counts all of them.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}
	out := map[string]string{"_param_count": strconv.Itoa(len(params))}
	for k, v := range params {
		switch {
		case auditedValues[k]:
			out[k] = fmt.Sprint(v)
		case auditedPresence[k]:
			out[k] = "(set)"
		}
	}
	return out
}

func (s *Server) auditTool(tool string, start time.Time, err error, params map[string]string) {
	elapsed := time.Since(start)
	entry := AuditEntry{
		Timestamp:  start,
		Tool:       tool,
		DurationMs: elapsed.Milliseconds(),
		Status:     "success",
		Params:     params,
	}
	if err != nil {
		entry.Status, entry.Error = "error", err.Error()
	}
	s.auditLogger.Log(entry)
	s.logger.Debug("tool call", "tool", tool, "status", entry.Status, "duration", elapsed)
}
