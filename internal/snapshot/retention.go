package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Info describes a snapshot file on disk.
type Info struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Header    *Header   `json:"header,omitempty"`
}

// Run returns the key of the simulation that produced the snapshot. The
// initial and final snapshots of one run share seed and parameters, so
// they share a key; so do replays of the same seed, which are identical.
// Snapshots without a readable header are their own run.
func (i Info) Run() string {
	if i.Header == nil {
		return "?" + i.Path
	}
	p := i.Header.Params
	return fmt.Sprintf("%d|%d|%d|%d|%g|%g", i.Header.Seed, p.Nodes, p.Steps, p.Attachment, p.Mu, p.Epsilon)
}

// RunGroup is every snapshot of one run. Latest is its newest CreatedAt.
type RunGroup struct {
	Key       string
	Latest    time.Time
	Snapshots []Info
}

// GroupRuns groups snapshots by Run, newest run first. Unreadable
// snapshots are left out and returned separately.
func GroupRuns(snapshots []Info) (runs []RunGroup, unreadable []Info) {
	index := map[string]int{}
	for _, s := range snapshots {
		if s.Header == nil {
			unreadable = append(unreadable, s)
			continue
		}
		key := s.Run()
		i, ok := index[key]
		if !ok {
			i = len(runs)
			index[key] = i
			runs = append(runs, RunGroup{Key: key})
		}
		g := &runs[i]
		g.Snapshots = append(g.Snapshots, s)
		if s.CreatedAt.After(g.Latest) {
			g.Latest = s.CreatedAt
		}
	}
	sort.SliceStable(runs, func(a, b int) bool { return runs[a].Latest.After(runs[b].Latest) })
	return runs, unreadable
}

// RetentionPolicy picks the runs to keep from runs ordered newest first.
// Snapshots of one run are always kept or deleted together.
type RetentionPolicy interface {
	KeepRuns(runs []RunGroup) map[string]bool
}

// CountPolicy keeps the Runs newest runs.
type CountPolicy struct {
	Runs int
}

// KeepRuns implements RetentionPolicy.
func (p *CountPolicy) KeepRuns(runs []RunGroup) map[string]bool {
	keep := map[string]bool{}
	for _, r := range runs[:min(p.Runs, len(runs))] {
		keep[r.Key] = true
	}
	return keep
}

// AgePolicy keeps runs whose newest snapshot is younger than MaxAge. Now
// defaults to time.Now.
type AgePolicy struct {
	MaxAge time.Duration
	Now    func() time.Time
}

// KeepRuns implements RetentionPolicy.
func (p *AgePolicy) KeepRuns(runs []RunGroup) map[string]bool {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)
	keep := map[string]bool{}
	for _, r := range runs {
		if r.Latest.After(cutoff) {
			keep[r.Key] = true
		}
	}
	return keep
}

// AnyPolicy keeps a run if any of its policies keeps it.
type AnyPolicy []RetentionPolicy

// KeepRuns implements RetentionPolicy.
func (p AnyPolicy) KeepRuns(runs []RunGroup) map[string]bool {
	keep := map[string]bool{}
	for _, policy := range p {
		for key := range policy.KeepRuns(runs) {
			keep[key] = true
		}
	}
	return keep
}

func isSnapshotFile(name string) bool {
	return strings.HasPrefix(name, "snapshot-") && strings.HasSuffix(name, ".snap")
}

// List scans dir for snapshot files and returns them sorted newest-first.
// Files whose header cannot be read are listed with a nil Header.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}

	var out []Info
	for _, e := range entries {
		if e.IsDir() || !isSnapshotFile(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		info := Info{
			Path:      filepath.Join(dir, e.Name()),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		}
		if h, err := ReadHeader(info.Path); err == nil {
			info.Header = h
			info.CreatedAt = h.CreatedAt
		}
		out = append(out, info)
	}

	// Names embed the timestamp.
	sort.Slice(out, func(i, j int) bool {
		return filepath.Base(out[i].Path) > filepath.Base(out[j].Path)
	})
	return out, nil
}

// ApplyRetention deletes every snapshot whose run the policy does not
// keep, plus every snapshot whose header cannot be read.
func ApplyRetention(dir string, policy RetentionPolicy) (deleted []string, err error) {
	snapshots, err := List(dir)
	if err != nil {
		return nil, err
	}
	runs, unreadable := GroupRuns(snapshots)
	keep := policy.KeepRuns(runs)

	doomed := unreadable
	for _, r := range runs {
		if !keep[r.Key] {
			doomed = append(doomed, r.Snapshots...)
		}
	}
	for _, s := range doomed {
		if err := os.Remove(s.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(s.Path), err)
		}
		deleted = append(deleted, s.Path)
	}
	return deleted, nil
}

// ParseDuration parses duration strings like "30d", "2w", "720h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch suffix {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", string(suffix), s)
	}
}
