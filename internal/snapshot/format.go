// Package snapshot saves simulated networks to disk and reads them back.
//
// A snapshot file is a plain JSON header line followed by a gzip-compressed
// JSON payload. The header carries a sha256 checksum of the compressed
// bytes so files can be verified without decompressing them.
package snapshot

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/opynions/internal/constants"
	"github.com/nvandessel/opynions/internal/graph"
	"github.com/nvandessel/opynions/internal/simulation"
)

// FormatV1 is the only snapshot format version.
const FormatV1 = 1

// MaxDecompressedSize is the maximum allowed size of a decompressed payload (200MB).
const MaxDecompressedSize = 200 * 1024 * 1024

var (
	// ErrChecksum is returned when a payload does not match its header.
	ErrChecksum = errors.New("snapshot checksum mismatch")

	// ErrFormat is returned for files that are not snapshots.
	ErrFormat = errors.New("unrecognized snapshot format")
)

// Header is the plain-text first line of a snapshot file.
type Header struct {
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	Checksum  string            `json:"checksum"`
	NodeCount int               `json:"node_count"`
	EdgeCount int               `json:"edge_count"`
	Params    simulation.Params `json:"params"`
	Seed      uint64            `json:"seed"`
}

// Snapshot is the payload: one network state and how it was produced.
type Snapshot struct {
	CreatedAt time.Time         `json:"created_at"`
	Params    simulation.Params `json:"params"`
	Seed      uint64            `json:"seed"`
	Stage     string            `json:"stage"` // "initial" or "final"
	Opinions  []float64         `json:"opinions"`
	Edges     []graph.Edge      `json:"edges"`
}

// FromGraph captures g.
func FromGraph(g *graph.Graph, p simulation.Params, seed uint64, stage string) *Snapshot {
	return &Snapshot{
		CreatedAt: time.Now().UTC(),
		Params:    p,
		Seed:      seed,
		Stage:     stage,
		Opinions:  g.Opinions(),
		Edges:     g.Edges(),
	}
}

// Graph rebuilds the captured network.
func (s *Snapshot) Graph() (*graph.Graph, error) {
	g, err := graph.FromEdges(len(s.Opinions), s.Edges)
	if err != nil {
		return nil, fmt.Errorf("rebuilding graph: %w", err)
	}
	for i, v := range s.Opinions {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("node %d opinion %v outside [0, 1]", i, v)
		}
		g.SetOpinion(i, v)
	}
	return g, nil
}

// Dir returns <projectRoot>/.opynions/snapshots.
func Dir(projectRoot string) string {
	return filepath.Join(projectRoot, constants.DirName, constants.SnapshotDir)
}

// GeneratePath returns a timestamped snapshot file name in dir. Names sort
// chronologically.
func GeneratePath(dir string, now time.Time) string {
	return filepath.Join(dir, "snapshot-"+now.UTC().Format("20060102-150405.000000")+".snap")
}

// Write writes s to path as header line + gzip-compressed payload.
func Write(path string, s *Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	header := Header{
		Version:   FormatV1,
		CreatedAt: s.CreatedAt,
		Checksum:  checksum(compressed.Bytes()),
		NodeCount: len(s.Opinions),
		EdgeCount: len(s.Edges),
		Params:    s.Params,
		Seed:      s.Seed,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	w.Write(headerBytes)
	w.WriteByte('\n')
	w.Write(compressed.Bytes())
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return f.Close()
}

// open reads the header and the raw compressed payload of path.
func open(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := readHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	if got := checksum(compressed); got != header.Checksum {
		return nil, nil, fmt.Errorf("expected %s, got %s: %w", header.Checksum, got, ErrChecksum)
	}
	return header, compressed, nil
}

func readHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %v: %w", err, ErrFormat)
	}
	if header.Version != FormatV1 {
		return nil, fmt.Errorf("version %d: %w", header.Version, ErrFormat)
	}
	return &header, nil
}

// Read reads path, verifies its checksum and decodes the payload.
func Read(path string) (*Snapshot, error) {
	_, compressed, err := open(path)
	if err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	var s Snapshot
	if err := json.Unmarshal(decompressed, &s); err != nil {
		return nil, fmt.Errorf("parsing snapshot data: %w", err)
	}
	return &s, nil
}

// ReadHeader reads only the header line of path.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return readHeader(bufio.NewReader(f))
}

// Verify checks the integrity of path without decompressing it.
func Verify(path string) (*Header, error) {
	header, _, err := open(path)
	return header, err
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
