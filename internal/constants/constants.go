// Package constants provides named defaults shared by the CLI, the config
// layer and the MCP server.
package constants

// Simulation defaults. These reproduce the reference experiments: a
// 200-agent network with attachment 2, updated for 100 sweeps.
const (
	// DefaultNodes is the number of agents in a simulated network.
	DefaultNodes = 200

	// DefaultSteps is the number of sweeps per run.
	DefaultSteps = 100

	// DefaultAttachment is the Barabási–Albert attachment parameter m.
	DefaultAttachment = 2

	// DefaultMu is the convergence parameter used for epsilon axis sweeps.
	DefaultMu = 0.48

	// DefaultEpsilon is the tolerance used by a single simulate call.
	DefaultEpsilon = 0.2
)

// Sweep defaults.
const (
	// DefaultRuns is the number of independent runs averaged per point.
	DefaultRuns = 10

	// DefaultGridPoints is the number of values per axis of a grid sweep.
	DefaultGridPoints = 11

	// DefaultRangeStart is the first value of a default parameter axis.
	DefaultRangeStart = 0.0

	// DefaultRangeStop is the last value of a default parameter axis.
	DefaultRangeStop = 1.0
)

// Workspace layout.
const (
	// DirName is the per-project and per-user state directory.
	DirName = ".opynions"

	// ConfigFile is the YAML config file inside DirName.
	ConfigFile = "config.yaml"

	// DatabaseFile is the SQLite results database inside DirName.
	DatabaseFile = "opynions.db"

	// SnapshotDir holds graph snapshots written by simulate --save.
	SnapshotDir = "snapshots"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "OPYNIONS_"
)

// MCP server limits.
const (
	// MaxToolRuns caps runs per point for a single tool call.
	MaxToolRuns = 100

	// MaxToolPoints caps the number of grid points for a single tool call.
	MaxToolPoints = 441

	// MaxToolNodes caps the network size for a single tool call.
	MaxToolNodes = 5000

	// MaxToolSteps caps sweeps per run for a single tool call.
	MaxToolSteps = 1000
)
