package mcp

import (
	"time"

	"github.com/nvandessel/opynions/internal/store"
)

// SimulateInput defines the input for the opynions_simulate tool. Zero
// values fall back to the configured simulation defaults.
type SimulateInput struct {
	Nodes      int      `json:"nodes,omitempty" jsonschema:"Number of agents (default from config)"`
	Steps      int      `json:"steps,omitempty" jsonschema:"Number of sweeps over all agents, at most 1000"`
	Attachment int      `json:"attachment,omitempty" jsonschema:"Barabasi-Albert attachment parameter m"`
	Mu         *float64 `json:"mu,omitempty" jsonschema:"Convergence parameter in [0, 1]"`
	Epsilon    *float64 `json:"epsilon,omitempty" jsonschema:"Tolerance in [0, 1]"`
	Seed       uint64   `json:"seed,omitempty" jsonschema:"Random seed; 0 picks one"`
	Metrics    []string `json:"metrics,omitempty" jsonschema:"Metric names to compute (default: all)"`
	Snapshot   bool     `json:"snapshot,omitempty" jsonschema:"Save the final network under .opynions/snapshots"`
}

// SimulateOutput defines the output for the opynions_simulate tool.
type SimulateOutput struct {
	Nodes        int                `json:"nodes"`
	Steps        int                `json:"steps"`
	Attachment   int                `json:"attachment"`
	Mu           float64            `json:"mu"`
	Epsilon      float64            `json:"epsilon"`
	Seed         uint64             `json:"seed"`
	Initial      map[string]float64 `json:"initial" jsonschema:"Metrics of the initial network"`
	Final        map[string]float64 `json:"final" jsonschema:"Metrics of the final network"`
	Interactions int                `json:"interactions"`
	Rewires      int                `json:"rewires"`
	Skipped      int                `json:"skipped" jsonschema:"Isolated-node visits that did nothing"`
	SnapshotPath string             `json:"snapshot_path,omitempty"`
}

// SweepInput defines the input for the opynions_sweep tool.
type SweepInput struct {
	Kind          string   `json:"kind,omitempty" jsonschema:"grid (epsilon x mu) or axis (epsilon at fixed mu); default grid"`
	EpsilonStart  *float64 `json:"epsilon_start,omitempty" jsonschema:"First epsilon value"`
	EpsilonStop   *float64 `json:"epsilon_stop,omitempty" jsonschema:"Last epsilon value"`
	EpsilonPoints int      `json:"epsilon_points,omitempty" jsonschema:"Number of epsilon values; mu_points times epsilon_points is capped at 441"`
	MuStart       *float64 `json:"mu_start,omitempty" jsonschema:"First mu value (grid)"`
	MuStop        *float64 `json:"mu_stop,omitempty" jsonschema:"Last mu value (grid)"`
	MuPoints      int      `json:"mu_points,omitempty" jsonschema:"Number of mu values (grid)"`
	Mu            *float64 `json:"mu,omitempty" jsonschema:"Fixed mu (axis)"`
	Runs          int      `json:"runs,omitempty" jsonschema:"Independent runs averaged per point"`
	Nodes         int      `json:"nodes,omitempty" jsonschema:"Number of agents"`
	Steps         int      `json:"steps,omitempty" jsonschema:"Sweeps per run, at most 1000"`
	Attachment    int      `json:"attachment,omitempty" jsonschema:"Barabasi-Albert attachment parameter m"`
	Workers       int      `json:"workers,omitempty" jsonschema:"Worker pool size; 0 uses every CPU"`
	Seed          uint64   `json:"seed,omitempty" jsonschema:"Base seed; 0 picks one"`
	Field         string   `json:"field,omitempty" jsonschema:"Metric returned as a matrix (default variance)"`
}

// SweepOutput defines the output for the opynions_sweep and
// opynions_show_sweep tools.
type SweepOutput struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Seed     uint64        `json:"seed"`
	Runs     int           `json:"runs"`
	Points   int           `json:"points"`
	Failed   int           `json:"failed"`
	Fields   []string      `json:"fields"`
	Field    string        `json:"field" jsonschema:"Metric shown in matrix"`
	Epsilons []float64     `json:"epsilons" jsonschema:"Column values"`
	Mus      []float64     `json:"mus" jsonschema:"Row values"`
	Matrix   [][]*float64  `json:"matrix" jsonschema:"Mean of field per (mu row, epsilon column); null for failed points"`
	Failures []FailureItem `json:"failures,omitempty"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Message  string        `json:"message"`
}

// FailureItem describes one failed point.
type FailureItem struct {
	Mu      float64 `json:"mu"`
	Epsilon float64 `json:"epsilon"`
	Error   string  `json:"error"`
}

// ListSweepsInput defines the input for the opynions_list_sweeps tool.
type ListSweepsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of sweeps to return (newest first)"`
}

// ListSweepsOutput defines the output for the opynions_list_sweeps tool.
type ListSweepsOutput struct {
	Sweeps []store.SweepInfo `json:"sweeps"`
	Count  int               `json:"count"`
}

// ShowSweepInput defines the input for the opynions_show_sweep tool.
type ShowSweepInput struct {
	ID    string `json:"id" jsonschema:"Sweep id or unique id prefix"`
	Field string `json:"field,omitempty" jsonschema:"Metric returned as a matrix (default variance)"`
}
