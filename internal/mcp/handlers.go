package mcp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/opynions/internal/analysis"
	"github.com/nvandessel/opynions/internal/constants"
	"github.com/nvandessel/opynions/internal/pathutil"
	"github.com/nvandessel/opynions/internal/ratelimit"
	"github.com/nvandessel/opynions/internal/simulation"
	"github.com/nvandessel/opynions/internal/snapshot"
	"github.com/nvandessel/opynions/internal/store"
	"github.com/nvandessel/opynions/internal/sweep"
)

// ErrToolLimit is returned when a tool call asks for more work than a
// single MCP call may do.
var ErrToolLimit = errors.New("request exceeds tool limits")

const (
	recentSweepsURI   = "opynions://sweeps/recent"
	sweepTemplateURI  = "opynions://sweeps/{id}"
	sweepResourceBase = "opynions://sweeps/"
	recentSweepsLimit = 10
)

// registerTools registers all opynions MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolSimulate,
		Description: "Run one opinion-dynamics simulation on a scale-free network and return metrics of the initial and final network",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolSweep,
		Description: "Run a parallel parameter sweep (epsilon x mu grid, or epsilon axis at fixed mu), store it, and return one metric as a matrix",
	}, s.handleSweep)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolListSweeps,
		Description: "List stored sweeps, newest first",
	}, s.handleListSweeps)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolShowSweep,
		Description: "Show a stored sweep by id or id prefix, with one metric as a matrix",
	}, s.handleShowSweep)

	return nil
}

// registerResources registers read-only views of stored sweeps.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         recentSweepsURI,
		Name:        "opynions-recent-sweeps",
		Description: "The most recent stored parameter sweeps with their settings and failure counts.",
		MIMEType:    "text/markdown",
	}, s.handleRecentSweepsResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: sweepTemplateURI,
		Name:        "opynions-sweep",
		Description: "Variance matrix and failures of one stored sweep.",
		MIMEType:    "text/markdown",
	}, s.handleSweepResource)

	return nil
}

func (s *Server) handleRecentSweepsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	infos, err := s.store.ListSweeps(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sweeps: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Recent Sweeps\n\n")
	if len(infos) == 0 {
		sb.WriteString("No sweeps stored yet. Run one with `" + ratelimit.ToolSweep + "`.\n")
	}
	for i, info := range infos {
		if i == recentSweepsLimit {
			fmt.Fprintf(&sb, "\n_%d older sweeps omitted._\n", len(infos)-recentSweepsLimit)
			break
		}
		fmt.Fprintf(&sb, "- `%s` %s: %d points (%d failed), N=%d T=%d m=%d runs=%d, %s\n",
			shortID(info.ID), info.Kind, info.Points, info.Failed,
			info.Settings.Nodes, info.Settings.Steps, info.Settings.Attachment, info.Settings.Runs,
			info.Started.Format(time.RFC3339))
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: recentSweepsURI, MIMEType: "text/markdown", Text: sb.String()},
		},
	}, nil
}

func (s *Server) handleSweepResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, sweepResourceBase) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	id := strings.TrimPrefix(uri, sweepResourceBase)
	if id == "" {
		return nil, fmt.Errorf("sweep ID is required")
	}

	report, err := s.store.LoadReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load sweep %s: %w", id, err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: uri, MIMEType: "text/markdown", Text: renderReport(report, analysis.FieldVariance)},
		},
	}, nil
}

// renderReport formats one field of a report as a markdown table with a
// row per mu and a column per epsilon.
func renderReport(r *sweep.Report, field string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Sweep %s\n\n", r.ID)
	fmt.Fprintf(&sb, "%s sweep, N=%d T=%d m=%d runs=%d seed=%d\n\n",
		r.Kind, r.Settings.Nodes, r.Settings.Steps, r.Settings.Attachment, r.Settings.Runs, r.Seed)

	fmt.Fprintf(&sb, "| mu \\ epsilon (%s) |", field)
	for _, eps := range r.Epsilons {
		fmt.Fprintf(&sb, " %.3g |", eps)
	}
	sb.WriteString("\n|---|")
	for range r.Epsilons {
		sb.WriteString("---|")
	}
	sb.WriteString("\n")
	for row, values := range r.Matrix(field) {
		fmt.Fprintf(&sb, "| %.3g |", r.Mus[row])
		for _, v := range values {
			if math.IsNaN(v) {
				sb.WriteString(" - |")
			} else {
				fmt.Fprintf(&sb, " %.4g |", v)
			}
		}
		sb.WriteString("\n")
	}

	if failures := r.Failures(); len(failures) > 0 {
		sb.WriteString("\n## Failures\n\n")
		for _, f := range failures {
			fmt.Fprintf(&sb, "- mu=%v epsilon=%v: %s\n", f.Point.Mu, f.Point.Epsilon, f.Error)
		}
	}
	return sb.String()
}

// handleSimulate implements the opynions_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolSimulate, start, retErr, sanitizeToolParams(map[string]any{
			"nodes": args.Nodes, "steps": args.Steps, "attachment": args.Attachment,
			"mu": floatParam(args.Mu), "epsilon": floatParam(args.Epsilon),
			"seed": args.Seed, "metrics": args.Metrics,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolSimulate); err != nil {
		return nil, SimulateOutput{}, err
	}

	sim := s.settings.Simulation
	p := simulation.Params{
		Nodes:      orInt(args.Nodes, sim.Nodes),
		Steps:      orInt(args.Steps, sim.Steps),
		Attachment: orInt(args.Attachment, sim.Attachment),
		Mu:         orFloat(args.Mu, sim.Mu),
		Epsilon:    orFloat(args.Epsilon, sim.Epsilon),
	}
	if err := checkSize(p.Nodes, p.Steps); err != nil {
		return nil, SimulateOutput{}, err
	}
	if err := p.Validate(); err != nil {
		return nil, SimulateOutput{}, err
	}

	analyzer := analysis.Standard()
	if len(args.Metrics) > 0 {
		selected, err := analysis.Select(args.Metrics...)
		if err != nil {
			return nil, SimulateOutput{}, err
		}
		analyzer = selected
	}

	rng, seed := simulation.NewRand(args.Seed)
	res, err := s.engine.Run(ctx, p, rng)
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("simulation failed: %w", err)
	}

	initial, err := analyzer.Analyze(res.Initial)
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("failed to analyze initial network: %w", err)
	}
	final, err := analyzer.Analyze(res.Final)
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("failed to analyze final network: %w", err)
	}

	s.logger.Info("simulation finished", "nodes", p.Nodes, "steps", p.Steps, "mu", p.Mu, "epsilon", p.Epsilon, "seed", seed)

	var snapshotPath string
	if args.Snapshot {
		snapshotPath, err = s.saveSnapshot(res, p, seed)
		if err != nil {
			return nil, SimulateOutput{}, err
		}
	}

	return nil, SimulateOutput{
		Nodes:        p.Nodes,
		Steps:        p.Steps,
		Attachment:   p.Attachment,
		Mu:           p.Mu,
		Epsilon:      p.Epsilon,
		Seed:         seed,
		Initial:      initial,
		Final:        final,
		Interactions: res.Totals.Interactions,
		Rewires:      res.Totals.Rewires,
		Skipped:      res.Totals.Skipped,
		SnapshotPath: snapshotPath,
	}, nil
}

// checkSize rejects networks and run lengths too large for one tool call.
func checkSize(nodes, steps int) error {
	if nodes > constants.MaxToolNodes {
		return fmt.Errorf("nodes %d exceeds %d: %w", nodes, constants.MaxToolNodes, ErrToolLimit)
	}
	if steps > constants.MaxToolSteps {
		return fmt.Errorf("steps %d exceeds %d: %w", steps, constants.MaxToolSteps, ErrToolLimit)
	}
	return nil
}

// saveSnapshot writes the final network into the project snapshot directory.
func (s *Server) saveSnapshot(res *simulation.Result, p simulation.Params, seed uint64) (string, error) {
	path := snapshot.GeneratePath(snapshot.Dir(s.root), time.Now())
	allowed, err := pathutil.AllowedSnapshotDirs(s.root)
	if err != nil {
		return "", err
	}
	if err := pathutil.ValidatePath(path, allowed); err != nil {
		return "", err
	}
	if err := snapshot.Write(path, snapshot.FromGraph(res.Final, p, seed, "final")); err != nil {
		return "", fmt.Errorf("failed to save snapshot %s: %w", pathutil.RedactPath(path), err)
	}
	return path, nil
}

// handleSweep implements the opynions_sweep tool.
func (s *Server) handleSweep(ctx context.Context, req *sdk.CallToolRequest, args SweepInput) (_ *sdk.CallToolResult, _ SweepOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolSweep, start, retErr, sanitizeToolParams(map[string]any{
			"kind": args.Kind, "nodes": args.Nodes, "steps": args.Steps, "attachment": args.Attachment,
			"runs": args.Runs, "workers": args.Workers, "points": fmt.Sprintf("%dx%d", args.MuPoints, args.EpsilonPoints),
			"mu": floatParam(args.Mu), "field": args.Field, "seed": args.Seed,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolSweep); err != nil {
		return nil, SweepOutput{}, err
	}

	field, err := resolveField(args.Field)
	if err != nil {
		return nil, SweepOutput{}, err
	}

	kind := sweep.Kind(args.Kind)
	if kind == "" {
		kind = sweep.KindGrid
	}
	if kind != sweep.KindGrid && kind != sweep.KindAxis {
		return nil, SweepOutput{}, fmt.Errorf("kind must be %q or %q, got %q", sweep.KindGrid, sweep.KindAxis, args.Kind)
	}

	cfg := s.settings
	settings := sweep.Settings{
		Nodes:      orInt(args.Nodes, cfg.Simulation.Nodes),
		Steps:      orInt(args.Steps, cfg.Simulation.Steps),
		Attachment: orInt(args.Attachment, cfg.Simulation.Attachment),
		Runs:       orInt(args.Runs, cfg.Sweep.Runs),
	}
	epsPoints := orInt(args.EpsilonPoints, cfg.Sweep.Epsilon.Points)
	muPoints := 1
	if kind == sweep.KindGrid {
		muPoints = orInt(args.MuPoints, cfg.Sweep.Mu.Points)
	}

	// Limits come before Linspace allocates anything.
	if err := checkSize(settings.Nodes, settings.Steps); err != nil {
		return nil, SweepOutput{}, err
	}
	switch {
	case settings.Runs > constants.MaxToolRuns:
		return nil, SweepOutput{}, fmt.Errorf("runs %d exceeds %d: %w", settings.Runs, constants.MaxToolRuns, ErrToolLimit)
	case epsPoints > constants.MaxToolPoints, muPoints > constants.MaxToolPoints,
		epsPoints*muPoints > constants.MaxToolPoints:
		return nil, SweepOutput{}, fmt.Errorf("%d x %d points exceeds %d: %w", muPoints, epsPoints, constants.MaxToolPoints, ErrToolLimit)
	}

	epsilons, err := sweep.Linspace(
		orFloat(args.EpsilonStart, cfg.Sweep.Epsilon.Start),
		orFloat(args.EpsilonStop, cfg.Sweep.Epsilon.Stop),
		epsPoints)
	if err != nil {
		return nil, SweepOutput{}, fmt.Errorf("epsilon range: %w", err)
	}

	mus := []float64{orFloat(args.Mu, cfg.Simulation.Mu)}
	if kind == sweep.KindGrid {
		mus, err = sweep.Linspace(
			orFloat(args.MuStart, cfg.Sweep.Mu.Start),
			orFloat(args.MuStop, cfg.Sweep.Mu.Stop),
			muPoints)
		if err != nil {
			return nil, SweepOutput{}, fmt.Errorf("mu range: %w", err)
		}
	}

	orch, err := sweep.New(settings,
		sweep.WithRunner(s.engine),
		sweep.WithWorkers(orInt(args.Workers, cfg.Sweep.Workers)),
		sweep.WithSeed(orUint(args.Seed, cfg.Sweep.Seed)))
	if err != nil {
		return nil, SweepOutput{}, err
	}
	orch.SetLogger(s.logger, s.events)

	var report *sweep.Report
	if kind == sweep.KindAxis {
		report, err = orch.Axis(ctx, epsilons, mus[0])
	} else {
		report, err = orch.Grid(ctx, epsilons, mus)
	}
	if err != nil {
		return nil, SweepOutput{}, fmt.Errorf("sweep failed: %w", err)
	}

	if _, err := s.store.SaveReport(ctx, report); err != nil {
		return nil, SweepOutput{}, fmt.Errorf("failed to save sweep: %w", err)
	}

	out := sweepOutput(report, field)
	out.Message = fmt.Sprintf("Sweep %s finished: %d of %d points succeeded", shortID(report.ID), report.Succeeded(), len(report.Points))
	return nil, out, nil
}

// handleListSweeps implements the opynions_list_sweeps tool.
func (s *Server) handleListSweeps(ctx context.Context, req *sdk.CallToolRequest, args ListSweepsInput) (_ *sdk.CallToolResult, _ ListSweepsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolListSweeps, start, retErr, sanitizeToolParams(map[string]any{
			"limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolListSweeps); err != nil {
		return nil, ListSweepsOutput{}, err
	}

	infos, err := s.store.ListSweeps(ctx)
	if err != nil {
		return nil, ListSweepsOutput{}, fmt.Errorf("failed to list sweeps: %w", err)
	}
	if args.Limit > 0 && len(infos) > args.Limit {
		infos = infos[:args.Limit]
	}
	if infos == nil {
		infos = []store.SweepInfo{}
	}
	return nil, ListSweepsOutput{Sweeps: infos, Count: len(infos)}, nil
}

// handleShowSweep implements the opynions_show_sweep tool.
func (s *Server) handleShowSweep(ctx context.Context, req *sdk.CallToolRequest, args ShowSweepInput) (_ *sdk.CallToolResult, _ SweepOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolShowSweep, start, retErr, sanitizeToolParams(map[string]any{
			"id": args.ID, "field": args.Field,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolShowSweep); err != nil {
		return nil, SweepOutput{}, err
	}

	if strings.TrimSpace(args.ID) == "" {
		return nil, SweepOutput{}, fmt.Errorf("id is required")
	}
	field, err := resolveField(args.Field)
	if err != nil {
		return nil, SweepOutput{}, err
	}

	report, err := s.store.LoadReport(ctx, args.ID)
	if err != nil {
		return nil, SweepOutput{}, err
	}

	out := sweepOutput(report, field)
	out.Message = fmt.Sprintf("Sweep %s: %d of %d points succeeded", shortID(report.ID), report.Succeeded(), len(report.Points))
	return nil, out, nil
}

func sweepOutput(r *sweep.Report, field string) SweepOutput {
	matrix := make([][]*float64, 0, r.Rows())
	for _, values := range r.Matrix(field) {
		row := make([]*float64, len(values))
		for i, v := range values {
			if !math.IsNaN(v) {
				row[i] = &v
			}
		}
		matrix = append(matrix, row)
	}

	var failures []FailureItem
	for _, f := range r.Failures() {
		failures = append(failures, FailureItem{Mu: f.Point.Mu, Epsilon: f.Point.Epsilon, Error: f.Error})
	}

	return SweepOutput{
		ID:       r.ID,
		Kind:     string(r.Kind),
		Seed:     r.Seed,
		Runs:     r.Settings.Runs,
		Points:   len(r.Points),
		Failed:   len(failures),
		Fields:   r.Fields(),
		Field:    field,
		Epsilons: r.Epsilons,
		Mus:      r.Mus,
		Matrix:   matrix,
		Failures: failures,
		Started:  r.Started,
		Finished: r.Finished,
	}
}

func resolveField(field string) (string, error) {
	if field == "" {
		return analysis.FieldVariance, nil
	}
	if !slices.Contains(analysis.FieldNames(), field) {
		return "", fmt.Errorf("field %q (known: %v): %w", field, analysis.FieldNames(), analysis.ErrUnknownField)
	}
	return field, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orUint(v, def uint64) uint64 {
	if v == 0 {
		return def
	}
	return v
}

func orFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// floatParam renders an optional float for the audit log.
func floatParam(v *float64) any {
	if v == nil {
		return "default"
	}
	return *v
}
