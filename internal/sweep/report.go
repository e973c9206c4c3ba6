package sweep

import (
	"math"
	"time"

	"github.com/nvandessel/opynions/internal/analysis"
)

// Kind distinguishes the two sweep shapes.
type Kind string

const (
	// KindGrid is the epsilon x mu cross product.
	KindGrid Kind = "grid"
	// KindAxis varies epsilon at a fixed mu.
	KindAxis Kind = "axis"
)

// Settings are the simulation settings shared by every point of a sweep.
type Settings struct {
	Nodes      int `json:"nodes" yaml:"nodes"`
	Steps      int `json:"steps" yaml:"steps"`
	Attachment int `json:"attachment" yaml:"attachment"`
	Runs       int `json:"runs" yaml:"runs"`
}

// Point is one (epsilon, mu) configuration.
type Point struct {
	Epsilon    float64 `json:"epsilon"`
	Mu         float64 `json:"mu"`
	Attachment int     `json:"attachment,omitempty"`
}

// PointResult is the aggregated outcome of all runs at one point.
type PointResult struct {
	Point   Point            `json:"point"`
	Row     int              `json:"row"` // index into Report.Mus
	Col     int              `json:"col"` // index into Report.Epsilons
	Summary analysis.Summary `json:"summary"`

	// Err is set when at least one run at this point failed; Summary is
	// then empty. Error carries the same message for persistence.
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
	FailedRuns int    `json:"failed_runs,omitempty"`
}

// Failed reports whether the point has no usable result.
func (p PointResult) Failed() bool { return p.Err != nil || p.Error != "" }

// Report is the collected outcome of a sweep. Points are stored row-major:
// row r holds Mus[r], column c holds Epsilons[c].
type Report struct {
	ID       string        `json:"id,omitempty"`
	Kind     Kind          `json:"kind"`
	Settings Settings      `json:"settings"`
	Seed     uint64        `json:"seed"`
	Epsilons []float64     `json:"epsilons"`
	Mus      []float64     `json:"mus"`
	Points   []PointResult `json:"points"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
}

// Rows returns the number of mu values.
func (r *Report) Rows() int { return len(r.Mus) }

// Cols returns the number of epsilon values.
func (r *Report) Cols() int { return len(r.Epsilons) }

// At returns the result at (row, col).
func (r *Report) At(row, col int) *PointResult {
	return &r.Points[row*r.Cols()+col]
}

// Lookup finds the point with exactly the given parameter values.
func (r *Report) Lookup(mu, epsilon float64) (*PointResult, bool) {
	for i := range r.Points {
		p := &r.Points[i]
		if p.Point.Mu == mu && p.Point.Epsilon == epsilon {
			return p, true
		}
	}
	return nil, false
}

// Matrix returns the mean of field as a Rows x Cols matrix. Failed points
// and points missing the field are NaN.
func (r *Report) Matrix(field string) [][]float64 {
	m := make([][]float64, r.Rows())
	for row := range m {
		m[row] = make([]float64, r.Cols())
		for col := range m[row] {
			m[row][col] = r.value(r.At(row, col), field)
		}
	}
	return m
}

// Series returns the mean of field for row 0 in epsilon order, which is
// the whole result of an axis sweep.
func (r *Report) Series(field string) []float64 {
	if r.Rows() == 0 {
		return nil
	}
	return r.Matrix(field)[0]
}

// Failures returns every failed point in row-major order.
func (r *Report) Failures() []PointResult {
	var out []PointResult
	for _, p := range r.Points {
		if p.Failed() {
			out = append(out, p)
		}
	}
	return out
}

// Succeeded returns the number of points with a result.
func (r *Report) Succeeded() int {
	return len(r.Points) - len(r.Failures())
}

// Fields returns the sorted metric names present in any point.
func (r *Report) Fields() []string {
	recs := make([]analysis.Record, 0, len(r.Points))
	for _, p := range r.Points {
		recs = append(recs, p.Summary.Mean)
	}
	return analysis.Fields(recs)
}

func (r *Report) value(p *PointResult, field string) float64 {
	if p.Failed() {
		return math.NaN()
	}
	v, ok := p.Summary.Mean[field]
	if !ok {
		return math.NaN()
	}
	return v
}
