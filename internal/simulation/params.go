package simulation

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is returned when run parameters fail validation.
var ErrInvalidParams = errors.New("invalid simulation parameters")

// Params configures a single simulation run.
type Params struct {
	// Nodes is the number of agents (N). Must exceed 1.
	Nodes int `json:"nodes" yaml:"nodes"`

	// Steps is the number of sweeps (T). Must exceed 1.
	Steps int `json:"steps" yaml:"steps"`

	// Mu is the assimilation rate in [0, 1].
	Mu float64 `json:"mu" yaml:"mu"`

	// Epsilon is the tolerance threshold in [0, 1].
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`

	// Attachment is the preferential attachment width (m) of the initial
	// graph. Must satisfy 1 <= m < Nodes.
	Attachment int `json:"attachment" yaml:"attachment"`
}

// Validate checks every parameter and reports the first violation with its value.
func (p Params) Validate() error {
	if p.Nodes <= 1 {
		return fmt.Errorf("nodes must be greater than 1, got %d: %w", p.Nodes, ErrInvalidParams)
	}
	if p.Steps <= 1 {
		return fmt.Errorf("steps must be greater than 1, got %d: %w", p.Steps, ErrInvalidParams)
	}
	if !unit(p.Mu) {
		return fmt.Errorf("mu must be in [0, 1], got %v: %w", p.Mu, ErrInvalidParams)
	}
	if !unit(p.Epsilon) {
		return fmt.Errorf("epsilon must be in [0, 1], got %v: %w", p.Epsilon, ErrInvalidParams)
	}
	if p.Attachment < 1 || p.Attachment >= p.Nodes {
		return fmt.Errorf("attachment must satisfy 1 <= m < nodes=%d, got %d: %w", p.Nodes, p.Attachment, ErrInvalidParams)
	}
	return nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
