// Package opinion implements the pairwise opinion update rule of the
// unified continuous model: a periodic distance classifier and the
// assimilate-or-repel adjustment applied when two agents interact.
//
// Opinions live in [0, 1] but distance is measured on a circle, so 0.05 and
// 0.95 are 0.1 apart rather than 0.9.
package opinion

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange is returned when an opinion or distance lies outside its domain.
var ErrOutOfRange = errors.New("value out of range")

// Rho classifies a signed opinion difference x in [-1, 1] into -1, 0 or 1.
// Subtracting Rho(x) from x folds the difference onto the periodic scale.
func Rho(x float64) (int, error) {
	switch {
	case math.IsNaN(x) || x < -1 || x > 1:
		return 0, fmt.Errorf("rho: distance %v not in [-1, 1]: %w", x, ErrOutOfRange)
	case x < -0.5:
		return -1, nil
	case x <= 0.5:
		return 0, nil
	default:
		return 1, nil
	}
}

// PeriodicDistance returns the signed difference i-j folded onto the
// periodic scale, so that its magnitude never exceeds 0.5.
func PeriodicDistance(i, j float64) (float64, error) {
	d := i - j
	r, err := Rho(d)
	if err != nil {
		return 0, err
	}
	return d - float64(r), nil
}

// Adjust applies one interaction between agents holding opinions i and j.
//
// When the periodic distance is below epsilon the agents move toward each
// other by a fraction mu of their plain difference. Otherwise they push
// apart along the periodic difference and the results are clamped to [0, 1],
// since repulsion can overshoot the unit interval.
func Adjust(i, j, mu, epsilon float64) (float64, float64, error) {
	if err := checkOpinion("i", i); err != nil {
		return 0, 0, err
	}
	if err := checkOpinion("j", j); err != nil {
		return 0, 0, err
	}

	alt, err := PeriodicDistance(i, j)
	if err != nil {
		return 0, 0, err
	}

	if math.Abs(alt) < epsilon {
		return i + mu*(j-i), j + mu*(i-j), nil
	}

	back, err := PeriodicDistance(j, i)
	if err != nil {
		return 0, 0, err
	}
	return clamp(i - mu*back), clamp(j - mu*alt), nil
}

func checkOpinion(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("adjust: opinion %s=%v not in [0, 1]: %w", name, v, ErrOutOfRange)
	}
	return nil
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
