// Package store persists sweep reports so they can be listed, shown and
// exported after the process that ran them has exited.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/opynions/internal/sweep"
)

var (
	// ErrNotFound is returned when no sweep matches an ID.
	ErrNotFound = errors.New("sweep not found")

	// ErrAmbiguousID is returned when an ID prefix matches several sweeps.
	ErrAmbiguousID = errors.New("sweep id prefix is ambiguous")
)

// SweepInfo is the listing view of a stored sweep.
type SweepInfo struct {
	ID       string         `json:"id"`
	Kind     sweep.Kind     `json:"kind"`
	Settings sweep.Settings `json:"settings"`
	Seed     uint64         `json:"seed"`
	Points   int            `json:"points"`
	Failed   int            `json:"failed"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
}

// ResultStore defines the operations on persisted sweep reports.
type ResultStore interface {
	// SaveReport stores r and returns its ID. A report without an ID is
	// assigned a new UUID, which is also written back to r.ID.
	SaveReport(ctx context.Context, r *sweep.Report) (string, error)

	// LoadReport returns the report with the given ID or unique ID prefix.
	LoadReport(ctx context.Context, id string) (*sweep.Report, error)

	// ListSweeps returns all stored sweeps, newest first.
	ListSweeps(ctx context.Context) ([]SweepInfo, error)

	// DeleteSweep removes a sweep and its points.
	DeleteSweep(ctx context.Context, id string) error

	Close() error
}

func infoOf(r *sweep.Report) SweepInfo {
	return SweepInfo{
		ID:       r.ID,
		Kind:     r.Kind,
		Settings: r.Settings,
		Seed:     r.Seed,
		Points:   len(r.Points),
		Failed:   len(r.Failures()),
		Started:  r.Started,
		Finished: r.Finished,
	}
}
