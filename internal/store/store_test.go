package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/opynions/internal/analysis"
	"github.com/nvandessel/opynions/internal/sweep"
)

func sampleReport(started time.Time) *sweep.Report {
	r := &sweep.Report{
		Kind:     sweep.KindGrid,
		Settings: sweep.Settings{Nodes: 50, Steps: 10, Attachment: 2, Runs: 3},
		Seed:     1<<63 + 5,
		Epsilons: []float64{0.1, 0.2},
		Mus:      []float64{0.3},
		Started:  started,
		Finished: started.Add(time.Second),
	}
	r.Points = []sweep.PointResult{
		{
			Point: sweep.Point{Epsilon: 0.1, Mu: 0.3, Attachment: 2}, Row: 0, Col: 0,
			Summary: analysis.Summary{
				Mean: analysis.Record{analysis.FieldVariance: 0.04, analysis.FieldMeanDegree: 3.9},
				Std:  analysis.Record{analysis.FieldVariance: 0.01, analysis.FieldMeanDegree: 0.1},
				Runs: 3,
			},
		},
		{
			Point: sweep.Point{Epsilon: 0.2, Mu: 0.3, Attachment: 2}, Row: 0, Col: 1,
			Err:        errors.New("point (mu=0.3, epsilon=0.2) run 1: boom"),
			Error:      "point (mu=0.3, epsilon=0.2) run 1: boom",
			FailedRuns: 1,
		},
	}
	return r
}

func forEachStore(t *testing.T, fn func(t *testing.T, s ResultStore)) {
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), ".opynions", "opynions.db"))
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		s := NewInMemoryStore()
		defer s.Close()
		fn(t, s)
	})
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ResultStore) {
		ctx := context.Background()
		in := sampleReport(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

		id, err := s.SaveReport(ctx, in)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, in.ID)

		out, err := s.LoadReport(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, in.ID, out.ID)
		assert.Equal(t, in.Kind, out.Kind)
		assert.Equal(t, in.Settings, out.Settings)
		assert.Equal(t, in.Seed, out.Seed)
		assert.Equal(t, in.Epsilons, out.Epsilons)
		assert.Equal(t, in.Mus, out.Mus)
		assert.True(t, in.Started.Equal(out.Started))
		require.Len(t, out.Points, 2)

		ok := out.At(0, 0)
		assert.False(t, ok.Failed())
		assert.Equal(t, 3, ok.Summary.Runs)
		assert.InDelta(t, 0.04, ok.Summary.Mean[analysis.FieldVariance], 1e-12)
		assert.InDelta(t, 0.1, ok.Summary.Std[analysis.FieldMeanDegree], 1e-12)

		bad := out.At(0, 1)
		assert.True(t, bad.Failed())
		assert.Error(t, bad.Err)
		assert.Contains(t, bad.Error, "boom")
		assert.Equal(t, 1, bad.FailedRuns)
	})
}

func TestStore_PrefixLookup(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ResultStore) {
		ctx := context.Background()
		a := sampleReport(time.Now())
		a.ID = "abc-111"
		b := sampleReport(time.Now())
		b.ID = "abd-222"
		_, err := s.SaveReport(ctx, a)
		require.NoError(t, err)
		_, err = s.SaveReport(ctx, b)
		require.NoError(t, err)

		got, err := s.LoadReport(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc-111", got.ID)

		_, err = s.LoadReport(ctx, "ab")
		assert.ErrorIs(t, err, ErrAmbiguousID)

		_, err = s.LoadReport(ctx, "zzz")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_ListAndDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ResultStore) {
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		older := sampleReport(base)
		newer := sampleReport(base.Add(time.Hour))
		_, err := s.SaveReport(ctx, older)
		require.NoError(t, err)
		_, err = s.SaveReport(ctx, newer)
		require.NoError(t, err)

		list, err := s.ListSweeps(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, 2, list[0].Points)
		assert.Equal(t, 1, list[0].Failed)
		assert.Equal(t, sweep.KindGrid, list[0].Kind)
		assert.Equal(t, 50, list[0].Settings.Nodes)

		require.NoError(t, s.DeleteSweep(ctx, older.ID))
		list, err = s.ListSweeps(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)

		assert.ErrorIs(t, s.DeleteSweep(ctx, older.ID), ErrNotFound)
	})
}

func TestSQLiteStore_DeleteCascades(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "opynions.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	r := sampleReport(time.Now())
	_, err = s.SaveReport(ctx, r)
	require.NoError(t, err)
	require.NoError(t, s.DeleteSweep(ctx, r.ID))

	var points, fields int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points`).Scan(&points))
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM point_fields`).Scan(&fields))
	assert.Zero(t, points)
	assert.Zero(t, fields)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opynions.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	r := sampleReport(time.Now())
	_, err = s.SaveReport(context.Background(), r)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LoadReport(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Seed, got.Seed)
}

func TestSQLiteStore_DuplicateID(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "opynions.db"))
	require.NoError(t, err)
	defer s.Close()

	r := sampleReport(time.Now())
	_, err = s.SaveReport(context.Background(), r)
	require.NoError(t, err)
	_, err = s.SaveReport(context.Background(), r)
	assert.Error(t, err)
}

func TestSQLiteStore_Validate(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "opynions.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.SaveReport(ctx, sampleReport(time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Validate(ctx))

	// Orphan a point behind the foreign key check's back.
	_, err = s.db.ExecContext(ctx, `PRAGMA foreign_keys = OFF`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `DELETE FROM sweeps`)
	require.NoError(t, err)

	err = s.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "foreign_key_check")
}
