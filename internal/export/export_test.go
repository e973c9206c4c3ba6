package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/opynions/internal/analysis"
	"github.com/nvandessel/opynions/internal/sweep"
)

// report builds a 2x2 grid (mu rows 0.3, 0.4; epsilon columns 0.1, 0.2)
// whose (0.4, 0.2) point failed.
func report() *sweep.Report {
	r := &sweep.Report{
		ID:       "sweep-1",
		Kind:     sweep.KindGrid,
		Settings: sweep.Settings{Nodes: 10, Steps: 5, Attachment: 2, Runs: 2},
		Seed:     9,
		Epsilons: []float64{0.1, 0.2},
		Mus:      []float64{0.3, 0.4},
	}
	for row, mu := range r.Mus {
		for col, eps := range r.Epsilons {
			p := sweep.PointResult{Point: sweep.Point{Epsilon: eps, Mu: mu, Attachment: 2}, Row: row, Col: col}
			if row == 1 && col == 1 {
				p.Err = errors.New("run 0: boom")
				p.Error = p.Err.Error()
				p.FailedRuns = 2
			} else {
				v := float64(row*10 + col)
				p.Summary = analysis.Summary{
					Mean: analysis.Record{analysis.FieldVariance: v},
					Std:  analysis.Record{analysis.FieldVariance: 0.5},
					Runs: 2,
				}
			}
			r.Points = append(r.Points, p)
		}
	}
	return r
}

func readCSV(t *testing.T, s string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteMatrixCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatrixCSV(&buf, report(), analysis.FieldVariance))

	rows := readCSV(t, buf.String())
	assert.Equal(t, [][]string{
		{"", "0.1", "0.2"},
		{"0.3", "0", "1"},
		{"0.4", "10", ""},
	}, rows)
}

func TestWriteMatrixCSV_UnknownField(t *testing.T) {
	var buf bytes.Buffer
	err := WriteMatrixCSV(&buf, report(), "nope")
	assert.ErrorContains(t, err, `"nope"`)
}

func TestWriteRecordsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecordsCSV(&buf, report()))

	rows := readCSV(t, buf.String())
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"mu", "epsilon", "attachment", "runs", "failed_runs", "error", "variance_mean", "variance_std"}, rows[0])
	assert.Equal(t, []string{"0.3", "0.2", "2", "2", "0", "", "1", "0.5"}, rows[2])
	assert.Equal(t, []string{"0.4", "0.2", "2", "0", "2", "run 0: boom", "", ""}, rows[4])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, report()))

	var decoded sweep.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "sweep-1", decoded.ID)
	require.Len(t, decoded.Points, 4)
	assert.Equal(t, "run 0: boom", decoded.Points[3].Error)
}

func TestWriteArrow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteArrow(&buf, report()))

	rdr, err := ipc.NewReader(&buf, ipc.WithAllocator(memory.NewGoAllocator()))
	require.NoError(t, err)
	defer rdr.Release()

	schema := rdr.Schema()
	assert.Equal(t, "variance_mean", schema.Field(numFixed).Name)
	idx := schema.Metadata().FindKey("seed")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "9", schema.Metadata().Values()[idx])

	require.True(t, rdr.Next(), "stream has no record batch: %v", rdr.Err())
	rec := rdr.Record()
	require.EqualValues(t, 4, rec.NumRows())

	mu := rec.Column(colMu).(*array.Float64)
	mean := rec.Column(numFixed).(*array.Float64)
	std := rec.Column(numFixed + 1).(*array.Float64)
	errs := rec.Column(colError).(*array.String)

	assert.Equal(t, 0.4, mu.Value(2))
	assert.Equal(t, 10.0, mean.Value(2))
	assert.True(t, errs.IsNull(0))
	assert.True(t, mean.IsNull(3))
	assert.True(t, std.IsNull(3))
	assert.Equal(t, 1, mean.NullN())
	assert.Equal(t, "run 0: boom", errs.Value(3))

	assert.False(t, rdr.Next(), "expected a single record batch")
	assert.NoError(t, rdr.Err())
}

// Stdout cannot seek; the arrow export must still succeed there.
func TestWriteArrow_NonSeekableWriter(t *testing.T) {
	pr, pw := io.Pipe()
	errc := make(chan error, 1)
	go func() {
		err := WriteArrow(pw, report())
		pw.CloseWithError(err)
		errc <- err
	}()

	rdr, err := ipc.NewReader(pr)
	require.NoError(t, err)
	defer rdr.Release()
	rows := 0
	for rdr.Next() {
		rows += int(rdr.Record().NumRows())
	}
	require.NoError(t, rdr.Err())
	require.NoError(t, <-errc)
	assert.Equal(t, 4, rows)
}

func TestWrite_Dispatch(t *testing.T) {
	for _, format := range Formats() {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, report(), format, analysis.FieldVariance), format)
		assert.NotZero(t, buf.Len(), format)
	}
	assert.ErrorIs(t, Write(&bytes.Buffer{}, report(), "xlsx", ""), ErrUnknownFormat)
}
