// Package export writes sweep reports in formats other tools can read:
// a CSV matrix in the layout pandas produces, one CSV record per point,
// JSON, and an Arrow IPC file for dataframe libraries.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/nvandessel/opynions/internal/sweep"
)

// Format names accepted by Write.
const (
	FormatMatrix  = "matrix"
	FormatRecords = "csv"
	FormatJSON    = "json"
	FormatArrow   = "arrow"
)

// ErrUnknownFormat is returned by Write for unrecognized format names.
var ErrUnknownFormat = errors.New("unknown export format")

// Formats lists every format name.
func Formats() []string {
	return []string{FormatMatrix, FormatRecords, FormatJSON, FormatArrow}
}

// Write dispatches on format. field is only used by the matrix format.
func Write(w io.Writer, r *sweep.Report, format, field string) error {
	switch format {
	case FormatMatrix:
		return WriteMatrixCSV(w, r, field)
	case FormatRecords:
		return WriteRecordsCSV(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatArrow:
		return WriteArrow(w, r)
	default:
		return fmt.Errorf("%q (valid: %v): %w", format, Formats(), ErrUnknownFormat)
	}
}

// WriteMatrixCSV writes the mean of field with one row per mu and one
// column per epsilon. The header row starts with an empty cell followed by
// the epsilons; each row starts with its mu. Failed points are empty cells.
func WriteMatrixCSV(w io.Writer, r *sweep.Report, field string) error {
	if !hasField(r, field) {
		return fmt.Errorf("field %q not in report (have %v)", field, r.Fields())
	}
	cw := csv.NewWriter(w)

	header := make([]string, 0, r.Cols()+1)
	header = append(header, "")
	for _, eps := range r.Epsilons {
		header = append(header, formatFloat(eps))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for row, values := range r.Matrix(field) {
		line := make([]string, 0, len(values)+1)
		line = append(line, formatFloat(r.Mus[row]))
		for _, v := range values {
			line = append(line, formatFloat(v))
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("writing row %d: %w", row, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRecordsCSV writes one line per point with the mean and std of every
// field, in row-major order.
func WriteRecordsCSV(w io.Writer, r *sweep.Report) error {
	fields := r.Fields()
	cw := csv.NewWriter(w)

	header := []string{"mu", "epsilon", "attachment", "runs", "failed_runs", "error"}
	for _, f := range fields {
		header = append(header, f+"_mean", f+"_std")
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, p := range r.Points {
		line := []string{
			formatFloat(p.Point.Mu),
			formatFloat(p.Point.Epsilon),
			strconv.Itoa(p.Point.Attachment),
			strconv.Itoa(p.Summary.Runs),
			strconv.Itoa(p.FailedRuns),
			errorText(p),
		}
		for _, f := range fields {
			mean, std := math.NaN(), math.NaN()
			if !p.Failed() {
				if v, ok := p.Summary.Mean[f]; ok {
					mean, std = v, p.Summary.Std[f]
				}
			}
			line = append(line, formatFloat(mean), formatFloat(std))
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("writing point (%d, %d): %w", p.Row, p.Col, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *sweep.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

func hasField(r *sweep.Report, field string) bool {
	for _, f := range r.Fields() {
		if f == field {
			return true
		}
	}
	return false
}

func errorText(p sweep.PointResult) string {
	if p.Error != "" {
		return p.Error
	}
	if p.Err != nil {
		return p.Err.Error()
	}
	return ""
}

// formatFloat renders NaN as an empty cell.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
