package export

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/opynions/internal/sweep"
)

// fixed leading columns of the Arrow table.
const (
	colRow = iota
	colCol
	colMu
	colEpsilon
	colAttachment
	colRuns
	colFailedRuns
	colError
	numFixed
)

// ArrowSchema returns the table schema for r: the point coordinates, then a
// nullable <field>_mean and <field>_std column per metric.
func ArrowSchema(r *sweep.Report) *arrow.Schema {
	fields := []arrow.Field{
		{Name: "row", Type: arrow.PrimitiveTypes.Int64},
		{Name: "col", Type: arrow.PrimitiveTypes.Int64},
		{Name: "mu", Type: arrow.PrimitiveTypes.Float64},
		{Name: "epsilon", Type: arrow.PrimitiveTypes.Float64},
		{Name: "attachment", Type: arrow.PrimitiveTypes.Int64},
		{Name: "runs", Type: arrow.PrimitiveTypes.Int64},
		{Name: "failed_runs", Type: arrow.PrimitiveTypes.Int64},
		{Name: "error", Type: arrow.BinaryTypes.String, Nullable: true},
	}
	for _, f := range r.Fields() {
		fields = append(fields,
			arrow.Field{Name: f + "_mean", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
			arrow.Field{Name: f + "_std", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		)
	}
	md := arrow.NewMetadata(
		[]string{"sweep_id", "kind", "seed"},
		[]string{r.ID, string(r.Kind), fmt.Sprint(r.Seed)},
	)
	return arrow.NewSchema(fields, &md)
}

// WriteArrow writes r as an Arrow IPC stream holding a single record batch
// with one row per point. Metric columns are null for failed points. The
// stream format needs no seeking, so w may be stdout or a pipe.
func WriteArrow(w io.Writer, r *sweep.Report) error {
	mem := memory.NewGoAllocator()
	schema := ArrowSchema(r)
	names := r.Fields()

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for _, p := range r.Points {
		b.Field(colRow).(*array.Int64Builder).Append(int64(p.Row))
		b.Field(colCol).(*array.Int64Builder).Append(int64(p.Col))
		b.Field(colMu).(*array.Float64Builder).Append(p.Point.Mu)
		b.Field(colEpsilon).(*array.Float64Builder).Append(p.Point.Epsilon)
		b.Field(colAttachment).(*array.Int64Builder).Append(int64(p.Point.Attachment))
		b.Field(colRuns).(*array.Int64Builder).Append(int64(p.Summary.Runs))
		b.Field(colFailedRuns).(*array.Int64Builder).Append(int64(p.FailedRuns))
		if msg := errorText(p); msg != "" {
			b.Field(colError).(*array.StringBuilder).Append(msg)
		} else {
			b.Field(colError).(*array.StringBuilder).AppendNull()
		}
		for i, f := range names {
			meanB := b.Field(numFixed + 2*i).(*array.Float64Builder)
			stdB := b.Field(numFixed + 2*i + 1).(*array.Float64Builder)
			mean, ok := p.Summary.Mean[f]
			if p.Failed() || !ok {
				meanB.AppendNull()
				stdB.AppendNull()
				continue
			}
			meanB.Append(mean)
			stdB.Append(p.Summary.Std[f])
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return nil
}
