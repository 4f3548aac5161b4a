// Package report renders a run's outcome as well-structured plain text:
// a fixed-width table of the final dataset followed by key=value summary
// lines. The output stays free of decoration so the same text serves humans
// and downstream text-consuming agents.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/meridianlabs/flowline/pkg/pipeline"
)

// Render writes the report for a completed run.
func Render(w io.Writer, r pipeline.RunResult) error {
	if err := renderTable(w, r); err != nil {
		return err
	}
	return renderSummary(w, r)
}

func renderTable(w io.Writer, r pipeline.RunResult) error {
	fmt.Fprintf(w, "dataset %s (%d rows)\n", r.Final.Schema.Name, r.Final.NumRows())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	cols := r.Final.Schema.Columns()
	fmt.Fprintln(tw, strings.Join(cols, "\t"))

	for _, row := range r.Final.Rows {
		cells := make([]string, len(cols))
		for i, col := range cols {
			f, _ := r.Final.Schema.Field(col)
			cells[i] = f.FormatValue(row[col])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

func renderSummary(w io.Writer, r pipeline.RunResult) error {
	for _, s := range r.Stages {
		fmt.Fprintf(w, "stage name=%s rows_in=%d rows_out=%d duration=%s\n",
			s.Name, s.RowsIn, s.RowsOut, s.Duration.Round(time.Millisecond))
	}
	_, err := fmt.Fprintf(w, "summary entity=%s kind=%s rows_out=%d flagged=%d duration=%s status=ok\n",
		r.Entity, r.Kind, r.Final.NumRows(), r.Flagged, r.Duration.Round(time.Millisecond))
	return err
}
