package dataset

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/meridianlabs/flowline/pkg/schema"
)

// ReadCSV parses CSV data against a schema. The first record is the header
// and must satisfy the schema exactly.
func ReadCSV(s schema.Schema, r io.Reader) (Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return Dataset{}, fmt.Errorf("CSV is empty, expected a header row")
	}
	return FromRecords(s, records[0], records[1:])
}

// WriteCSV encodes the dataset as CSV in declared column order.
func WriteCSV(d Dataset, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Schema.Columns()); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i, row := range d.Rows {
		rec := make([]string, len(d.Schema.Fields))
		for j, f := range d.Schema.Fields {
			rec[j] = f.FormatValue(row[f.Name])
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}
